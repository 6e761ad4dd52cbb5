package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/utils"
)

// UserRepo provides data access to the accounts table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

const accountColumns = `id, email, password_hash, display_name, phone, role, banned_until, ban_reason, created_at, updated_at`

func scanAccount(s rowScanner) (*model.Account, error) {
	var (
		a      model.Account
		until  sql.NullTime
		reason sql.NullString
	)
	if err := s.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.Phone, &a.Role,
		&until, &reason, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if until.Valid {
		t := until.Time
		a.BannedUntil = &t
	}
	if reason.Valid {
		a.BanReason = &reason.String
	}
	return &a, nil
}

// Create inserts an account and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, displayName, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO accounts (email, password_hash, display_name, role) VALUES (?,?,?,?)",
		email, hash, strings.TrimSpace(displayName), role)
	if err != nil {
		if errors.Is(translate(err), ErrDuplicate) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches an account by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	a, err := scanAccount(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE email=? LIMIT 1", email))
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// GetByID fetches an account by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.Account, error) {
	a, err := scanAccount(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id=? LIMIT 1", id))
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// SetBan writes (or clears, with nil values) the ban expiry and reason.
func (r *UserRepo) SetBan(ctx context.Context, id uint64, until *time.Time, reason *string) error {
	var u any
	if until != nil {
		u = until.UTC()
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET banned_until=?, ban_reason=? WHERE id=?", u, reason, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile changes the public profile fields.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, displayName, phone string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET display_name=?, phone=? WHERE id=?",
		strings.TrimSpace(displayName), strings.TrimSpace(phone), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the account row.  Foreign keys cascade to listings,
// conversations, messages, reviews, reports and refresh tokens.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM accounts WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
