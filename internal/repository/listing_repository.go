package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/iliyamo/secondhand-market/internal/model"
)

// ListingRepo encapsulates all queries on the listings table.
type ListingRepo struct {
	db *sql.DB
}

// NewListingRepo constructs a ListingRepo with the provided DB handle.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

const listingColumns = `id, seller_id, status, rejection_reason, hidden_reason, buyer_id,
	title, price_cents, description, category, sub_category, item_condition,
	images, meetup_area, show_contact, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(s rowScanner) (*model.Listing, error) {
	var (
		l         model.Listing
		rejection sql.NullString
		hidden    sql.NullString
		buyer     sql.NullInt64
		images    []byte
	)
	if err := s.Scan(&l.ID, &l.SellerID, &l.Status, &rejection, &hidden, &buyer,
		&l.Title, &l.PriceCents, &l.Description, &l.Category, &l.SubCategory, &l.Condition,
		&images, &l.MeetupArea, &l.ShowContact, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	if rejection.Valid {
		l.RejectionReason = &rejection.String
	}
	if hidden.Valid {
		l.HiddenReason = &hidden.String
	}
	if buyer.Valid {
		id := uint64(buyer.Int64)
		l.BuyerID = &id
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &l.Images); err != nil {
			return nil, fmt.Errorf("decode images of listing %d: %w", l.ID, err)
		}
	}
	return &l, nil
}

func encodeImages(images []string) ([]byte, error) {
	if images == nil {
		images = []string{}
	}
	return json.Marshal(images)
}

// Create inserts a new listing and populates ID and timestamps.
func (r *ListingRepo) Create(ctx context.Context, l *model.Listing) error {
	images, err := encodeImages(l.Images)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO listings (seller_id, status, title, price_cents, description, category,
		 sub_category, item_condition, images, meetup_area, show_contact)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.SellerID, l.Status, l.Title, l.PriceCents, l.Description, l.Category,
		l.SubCategory, l.Condition, images, l.MeetupArea, l.ShowContact)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM listings WHERE id = ?`, l.ID).Scan(&l.CreatedAt, &l.UpdatedAt)
}

// GetByID fetches a listing by id.  ErrNotFound when absent.
func (r *ListingRepo) GetByID(ctx context.Context, id uint64) (*model.Listing, error) {
	l, err := scanListing(r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, id))
	if err != nil {
		return nil, translate(err)
	}
	return l, nil
}

// Update writes the status, reasons, buyer and every owner-editable
// column.  The write is last-write-wins by design; callers re-read the
// row before deciding on a transition.
func (r *ListingRepo) Update(ctx context.Context, l *model.Listing) error {
	images, err := encodeImages(l.Images)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE listings SET status = ?, rejection_reason = ?, hidden_reason = ?, buyer_id = ?,
		 title = ?, price_cents = ?, description = ?, category = ?, sub_category = ?,
		 item_condition = ?, images = ?, meetup_area = ?, show_contact = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		l.Status, l.RejectionReason, l.HiddenReason, l.BuyerID,
		l.Title, l.PriceCents, l.Description, l.Category, l.SubCategory,
		l.Condition, images, l.MeetupArea, l.ShowContact, l.ID)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a listing together with its conversations and their
// messages inside one transaction.
func (r *ListingRepo) Delete(ctx context.Context, id uint64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	if _, err = tx.ExecContext(ctx,
		`DELETE m FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.listing_id = ?`, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE listing_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

// ListFilter narrows ListByStatus.  Zero values mean "no filter".
type ListFilter struct {
	Category string
	Limit    int
	Offset   int
}

// ListByStatus returns listings in the given status, newest first.
func (r *ListingRepo) ListByStatus(ctx context.Context, status model.ListingStatus, f ListFilter) ([]*model.Listing, error) {
	q := `SELECT ` + listingColumns + ` FROM listings WHERE status = ?`
	args := []any{status}
	if f.Category != "" {
		q += ` AND category = ?`
		args = append(args, f.Category)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	return r.query(ctx, q, args...)
}

// ListBySeller returns every listing of a seller, newest first.
func (r *ListingRepo) ListBySeller(ctx context.Context, sellerID uint64) ([]*model.Listing, error) {
	return r.query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE seller_id = ? ORDER BY created_at DESC, id DESC`, sellerID)
}

func (r *ListingRepo) query(ctx context.Context, q string, args ...any) ([]*model.Listing, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
