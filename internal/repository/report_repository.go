package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/secondhand-market/internal/model"
)

// ReportRepo provides data access to the reports table.
type ReportRepo struct {
	db *sql.DB
}

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

const reportColumns = `id, reporter_id, target_type, target_id, reason, status, handled_by, handled_at, created_at`

func scanReport(s rowScanner) (*model.Report, error) {
	var (
		rp        model.Report
		handledBy sql.NullInt64
		handledAt sql.NullTime
	)
	if err := s.Scan(&rp.ID, &rp.ReporterID, &rp.TargetType, &rp.TargetID, &rp.Reason, &rp.Status,
		&handledBy, &handledAt, &rp.CreatedAt); err != nil {
		return nil, err
	}
	if handledBy.Valid {
		id := uint64(handledBy.Int64)
		rp.HandledBy = &id
	}
	if handledAt.Valid {
		t := handledAt.Time
		rp.HandledAt = &t
	}
	return &rp, nil
}

// Create files a new open report.
func (r *ReportRepo) Create(ctx context.Context, rp *model.Report) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (reporter_id, target_type, target_id, reason) VALUES (?, ?, ?, ?)`,
		rp.ReporterID, rp.TargetType, rp.TargetID, rp.Reason)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*rp = *created
	return nil
}

// GetByID fetches a report.
func (r *ReportRepo) GetByID(ctx context.Context, id uint64) (*model.Report, error) {
	rp, err := scanReport(r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if err != nil {
		return nil, translate(err)
	}
	return rp, nil
}

// ListByStatus returns reports in a status, oldest first.
func (r *ReportRepo) ListByStatus(ctx context.Context, status string) ([]*model.Report, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE status = ? ORDER BY created_at, id`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Report
	for rows.Next() {
		rp, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetStatus closes an open report.  ErrConflict when it was already
// handled, ErrNotFound when it does not exist.
func (r *ReportRepo) SetStatus(ctx context.Context, id uint64, status string, handledBy uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, handled_by = ?, handled_at = UTC_TIMESTAMP()
		 WHERE id = ? AND status = 'open'`, status, handledBy, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}
