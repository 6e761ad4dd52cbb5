package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/secondhand-market/internal/model"
)

// ReviewRepo provides data access to the reviews table.
type ReviewRepo struct {
	db *sql.DB
}

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

// Create inserts a review.  The unique key on item_id turns a second
// review of the same item into ErrDuplicate.
func (r *ReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reviews (item_id, buyer_id, seller_id, rating, comment) VALUES (?, ?, ?, ?, ?)`,
		rv.ItemID, rv.BuyerID, rv.SellerID, rv.Rating, rv.Comment)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rv.ID = uint64(id)
	return r.db.QueryRowContext(ctx, `SELECT created_at FROM reviews WHERE id = ?`, rv.ID).Scan(&rv.CreatedAt)
}

// GetByItem returns the review of an item, ErrNotFound when none exists.
func (r *ReviewRepo) GetByItem(ctx context.Context, itemID uint64) (*model.Review, error) {
	var rv model.Review
	err := r.db.QueryRowContext(ctx,
		`SELECT id, item_id, buyer_id, seller_id, rating, comment, created_at FROM reviews WHERE item_id = ?`,
		itemID).Scan(&rv.ID, &rv.ItemID, &rv.BuyerID, &rv.SellerID, &rv.Rating, &rv.Comment, &rv.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &rv, nil
}

// ListBySeller returns the reviews a seller received, newest first.
func (r *ReviewRepo) ListBySeller(ctx context.Context, sellerID uint64) ([]*model.Review, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, item_id, buyer_id, seller_id, rating, comment, created_at
		 FROM reviews WHERE seller_id = ? ORDER BY created_at DESC, id DESC`, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Review
	for rows.Next() {
		rv := new(model.Review)
		if err := rows.Scan(&rv.ID, &rv.ItemID, &rv.BuyerID, &rv.SellerID, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
