package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/secondhand-market/internal/model"
)

// ConversationRepo provides data access to the conversations table.
type ConversationRepo struct {
	db *sql.DB
}

// NewConversationRepo returns a new ConversationRepo bound to db.
func NewConversationRepo(db *sql.DB) *ConversationRepo { return &ConversationRepo{db: db} }

const conversationColumns = `id, listing_id, buyer_id, seller_id, buyer_deleted, seller_deleted, created_at, updated_at`

func scanConversation(s rowScanner) (*model.Conversation, error) {
	var c model.Conversation
	if err := s.Scan(&c.ID, &c.ListingID, &c.BuyerID, &c.SellerID,
		&c.BuyerDeleted, &c.SellerDeleted, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a conversation.  A second row for the same
// (listing_id, buyer_id) fails with ErrDuplicate thanks to the unique key;
// a vanished listing fails with ErrNotFound.
func (r *ConversationRepo) Create(ctx context.Context, c *model.Conversation) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (listing_id, buyer_id, seller_id) VALUES (?, ?, ?)`,
		c.ListingID, c.BuyerID, c.SellerID)
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
	*c = *created
	return nil
}

// GetByID fetches a conversation by id.
func (r *ConversationRepo) GetByID(ctx context.Context, id uint64) (*model.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// GetByListingAndBuyer fetches the unique conversation of a buyer about a
// listing.
func (r *ConversationRepo) GetByListingAndBuyer(ctx context.Context, listingID, buyerID uint64) (*model.Conversation, error) {
	c, err := scanConversation(r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE listing_id = ? AND buyer_id = ?`,
		listingID, buyerID))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// CountActiveByListing counts conversations on a listing that neither side
// has deleted.
func (r *ConversationRepo) CountActiveByListing(ctx context.Context, listingID uint64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations
		 WHERE listing_id = ? AND buyer_deleted = 0 AND seller_deleted = 0`, listingID).Scan(&n)
	return n, err
}

// ListForUser returns the conversations visible to userID (their own side
// not deleted), most recently updated first, with listing title/status and
// the number of unread messages addressed to userID.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID uint64) ([]*model.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.listing_id, c.buyer_id, c.seller_id, c.buyer_deleted, c.seller_deleted,
		        c.created_at, c.updated_at, l.title, l.status,
		        (SELECT COUNT(*) FROM messages m
		         WHERE m.conversation_id = c.id AND m.is_read = 0 AND m.sender_id <> ?) AS unread
		 FROM conversations c
		 JOIN listings l ON l.id = c.listing_id
		 WHERE (c.buyer_id = ? AND c.buyer_deleted = 0) OR (c.seller_id = ? AND c.seller_deleted = 0)
		 ORDER BY c.updated_at DESC, c.id DESC`, userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ConversationSummary
	for rows.Next() {
		s := new(model.ConversationSummary)
		if err := rows.Scan(&s.ID, &s.ListingID, &s.BuyerID, &s.SellerID, &s.BuyerDeleted, &s.SellerDeleted,
			&s.CreatedAt, &s.UpdatedAt, &s.ListingTitle, &s.ListingStatus, &s.Unread); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetDeleted sets or clears the delete flag of one side.  It reports
// whether the flag actually changed; ErrNotFound when the row is gone.
func (r *ConversationRepo) SetDeleted(ctx context.Context, id uint64, side model.Side, deleted bool) (bool, error) {
	col := "buyer_deleted"
	if side == model.SideSeller {
		col = "seller_deleted"
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET `+col+` = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND `+col+` <> ?`,
		deleted, id, deleted)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	// Nothing matched: either the flag already had the value or the row is gone.
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// HardDelete removes the conversation's messages and then the row in a
// single transaction so readers never see one without the other.
func (r *ConversationRepo) HardDelete(ctx context.Context, id uint64) (err error) {
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
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
	}
	return err
}

// Touch bumps updated_at so the conversation sorts first in listings.
func (r *ConversationRepo) Touch(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}
