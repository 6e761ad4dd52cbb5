package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/secondhand-market/internal/model"
)

// MessageRepo provides data access to the messages table.  Read flags are
// only ever set, never cleared: every UPDATE below is guarded by
// is_read = 0 and excludes the reader's own messages.
type MessageRepo struct {
	db *sql.DB
}

// NewMessageRepo returns a new MessageRepo bound to db.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

// Create inserts a message and populates ID and CreatedAt.  A conversation
// that was hard-deleted in the meantime surfaces as ErrNotFound.
func (r *MessageRepo) Create(ctx context.Context, m *model.Message) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content) VALUES (?, ?, ?)`,
		m.ConversationID, m.SenderID, m.Content)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	m.IsRead = false
	return r.db.QueryRowContext(ctx, `SELECT created_at FROM messages WHERE id = ?`, m.ID).Scan(&m.CreatedAt)
}

// ListByConversation returns the history ordered by server creation time.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uint64) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, content, is_read, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Message
	for rows.Next() {
		m := new(model.Message)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkAllRead flips every unread message in the conversation not sent by
// readerID and returns the ids that changed.
func (r *MessageRepo) MarkAllRead(ctx context.Context, conversationID, readerID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM messages WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0 ORDER BY id`,
		conversationID, readerID)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	// Messages that arrive between the SELECT and the UPDATE are left for
	// the next call; both paths are idempotent.
	maxID := ids[len(ids)-1]
	if _, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = 1
		 WHERE conversation_id = ? AND sender_id <> ? AND is_read = 0 AND id <= ?`,
		conversationID, readerID, maxID); err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkRead flips one message addressed to readerID.  It reports whether
// the flag changed.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, messageID, readerID uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = 1
		 WHERE id = ? AND conversation_id = ? AND sender_id <> ? AND is_read = 0`,
		messageID, conversationID, readerID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CountUnread counts unread messages addressed to viewerID across every
// conversation the viewer is party to, including ones the viewer has
// soft-deleted.
func (r *MessageRepo) CountUnread(ctx context.Context, viewerID uint64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, countUnreadSQL, viewerID, viewerID, viewerID).Scan(&n)
	return n, err
}

const countUnreadSQL = `SELECT COUNT(*) FROM messages m
	JOIN conversations c ON c.id = m.conversation_id
	WHERE m.is_read = 0 AND m.sender_id <> ? AND (c.buyer_id = ? OR c.seller_id = ?)`
