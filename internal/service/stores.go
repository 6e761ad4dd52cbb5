package service

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/queue"
	"github.com/iliyamo/secondhand-market/internal/repository"
)

// ListingStore is the persistence the listing lifecycle needs.
type ListingStore interface {
	Create(ctx context.Context, l *model.Listing) error
	GetByID(ctx context.Context, id uint64) (*model.Listing, error)
	Update(ctx context.Context, l *model.Listing) error
	Delete(ctx context.Context, id uint64) error
	ListByStatus(ctx context.Context, status model.ListingStatus, f repository.ListFilter) ([]*model.Listing, error)
	ListBySeller(ctx context.Context, sellerID uint64) ([]*model.Listing, error)
}

// ConversationStore is the persistence of conversations.
type ConversationStore interface {
	Create(ctx context.Context, c *model.Conversation) error
	GetByID(ctx context.Context, id uint64) (*model.Conversation, error)
	GetByListingAndBuyer(ctx context.Context, listingID, buyerID uint64) (*model.Conversation, error)
	CountActiveByListing(ctx context.Context, listingID uint64) (int64, error)
	ListForUser(ctx context.Context, userID uint64) ([]*model.ConversationSummary, error)
	SetDeleted(ctx context.Context, id uint64, side model.Side, deleted bool) (bool, error)
	HardDelete(ctx context.Context, id uint64) error
	Touch(ctx context.Context, id uint64) error
}

// MessageStore is the persistence of messages.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	ListByConversation(ctx context.Context, conversationID uint64) ([]*model.Message, error)
	MarkAllRead(ctx context.Context, conversationID, readerID uint64) ([]uint64, error)
	MarkRead(ctx context.Context, conversationID, messageID, readerID uint64) (bool, error)
	CountUnread(ctx context.Context, viewerID uint64) (int64, error)
}

// AccountStore is the slice of account persistence used for
// authorization and moderation.
type AccountStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Account, error)
	SetBan(ctx context.Context, id uint64, until *time.Time, reason *string) error
	Delete(ctx context.Context, id uint64) error
}

// ReviewStore is the persistence of reviews.
type ReviewStore interface {
	Create(ctx context.Context, rv *model.Review) error
	GetByItem(ctx context.Context, itemID uint64) (*model.Review, error)
	ListBySeller(ctx context.Context, sellerID uint64) ([]*model.Review, error)
}

// ReportStore is the persistence of reports.
type ReportStore interface {
	Create(ctx context.Context, rp *model.Report) error
	GetByID(ctx context.Context, id uint64) (*model.Report, error)
	ListByStatus(ctx context.Context, status string) ([]*model.Report, error)
	SetStatus(ctx context.Context, id uint64, status string, handledBy uint64) error
}

// FileStore is the object storage used for listing images and avatars.
type FileStore interface {
	Remove(ctx context.Context, paths []string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// TokenRevoker revokes every refresh token of an account.
type TokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// EventPublisher receives moderation events once they are persisted.
type EventPublisher interface {
	PublishModeration(ctx context.Context, ev queue.ModerationEvent) error
}

// publishModeration hands ev to p.  Delivery is best effort.
func publishModeration(ctx context.Context, p EventPublisher, ev queue.ModerationEvent) {
	if p == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := p.PublishModeration(ctx, ev); err != nil {
		log.Printf("moderation: publish %s for %s %d failed: %v", ev.Action, ev.TargetType, ev.TargetID, err)
	}
}

// removeFiles deletes storage objects, logging and swallowing failures.
func removeFiles(ctx context.Context, files FileStore, paths []string) {
	if files == nil || len(paths) == 0 {
		return
	}
	if err := files.Remove(ctx, paths); err != nil {
		log.Printf("storage: remove %d objects failed: %v", len(paths), err)
	}
}
