package service

import (
	"context"
	"errors"
	"log"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/realtime"
	"github.com/iliyamo/secondhand-market/internal/repository"
)

// ConversationService owns creation and the two-sided delete protocol of
// buyer/seller conversations.
type ConversationService struct {
	convs    ConversationStore
	listings ListingStore
	gate     *Gate
	feed     realtime.Feed
}

// NewConversationService wires the lifecycle.  feed may be nil.
func NewConversationService(convs ConversationStore, listings ListingStore, gate *Gate, feed realtime.Feed) *ConversationService {
	return &ConversationService{convs: convs, listings: listings, gate: gate, feed: feed}
}

// StartOrResume returns the buyer's conversation about a listing, creating
// it on first contact.  Calling it again returns the same conversation;
// a buyer resuming a thread they had deleted sees it again.
func (s *ConversationService) StartOrResume(ctx context.Context, buyerID, listingID uint64) (*model.Conversation, error) {
	if _, err := s.gate.RequireActive(ctx, buyerID); err != nil {
		return nil, err
	}
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, fromStore(err, MsgListingNotFound)
	}
	if l.SellerID == buyerID {
		return nil, invalid("You cannot message your own listing")
	}

	c, err := s.convs.GetByListingAndBuyer(ctx, listingID, buyerID)
	switch {
	case err == nil:
		return s.resume(ctx, c)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storeFailure(err)
	}

	if !l.IsPublic() {
		return nil, notFound(MsgListingNotFound)
	}
	if l.Status != model.ListingAvailable {
		return nil, conflict("This listing is not available")
	}
	c = &model.Conversation{ListingID: listingID, BuyerID: buyerID, SellerID: l.SellerID}
	if err := s.convs.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race with a concurrent start for the same pair.
			existing, gerr := s.convs.GetByListingAndBuyer(ctx, listingID, buyerID)
			if gerr != nil {
				return nil, fromStore(gerr, MsgConvNotFound)
			}
			return s.resume(ctx, existing)
		}
		return nil, fromStore(err, MsgListingNotFound)
	}
	s.broadcast(ctx, realtime.EventInsert, c)
	return c, nil
}

func (s *ConversationService) resume(ctx context.Context, c *model.Conversation) (*model.Conversation, error) {
	if !c.BuyerDeleted {
		return c, nil
	}
	if _, err := s.convs.SetDeleted(ctx, c.ID, model.SideBuyer, false); err != nil {
		return nil, fromStore(err, MsgConvNotFound)
	}
	c.BuyerDeleted = false
	s.broadcast(ctx, realtime.EventUpdate, c)
	return c, nil
}

// Participant loads a conversation and checks actorID takes part in it.
func (s *ConversationService) Participant(ctx context.Context, actorID, conversationID uint64) (*model.Conversation, model.Side, error) {
	if actorID == 0 {
		return nil, "", unauthenticated()
	}
	c, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, "", fromStore(err, MsgConvNotFound)
	}
	side, ok := c.SideOf(actorID)
	if !ok {
		// Outsiders cannot tell a private thread from a missing one.
		return nil, "", notFound(MsgConvNotFound)
	}
	return c, side, nil
}

// Delete removes the conversation for actorID.  When the counterpart has
// already deleted it the row and its messages are removed for good;
// otherwise only the actor's flag is set.  It reports whether the
// conversation was hard-deleted.
func (s *ConversationService) Delete(ctx context.Context, actorID, conversationID uint64) (bool, error) {
	c, side, err := s.Participant(ctx, actorID, conversationID)
	if err != nil {
		return false, err
	}
	if c.DeletedBy(side.Opposite()) {
		return true, s.hardDelete(ctx, c)
	}
	if _, err := s.convs.SetDeleted(ctx, c.ID, side, true); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The counterpart finished the delete first.
			return true, nil
		}
		return false, storeFailure(err)
	}
	// Both sides may have soft-deleted concurrently, each seeing the
	// other's flag unset.  Re-read and finish the job.
	fresh, err := s.convs.GetByID(ctx, c.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, nil
		}
		return false, storeFailure(err)
	}
	if fresh.BuyerDeleted && fresh.SellerDeleted {
		return true, s.hardDelete(ctx, fresh)
	}
	s.broadcast(ctx, realtime.EventUpdate, fresh)
	return false, nil
}

func (s *ConversationService) hardDelete(ctx context.Context, c *model.Conversation) error {
	if err := s.convs.HardDelete(ctx, c.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storeFailure(err)
	}
	s.broadcast(ctx, realtime.EventDelete, c)
	return nil
}

// OnMessageSent brings the conversation back for a recipient who had
// deleted it.  The sender's own flag is left alone.  It reports whether a
// flag was cleared.
func (s *ConversationService) OnMessageSent(ctx context.Context, c *model.Conversation, senderID uint64) (bool, error) {
	side, ok := c.SideOf(senderID)
	if !ok {
		return false, unauthorized("")
	}
	recipient := side.Opposite()
	resurrected := false
	if c.DeletedBy(recipient) {
		changed, err := s.convs.SetDeleted(ctx, c.ID, recipient, false)
		if err != nil {
			return false, fromStore(err, MsgConvNotFound)
		}
		resurrected = changed
		if recipient == model.SideBuyer {
			c.BuyerDeleted = false
		} else {
			c.SellerDeleted = false
		}
	} else if err := s.convs.Touch(ctx, c.ID); err != nil {
		log.Printf("conversation: touch %d failed: %v", c.ID, err)
	}
	if resurrected {
		s.broadcast(ctx, realtime.EventUpdate, c)
	}
	return resurrected, nil
}

// List returns the conversations actorID still sees, with unread counts.
func (s *ConversationService) List(ctx context.Context, actorID uint64) ([]*model.ConversationSummary, error) {
	if actorID == 0 {
		return nil, unauthenticated()
	}
	out, err := s.convs.ListForUser(ctx, actorID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return out, nil
}

func (s *ConversationService) broadcast(ctx context.Context, typ realtime.EventType, c *model.Conversation) {
	if s.feed == nil {
		return
	}
	ev, err := realtime.NewEvent(realtime.TableConversations, typ, c, nil)
	if err == nil {
		err = s.feed.Publish(ctx, ev,
			realtime.Eq("id", c.ID),
			realtime.Eq("buyer_id", c.BuyerID),
			realtime.Eq("seller_id", c.SellerID))
	}
	if err != nil {
		log.Printf("conversation: broadcast %s for %d failed: %v", typ, c.ID, err)
	}
}
