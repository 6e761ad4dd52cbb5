package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/realtime"
	"github.com/iliyamo/secondhand-market/internal/repository"
)

// MessageService is the server half of the message channel: it persists
// messages, resurrects conversations, flips read flags on behalf of the
// recipient and mirrors every change onto the feed.
type MessageService struct {
	msgs     MessageStore
	listings ListingStore
	convs    *ConversationService
	gate     *Gate
	feed     realtime.Feed
}

// NewMessageService wires message delivery.  feed may be nil.
func NewMessageService(msgs MessageStore, listings ListingStore, convs *ConversationService, gate *Gate, feed realtime.Feed) *MessageService {
	return &MessageService{msgs: msgs, listings: listings, convs: convs, gate: gate, feed: feed}
}

// ValidateContent trims message content and checks its length.
func ValidateContent(content string) (string, error) {
	c := strings.TrimSpace(content)
	if c == "" {
		return "", invalid("Message cannot be empty")
	}
	if utf8.RuneCountInString(c) > model.MaxMessageLength {
		return "", invalid(fmt.Sprintf("Message must be at most %d characters", model.MaxMessageLength))
	}
	return c, nil
}

// Send stores a message from actorID.  A conversation that was hard-deleted
// in the meantime yields NotFound; a conversation whose listing was deleted
// is read-only.
func (s *MessageService) Send(ctx context.Context, actorID, conversationID uint64, content string) (*model.Message, error) {
	body, err := ValidateContent(content)
	if err != nil {
		return nil, err
	}
	if _, err := s.gate.RequireActive(ctx, actorID); err != nil {
		return nil, err
	}
	c, _, err := s.convs.Participant(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	frozen, err := s.Frozen(ctx, c)
	if err != nil {
		return nil, err
	}
	if frozen {
		return nil, conflict("This listing has been removed; the conversation is read-only")
	}

	m := &model.Message{ConversationID: c.ID, SenderID: actorID, Content: body}
	if err := s.msgs.Create(ctx, m); err != nil {
		return nil, fromStore(err, MsgConvNotFound)
	}
	if _, err := s.convs.OnMessageSent(ctx, c, actorID); err != nil {
		// The message is stored; the next send retries the resurrection.
		log.Printf("message: resurrect conversation %d failed: %v", c.ID, err)
	}
	s.broadcast(ctx, realtime.EventInsert, m, c.Counterpart(actorID))
	return m, nil
}

// Frozen reports whether the conversation's listing was deleted, which
// freezes the composer while history stays readable.
func (s *MessageService) Frozen(ctx context.Context, c *model.Conversation) (bool, error) {
	l, err := s.listings.GetByID(ctx, c.ListingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, nil
		}
		return false, storeFailure(err)
	}
	return l.Status == model.ListingDeleted, nil
}

// History returns every message of a conversation in server order.
func (s *MessageService) History(ctx context.Context, actorID, conversationID uint64) ([]*model.Message, error) {
	c, _, err := s.convs.Participant(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	out, err := s.msgs.ListByConversation(ctx, c.ID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return out, nil
}

// MarkAllRead flips every unread message actorID received in the
// conversation.  Repeating it is harmless.  It returns the ids flipped.
func (s *MessageService) MarkAllRead(ctx context.Context, actorID, conversationID uint64) ([]uint64, error) {
	c, _, err := s.convs.Participant(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	ids, err := s.msgs.MarkAllRead(ctx, c.ID, actorID)
	if err != nil {
		return nil, storeFailure(err)
	}
	sender := c.Counterpart(actorID)
	for _, id := range ids {
		s.broadcast(ctx, realtime.EventUpdate, &model.Message{ID: id, ConversationID: c.ID, SenderID: sender, IsRead: true}, actorID)
	}
	return ids, nil
}

// MarkRead flips one received message.  It reports whether the flag
// changed; messages sent by actorID are never touched.
func (s *MessageService) MarkRead(ctx context.Context, actorID, conversationID, messageID uint64) (bool, error) {
	c, _, err := s.convs.Participant(ctx, actorID, conversationID)
	if err != nil {
		return false, err
	}
	ok, err := s.msgs.MarkRead(ctx, c.ID, messageID, actorID)
	if err != nil {
		return false, storeFailure(err)
	}
	if ok {
		sender := c.Counterpart(actorID)
		s.broadcast(ctx, realtime.EventUpdate, &model.Message{ID: messageID, ConversationID: c.ID, SenderID: sender, IsRead: true}, actorID)
	}
	return ok, nil
}

// UnreadCount counts unread messages addressed to actorID across every
// conversation they still see.
func (s *MessageService) UnreadCount(ctx context.Context, actorID uint64) (int64, error) {
	if actorID == 0 {
		return 0, unauthenticated()
	}
	n, err := s.msgs.CountUnread(ctx, actorID)
	if err != nil {
		return 0, storeFailure(err)
	}
	return n, nil
}

// broadcast publishes on the conversation topic and on the topic of the
// message's recipient, whose unread count the change affects.
func (s *MessageService) broadcast(ctx context.Context, typ realtime.EventType, m *model.Message, recipientID uint64) {
	if s.feed == nil {
		return
	}
	ev, err := realtime.NewEvent(realtime.TableMessages, typ, m, nil)
	if err == nil {
		err = s.feed.Publish(ctx, ev,
			realtime.Eq("conversation_id", m.ConversationID),
			realtime.Eq("recipient_id", recipientID))
	}
	if err != nil {
		log.Printf("message: broadcast %s for %d failed: %v", typ, m.ID, err)
	}
}
