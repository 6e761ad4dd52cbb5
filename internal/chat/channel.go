// Package chat is the client half of the message channel.  A Channel
// holds the visible history of one open conversation, sends optimistically
// and keeps itself current from the change feed.
package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/realtime"
)

// ErrFrozen is returned by Send once the conversation's listing is gone.
var ErrFrozen = errors.New("chat: conversation is read-only")

// ErrClosed is returned by operations on a closed Channel.
var ErrClosed = errors.New("chat: channel closed")

// Backend is the server side the channel talks to.  service.MessageService
// satisfies it.
type Backend interface {
	History(ctx context.Context, actorID, conversationID uint64) ([]*model.Message, error)
	Send(ctx context.Context, actorID, conversationID uint64, content string) (*model.Message, error)
	MarkAllRead(ctx context.Context, actorID, conversationID uint64) ([]uint64, error)
}

// Item is one line of the visible history.  Provisional items have not
// been confirmed by the server yet and carry a negative LocalID.
type Item struct {
	LocalID     int64         `json:"local_id"`
	Message     model.Message `json:"message"`
	Provisional bool          `json:"provisional"`
}

// UpdateKind tells what an Update carries.
type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdateRead    UpdateKind = "read"
	UpdateFrozen  UpdateKind = "frozen"
)

// Update is pushed on Updates for every change a viewer should render:
// a peer message, read receipts for the viewer's own messages, or the
// conversation becoming read-only.
type Update struct {
	Kind    UpdateKind     `json:"kind"`
	Message *model.Message `json:"message,omitempty"`
	IDs     []uint64       `json:"ids,omitempty"`
}

// Options configure Open.
type Options struct {
	Identity     uint64
	Conversation *model.Conversation
	// Frozen is the read-only state at open time.
	Frozen bool
	// Focused marks the conversation as the one on screen, which turns on
	// automatic read receipts.
	Focused bool
}

// Channel is an open conversation.  All methods are safe for concurrent use.
type Channel struct {
	backend  Backend
	identity uint64
	conv     model.Conversation

	msgs     realtime.Subscription
	listings realtime.Subscription

	mu        sync.Mutex
	items     []Item
	known     map[uint64]bool
	read      map[uint64]bool
	nextLocal int64
	draft     string
	frozen    bool
	focused   bool
	closed    bool

	updates   chan Update
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Open subscribes to the conversation's messages and listing before
// loading history, so nothing written in between is missed, then starts
// the delivery loop.  The caller must Close the channel.
func Open(ctx context.Context, backend Backend, feed realtime.Feed, opts Options) (*Channel, error) {
	if opts.Identity == 0 || opts.Conversation == nil {
		return nil, errors.New("chat: identity and conversation are required")
	}
	c := &Channel{
		backend:  backend,
		identity: opts.Identity,
		conv:     *opts.Conversation,
		known:    make(map[uint64]bool),
		read:     make(map[uint64]bool),
		frozen:   opts.Frozen,
		focused:  opts.Focused,
		updates:  make(chan Update, 16),
		done:     make(chan struct{}),
	}
	var err error
	c.msgs, err = feed.Subscribe(ctx, realtime.TableMessages,
		realtime.Eq("conversation_id", c.conv.ID), realtime.EventInsert, realtime.EventUpdate)
	if err != nil {
		return nil, err
	}
	c.listings, err = feed.Subscribe(ctx, realtime.TableListings,
		realtime.Eq("id", c.conv.ListingID), realtime.EventUpdate, realtime.EventDelete)
	if err != nil {
		c.msgs.Close()
		return nil, err
	}

	history, err := backend.History(ctx, c.identity, c.conv.ID)
	if err != nil {
		c.msgs.Close()
		c.listings.Close()
		return nil, err
	}
	for _, m := range history {
		c.known[m.ID] = true
		c.items = append(c.items, Item{LocalID: int64(m.ID), Message: *m})
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if c.focused {
		c.markAllRead(loopCtx)
	}
	go c.loop(loopCtx)
	return c, nil
}

// Updates delivers changes for the viewer.  It is closed by Close.
func (c *Channel) Updates() <-chan Update { return c.updates }

// Items returns a snapshot of the visible history.
func (c *Channel) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item(nil), c.items...)
}

// Frozen reports whether the conversation has become read-only.
func (c *Channel) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// Draft returns the composer content, which a failed Send restores.
func (c *Channel) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetDraft replaces the composer content.
func (c *Channel) SetDraft(s string) {
	c.mu.Lock()
	c.draft = s
	c.mu.Unlock()
}

// SetFocused changes whether the conversation is on screen.  Gaining focus
// marks everything received so far as read.
func (c *Channel) SetFocused(ctx context.Context, focused bool) {
	c.mu.Lock()
	was := c.focused
	c.focused = focused
	c.mu.Unlock()
	if focused && !was {
		c.markAllRead(ctx)
	}
}

// Send shows content immediately under a provisional id, then persists it.
// On success the provisional item is confirmed in place; on failure it is
// removed and content goes back to the draft.
func (c *Channel) Send(ctx context.Context, content string) (*model.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.frozen {
		c.mu.Unlock()
		return nil, ErrFrozen
	}
	c.nextLocal--
	local := c.nextLocal
	c.items = append(c.items, Item{
		LocalID:     local,
		Message:     model.Message{ConversationID: c.conv.ID, SenderID: c.identity, Content: strings.TrimSpace(content)},
		Provisional: true,
	})
	c.draft = ""
	c.mu.Unlock()

	m, err := c.backend.Send(ctx, c.identity, c.conv.ID, content)

	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(local)
	if err != nil {
		if i >= 0 {
			c.items = append(c.items[:i], c.items[i+1:]...)
		}
		c.draft = content
		return nil, err
	}
	if c.closed {
		return m, nil
	}
	c.known[m.ID] = true
	if i >= 0 {
		confirmed := *m
		// A receipt can beat the confirmation; the loop skipped it then.
		if c.read[m.ID] && !confirmed.IsRead {
			confirmed.IsRead = true
			select {
			case c.updates <- Update{Kind: UpdateRead, IDs: []uint64{m.ID}}:
			default:
			}
		}
		c.items[i] = Item{LocalID: int64(m.ID), Message: confirmed}
	}
	return m, nil
}

func (c *Channel) indexLocked(localID int64) int {
	for i := range c.items {
		if c.items[i].LocalID == localID {
			return i
		}
	}
	return -1
}

func (c *Channel) markAllRead(ctx context.Context) {
	ids, err := c.backend.MarkAllRead(ctx, c.identity, c.conv.ID)
	if err != nil {
		log.Printf("chat: mark read in %d failed: %v", c.conv.ID, err)
		return
	}
	c.mu.Lock()
	c.applyReadLocked(ids)
	c.mu.Unlock()
}

// applyReadLocked sets IsRead on the given ids.  Flags never go back to
// false, so receipts may arrive in any order or more than once.
func (c *Channel) applyReadLocked(ids []uint64) []uint64 {
	set := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
		c.read[id] = true
	}
	var changed []uint64
	for i := range c.items {
		it := &c.items[i]
		if !it.Provisional && set[it.Message.ID] && !it.Message.IsRead {
			it.Message.IsRead = true
			changed = append(changed, it.Message.ID)
		}
	}
	return changed
}

func (c *Channel) loop(ctx context.Context) {
	defer close(c.done)
	msgs, listings := c.msgs.C(), c.listings.C()
	for msgs != nil || listings != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			c.onMessage(ctx, ev)
		case ev, ok := <-listings:
			if !ok {
				listings = nil
				continue
			}
			c.onListing(ctx, ev)
		}
	}
}

func (c *Channel) onMessage(ctx context.Context, ev realtime.Event) {
	var m model.Message
	if err := ev.Decode(&m); err != nil {
		log.Printf("chat: bad message event: %v", err)
		return
	}
	if m.ConversationID != c.conv.ID {
		return
	}
	switch ev.Type {
	case realtime.EventInsert:
		c.mu.Lock()
		// Our own inserts were already shown optimistically, and an id we
		// hold came in with the history load.
		if m.SenderID == c.identity || c.known[m.ID] {
			c.mu.Unlock()
			return
		}
		c.known[m.ID] = true
		c.items = append(c.items, Item{LocalID: int64(m.ID), Message: m})
		focused := c.focused
		c.mu.Unlock()
		c.push(ctx, Update{Kind: UpdateMessage, Message: &m})
		if focused {
			c.markAllRead(ctx)
		}
	case realtime.EventUpdate:
		if !m.IsRead {
			return
		}
		c.mu.Lock()
		changed := c.applyReadLocked([]uint64{m.ID})
		c.mu.Unlock()
		if len(changed) > 0 && m.SenderID == c.identity {
			c.push(ctx, Update{Kind: UpdateRead, IDs: changed})
		}
	}
}

func (c *Channel) onListing(ctx context.Context, ev realtime.Event) {
	if ev.Type == realtime.EventUpdate {
		var l model.Listing
		if err := ev.Decode(&l); err != nil {
			log.Printf("chat: bad listing event: %v", err)
			return
		}
		if l.Status != model.ListingDeleted {
			return
		}
	}
	c.mu.Lock()
	was := c.frozen
	c.frozen = true
	c.mu.Unlock()
	if !was {
		c.push(ctx, Update{Kind: UpdateFrozen})
	}
}

func (c *Channel) push(ctx context.Context, u Update) {
	select {
	case c.updates <- u:
	case <-ctx.Done():
	}
}

// Close releases both subscriptions and stops delivery.  It is safe to
// call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.cancel()
		c.msgs.Close()
		c.listings.Close()
		<-c.done
		close(c.updates)
	})
	return nil
}
