package realtime

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one tracked presence announcement.  A single identity holds one
// entry per connection (tab, device).
type Entry struct {
	IdentityID uint64    `json:"identity_id"`
	ConnID     string    `json:"conn_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// PresenceStore is the ephemeral presence channel.  It is not backed by
// persisted rows; entries whose timestamp is older than the store's stale
// window are dropped.
type PresenceStore interface {
	Track(ctx context.Context, channel string, e Entry) error
	Untrack(ctx context.Context, channel, connID string) error
	Entries(ctx context.Context, channel string) ([]Entry, error)
	// Watch signals on every join or leave.  Signals are coalesced.
	Watch(ctx context.Context, channel string) (PresenceWatch, error)
}

// PresenceWatch is a live presence subscription.
type PresenceWatch interface {
	C() <-chan struct{}
	Close() error
}

// DistinctIdentities counts the identities behind entries; several
// connections of one identity count once.
func DistinctIdentities(entries []Entry) int {
	seen := make(map[uint64]struct{}, len(entries))
	for _, e := range entries {
		seen[e.IdentityID] = struct{}{}
	}
	return len(seen)
}

// Tracker joins identities to one presence channel and reports how many
// distinct identities are online.
type Tracker struct {
	store     PresenceStore
	channel   string
	heartbeat time.Duration
}

// NewTracker returns a Tracker for channel.  Sessions re-announce
// themselves every heartbeat.
func NewTracker(store PresenceStore, channel string, heartbeat time.Duration) *Tracker {
	if heartbeat <= 0 {
		heartbeat = 20 * time.Second
	}
	return &Tracker{store: store, channel: channel, heartbeat: heartbeat}
}

// StaleAfter is how long an entry survives without a heartbeat.
func StaleAfter(heartbeat time.Duration) time.Duration { return 3 * heartbeat }

// Session is one tracked connection.  It must be released with Leave.
type Session struct {
	tracker    *Tracker
	IdentityID uint64
	ConnID     string

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Join announces identityID on the channel under a fresh connection id and
// keeps the entry alive until Leave.
func (t *Tracker) Join(ctx context.Context, identityID uint64) (*Session, error) {
	if identityID == 0 {
		return nil, errors.New("presence: identity required")
	}
	s := &Session{
		tracker:    t,
		IdentityID: identityID,
		ConnID:     uuid.NewString(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if err := t.store.Track(ctx, t.channel, s.entry()); err != nil {
		return nil, err
	}
	go s.heartbeat()
	return s, nil
}

func (s *Session) entry() Entry {
	return Entry{IdentityID: s.IdentityID, ConnID: s.ConnID, Timestamp: time.Now().UTC()}
}

func (s *Session) heartbeat() {
	defer close(s.done)
	tick := time.NewTicker(s.tracker.heartbeat)
	defer tick.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-tick.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.tracker.heartbeat)
			if err := s.tracker.store.Track(ctx, s.tracker.channel, s.entry()); err != nil {
				log.Printf("presence: heartbeat for identity %d failed: %v", s.IdentityID, err)
			}
			cancel()
		}
	}
}

// Leave stops the heartbeat and removes the entry.  Safe to call twice.
func (s *Session) Leave() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.tracker.store.Untrack(ctx, s.tracker.channel, s.ConnID)
	})
	return err
}

// Online returns the number of distinct identities on the channel.
func (t *Tracker) Online(ctx context.Context) (int, error) {
	entries, err := t.store.Entries(ctx, t.channel)
	if err != nil {
		return 0, err
	}
	return DistinctIdentities(entries), nil
}

// Counts streams the distinct-identity count: once immediately, then on
// every join or leave, and on every heartbeat so stale entries age out.
// Repeated values are suppressed.  The channel closes when ctx is done.
func (t *Tracker) Counts(ctx context.Context) (<-chan int, error) {
	w, err := t.store.Watch(ctx, t.channel)
	if err != nil {
		return nil, err
	}
	out := make(chan int, 1)
	go func() {
		defer close(out)
		defer w.Close()
		tick := time.NewTicker(t.heartbeat)
		defer tick.Stop()
		last := -1
		emit := func() bool {
			n, err := t.Online(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("presence: count failed: %v", err)
				}
				return true
			}
			if n == last {
				return true
			}
			select {
			case out <- n:
				last = n
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-w.C():
				if !ok {
					return
				}
			case <-tick.C:
			}
			if !emit() {
				return
			}
		}
	}()
	return out, nil
}

// Client holds at most one Session for the identity currently signed in on
// a view.  Switching identity always leaves the previous session first.
type Client struct {
	tracker *Tracker
	mu      sync.Mutex
	session *Session
}

// NewClient returns a Client with no identity.
func NewClient(t *Tracker) *Client { return &Client{tracker: t} }

// SetIdentity leaves any current session and, unless identityID is 0
// (signed out), joins under the new identity.  Setting the identity that
// is already joined is a no-op.
func (c *Client) SetIdentity(ctx context.Context, identityID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.IdentityID == identityID {
		return nil
	}
	if c.session != nil {
		if err := c.session.Leave(); err != nil {
			log.Printf("presence: leave for identity %d failed: %v", c.session.IdentityID, err)
		}
		c.session = nil
	}
	if identityID == 0 {
		return nil
	}
	s, err := c.tracker.Join(ctx, identityID)
	if err != nil {
		return err
	}
	c.session = s
	return nil
}

// Session returns the current session, nil when signed out.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Close leaves the current session.
func (c *Client) Close() error { return c.SetIdentity(context.Background(), 0) }
