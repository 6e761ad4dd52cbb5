package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/secondhand-market/internal/realtime"
)

// UnreadSource counts the unread messages addressed to a viewer.
// service.MessageService satisfies it.
type UnreadSource interface {
	UnreadCount(ctx context.Context, actorID uint64) (int64, error)
}

// UnreadCounter keeps a viewer's global unread count.  Polling on a fixed
// interval is the guarantee; feed events on the viewer's recipient topic
// only trigger an early recount.
type UnreadCounter struct {
	src      UnreadSource
	identity uint64
	interval time.Duration

	sub    realtime.Subscription
	nudge  chan struct{}
	out    chan int64
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartUnread starts counting for identity.  feed may be nil, in which
// case the counter only polls.
func StartUnread(ctx context.Context, src UnreadSource, feed realtime.Feed, identity uint64, interval time.Duration) (*UnreadCounter, error) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	u := &UnreadCounter{
		src:      src,
		identity: identity,
		interval: interval,
		nudge:    make(chan struct{}, 1),
		out:      make(chan int64, 1),
		done:     make(chan struct{}),
	}
	if feed != nil {
		sub, err := feed.Subscribe(ctx, realtime.TableMessages, realtime.Eq("recipient_id", identity))
		if err != nil {
			return nil, err
		}
		u.sub = sub
	}
	runCtx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	go u.run(runCtx)
	return u, nil
}

// Counts emits the first count and then every change.  It is closed by Close.
func (u *UnreadCounter) Counts() <-chan int64 { return u.out }

// Nudge asks for a recount ahead of the next tick.
func (u *UnreadCounter) Nudge() {
	select {
	case u.nudge <- struct{}{}:
	default:
	}
}

func (u *UnreadCounter) run(ctx context.Context) {
	defer close(u.done)
	defer close(u.out)

	var events <-chan realtime.Event
	if u.sub != nil {
		events = u.sub.C()
	}
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	last := int64(-1)
	recount := func() {
		n, err := u.src.UnreadCount(ctx, u.identity)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("unread: count for %d failed: %v", u.identity, err)
			}
			return
		}
		if n == last {
			return
		}
		last = n
		select {
		case u.out <- n:
		case <-ctx.Done():
		}
	}

	recount()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recount()
		case <-u.nudge:
			recount()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			recount()
		}
	}
}

// Close stops the counter.  It is safe to call more than once.
func (u *UnreadCounter) Close() error {
	u.once.Do(func() {
		u.cancel()
		if u.sub != nil {
			u.sub.Close()
		}
		<-u.done
	})
	return nil
}
