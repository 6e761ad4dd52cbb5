package realtime

import (
	"context"
	"log"
	"sync"
)

// MemoryFeed is an in-process Feed.
type MemoryFeed struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySub]struct{}
}

// NewMemoryFeed returns an empty MemoryFeed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[*memorySub]struct{})}
}

type memorySub struct {
	feed  *MemoryFeed
	topic string
	types map[EventType]bool

	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *memorySub) C() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.feed.mu.Lock()
	delete(s.feed.subs[s.topic], s)
	if len(s.feed.subs[s.topic]) == 0 {
		delete(s.feed.subs, s.topic)
	}
	s.feed.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

func (s *memorySub) deliver(ev Event) {
	if s.types != nil && !s.types[ev.Type] {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		log.Printf("feed: dropping %s %s event for slow subscriber on %s", ev.Table, ev.Type, s.topic)
	}
}

// Publish implements Feed.
func (f *MemoryFeed) Publish(_ context.Context, ev Event, filters ...Filter) error {
	f.mu.RLock()
	var targets []*memorySub
	for _, t := range topics(ev.Table, filters) {
		for s := range f.subs[t] {
			targets = append(targets, s)
		}
	}
	f.mu.RUnlock()
	for _, s := range targets {
		s.deliver(ev)
	}
	return nil
}

// Subscribe implements Feed.
func (f *MemoryFeed) Subscribe(_ context.Context, table string, flt Filter, types ...EventType) (Subscription, error) {
	s := &memorySub{feed: f, topic: flt.topic(table), types: typeSet(types), ch: make(chan Event, subBuffer)}
	f.mu.Lock()
	if f.subs[s.topic] == nil {
		f.subs[s.topic] = make(map[*memorySub]struct{})
	}
	f.subs[s.topic][s] = struct{}{}
	f.mu.Unlock()
	return s, nil
}
