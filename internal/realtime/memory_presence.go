package realtime

import (
	"context"
	"sync"
	"time"
)

// MemoryPresence is an in-process PresenceStore.
type MemoryPresence struct {
	staleAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	entries  map[string]map[string]Entry
	watchers map[string]map[*memoryWatch]struct{}
}

// NewMemoryPresence returns a store dropping entries older than
// staleAfter; zero disables expiry.
func NewMemoryPresence(staleAfter time.Duration) *MemoryPresence {
	return &MemoryPresence{
		staleAfter: staleAfter,
		now:        time.Now,
		entries:    make(map[string]map[string]Entry),
		watchers:   make(map[string]map[*memoryWatch]struct{}),
	}
}

type memoryWatch struct {
	store   *MemoryPresence
	channel string
	ch      chan struct{}
	once    sync.Once
}

func (w *memoryWatch) C() <-chan struct{} { return w.ch }

func (w *memoryWatch) Close() error {
	w.once.Do(func() {
		w.store.mu.Lock()
		delete(w.store.watchers[w.channel], w)
		w.store.mu.Unlock()
		close(w.ch)
	})
	return nil
}

// notify must be called with mu held.
func (p *MemoryPresence) notify(channel string) {
	for w := range p.watchers[channel] {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}

// Track implements PresenceStore.
func (p *MemoryPresence) Track(_ context.Context, channel string, e Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.entries[channel]
	if m == nil {
		m = make(map[string]Entry)
		p.entries[channel] = m
	}
	_, existed := m[e.ConnID]
	m[e.ConnID] = e
	if !existed {
		p.notify(channel)
	}
	return nil
}

// Untrack implements PresenceStore.
func (p *MemoryPresence) Untrack(_ context.Context, channel, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[channel][connID]; ok {
		delete(p.entries[channel], connID)
		p.notify(channel)
	}
	return nil
}

// Entries implements PresenceStore.
func (p *MemoryPresence) Entries(_ context.Context, channel string) ([]Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	out := make([]Entry, 0, len(p.entries[channel]))
	for id, e := range p.entries[channel] {
		if p.staleAfter > 0 && now.Sub(e.Timestamp) > p.staleAfter {
			delete(p.entries[channel], id)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Watch implements PresenceStore.
func (p *MemoryPresence) Watch(_ context.Context, channel string) (PresenceWatch, error) {
	w := &memoryWatch{store: p, channel: channel, ch: make(chan struct{}, 1)}
	p.mu.Lock()
	if p.watchers[channel] == nil {
		p.watchers[channel] = make(map[*memoryWatch]struct{})
	}
	p.watchers[channel][w] = struct{}{}
	p.mu.Unlock()
	return w, nil
}
