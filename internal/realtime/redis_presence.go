package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresence is a PresenceStore keeping one hash per channel
// (presence:<channel>, field = connection id) and announcing joins and
// leaves on the presence:<channel>:events Pub/Sub topic.
type RedisPresence struct {
	rdb        *redis.Client
	staleAfter time.Duration
}

// NewRedisPresence returns a store dropping entries older than staleAfter.
func NewRedisPresence(rdb *redis.Client, staleAfter time.Duration) *RedisPresence {
	if staleAfter <= 0 {
		staleAfter = time.Minute
	}
	return &RedisPresence{rdb: rdb, staleAfter: staleAfter}
}

func presenceKey(channel string) string    { return "presence:" + channel }
func presenceEvents(channel string) string { return "presence:" + channel + ":events" }

// Track implements PresenceStore.
func (p *RedisPresence) Track(ctx context.Context, channel string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := presenceKey(channel)
	added, err := p.rdb.HSet(ctx, key, e.ConnID, b).Result()
	if err != nil {
		return err
	}
	// The hash outlives any single entry; idle channels vanish on their own.
	if err := p.rdb.Expire(ctx, key, 2*p.staleAfter).Err(); err != nil {
		log.Printf("presence: expire %s: %v", key, err)
	}
	if added > 0 {
		return p.rdb.Publish(ctx, presenceEvents(channel), "join").Err()
	}
	return nil
}

// Untrack implements PresenceStore.
func (p *RedisPresence) Untrack(ctx context.Context, channel, connID string) error {
	n, err := p.rdb.HDel(ctx, presenceKey(channel), connID).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return p.rdb.Publish(ctx, presenceEvents(channel), "leave").Err()
	}
	return nil
}

// Entries implements PresenceStore.  Stale entries are pruned.
func (p *RedisPresence) Entries(ctx context.Context, channel string) ([]Entry, error) {
	key := presenceKey(channel)
	raw, err := p.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]Entry, 0, len(raw))
	var stale []string
	for conn, v := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil || now.Sub(e.Timestamp) > p.staleAfter {
			stale = append(stale, conn)
			continue
		}
		out = append(out, e)
	}
	if len(stale) > 0 {
		if err := p.rdb.HDel(ctx, key, stale...).Err(); err != nil {
			log.Printf("presence: prune %s failed: %v", channel, err)
		}
	}
	return out, nil
}

// Watch implements PresenceStore.
func (p *RedisPresence) Watch(ctx context.Context, channel string) (PresenceWatch, error) {
	ps := p.rdb.Subscribe(ctx, presenceEvents(channel))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	w := &redisWatch{ps: ps, ch: make(chan struct{}, 1), done: make(chan struct{})}
	go w.run()
	return w, nil
}

type redisWatch struct {
	ps   *redis.PubSub
	ch   chan struct{}
	done chan struct{}
	once sync.Once
}

func (w *redisWatch) run() {
	defer close(w.ch)
	msgs := w.ps.Channel()
	for {
		select {
		case <-w.done:
			return
		case _, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case w.ch <- struct{}{}:
			default:
			}
		}
	}
}

func (w *redisWatch) C() <-chan struct{} { return w.ch }

func (w *redisWatch) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.ps.Close()
	})
	return err
}
