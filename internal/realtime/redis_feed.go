package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisFeed is a Feed backed by Redis Pub/Sub.  Events are not persisted:
// a subscriber only sees what is published while it is connected.
type RedisFeed struct {
	rdb *redis.Client
}

// NewRedisFeed returns a Feed using rdb.
func NewRedisFeed(rdb *redis.Client) *RedisFeed { return &RedisFeed{rdb: rdb} }

// Publish implements Feed.
func (f *RedisFeed) Publish(ctx context.Context, ev Event, filters ...Filter) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := f.rdb.Pipeline()
	for _, t := range topics(ev.Table, filters) {
		pipe.Publish(ctx, t, payload)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Subscribe implements Feed.  It waits for the subscription confirmation
// before returning.
func (f *RedisFeed) Subscribe(ctx context.Context, table string, flt Filter, types ...EventType) (Subscription, error) {
	topic := flt.topic(table)
	ps := f.rdb.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	s := &redisSub{ps: ps, out: make(chan Event, subBuffer), done: make(chan struct{})}
	go s.run(topic, typeSet(types))
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	out  chan Event
	done chan struct{}
	once sync.Once
}

func (s *redisSub) run(topic string, types map[EventType]bool) {
	defer close(s.out)
	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				log.Printf("feed: bad payload on %s: %v", topic, err)
				continue
			}
			if types != nil && !types[ev.Type] {
				continue
			}
			select {
			case s.out <- ev:
			case <-s.done:
				return
			default:
				log.Printf("feed: dropping %s %s event for slow subscriber on %s", ev.Table, ev.Type, topic)
			}
		}
	}
}

func (s *redisSub) C() <-chan Event { return s.out }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
