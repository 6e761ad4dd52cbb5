// Package realtime provides the change-feed and presence primitives used
// by the chat surface.  Both come with a Redis implementation for
// multi-instance deployments and an in-process one for single-node runs
// and tests.
package realtime

import (
	"context"
	"encoding/json"
	"strconv"
)

// Tables published on the feed.
const (
	TableMessages      = "messages"
	TableConversations = "conversations"
	TableListings      = "listings"
)

// EventType is the kind of row change carried by an Event.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one row-level change.  Row holds the new row (or the removed
// row for deletes) and Old the previous row for updates when known.
type Event struct {
	Table string          `json:"table"`
	Type  EventType       `json:"type"`
	Row   json.RawMessage `json:"row"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// NewEvent marshals row and old into an Event.  old may be nil.
func NewEvent(table string, typ EventType, row, old any) (Event, error) {
	ev := Event{Table: table, Type: typ}
	b, err := json.Marshal(row)
	if err != nil {
		return Event{}, err
	}
	ev.Row = b
	if old != nil {
		if ev.Old, err = json.Marshal(old); err != nil {
			return Event{}, err
		}
	}
	return ev, nil
}

// Decode unmarshals the event row into v.
func (e Event) Decode(v any) error { return json.Unmarshal(e.Row, v) }

// Filter selects the events of a table whose column equals a value.  The
// zero Filter matches every event of the table.
type Filter struct {
	Column string
	Value  string
}

// Eq builds a Filter on an id column.
func Eq(column string, id uint64) Filter {
	return Filter{Column: column, Value: strconv.FormatUint(id, 10)}
}

func (f Filter) topic(table string) string {
	if f.Column == "" {
		return "feed:" + table
	}
	return "feed:" + table + ":" + f.Column + "=" + f.Value
}

// Feed is a publish/subscribe change-feed keyed by table and filter.
// Publish delivers ev to the table-wide topic and to every given filter.
type Feed interface {
	Publish(ctx context.Context, ev Event, filters ...Filter) error
	// Subscribe returns once the subscription is live, so a caller that
	// subscribes and then reads history never misses an event in between.
	// An empty types list accepts every event type.
	Subscribe(ctx context.Context, table string, f Filter, types ...EventType) (Subscription, error)
}

// Subscription is a live feed subscription.  C is closed after Close.
type Subscription interface {
	C() <-chan Event
	Close() error
}

func typeSet(types []EventType) map[EventType]bool {
	if len(types) == 0 {
		return nil
	}
	m := make(map[EventType]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

func topics(table string, filters []Filter) []string {
	out := []string{Filter{}.topic(table)}
	seen := map[string]bool{out[0]: true}
	for _, f := range filters {
		t := f.topic(table)
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// subBuffer bounds the per-subscription queue; slow readers lose events
// rather than stalling publishers.
const subBuffer = 64
