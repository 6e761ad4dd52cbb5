package realtime

import (
	"context"
	"testing"
	"time"
)

type row struct {
	ID             uint64 `json:"id"`
	ConversationID uint64 `json:"conversation_id"`
}

func recv(t *testing.T, s Subscription) Event {
	t.Helper()
	select {
	case ev := <-s.C():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func assertEmpty(t *testing.T, s Subscription) {
	t.Helper()
	select {
	case ev := <-s.C():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryFeedFiltersByColumnAndType(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFeed()

	conv1, err := f.Subscribe(ctx, TableMessages, Eq("conversation_id", 1), EventInsert)
	if err != nil {
		t.Fatal(err)
	}
	defer conv1.Close()
	all, _ := f.Subscribe(ctx, TableMessages, Filter{})
	defer all.Close()

	ev, _ := NewEvent(TableMessages, EventInsert, row{ID: 10, ConversationID: 1}, nil)
	_ = f.Publish(ctx, ev, Eq("conversation_id", 1))
	ev2, _ := NewEvent(TableMessages, EventInsert, row{ID: 11, ConversationID: 2}, nil)
	_ = f.Publish(ctx, ev2, Eq("conversation_id", 2))
	upd, _ := NewEvent(TableMessages, EventUpdate, row{ID: 10, ConversationID: 1}, nil)
	_ = f.Publish(ctx, upd, Eq("conversation_id", 1))

	var got row
	if err := recv(t, conv1).Decode(&got); err != nil || got.ID != 10 {
		t.Fatalf("conv1 got %+v, %v", got, err)
	}
	assertEmpty(t, conv1)

	for _, want := range []uint64{10, 11, 10} {
		var r row
		_ = recv(t, all).Decode(&r)
		if r.ID != want {
			t.Fatalf("table-wide subscriber got id %d, want %d", r.ID, want)
		}
	}
}

func TestMemoryFeedCloseStopsDelivery(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFeed()
	s, _ := f.Subscribe(ctx, TableMessages, Eq("recipient_id", 5))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	ev, _ := NewEvent(TableMessages, EventInsert, row{ID: 1}, nil)
	if err := f.Publish(ctx, ev, Eq("recipient_id", 5)); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-s.C(); ok {
		t.Fatal("expected closed channel")
	}
}

func TestPublishDeduplicatesTopics(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFeed()
	s, _ := f.Subscribe(ctx, TableMessages, Eq("recipient_id", 2))
	defer s.Close()
	ev, _ := NewEvent(TableMessages, EventInsert, row{ID: 1}, nil)
	_ = f.Publish(ctx, ev, Eq("recipient_id", 2), Eq("recipient_id", 2))
	recv(t, s)
	assertEmpty(t, s)
}
