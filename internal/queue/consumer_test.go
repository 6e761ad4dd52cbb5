package queue

import (
    "bytes"
    "encoding/json"
    "strings"
    "testing"
    "time"
)

func TestFormatAuditLine(t *testing.T) {
    until := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
    ev := ModerationEvent{
        Action:     ActionAccountBanned,
        ActorID:    1,
        TargetType: "account",
        TargetID:   42,
        Reason:     "repeated scam listings",
        Until:      &until,
        OccurredAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
    }
    got := FormatAuditLine(ev)
    want := `[2025-03-01T10:00:00Z] account.banned | actor_id=1 | account_id=42 | until=9999-12-31T00:00:00Z | reason="repeated scam listings"` + "\n"
    if got != want {
        t.Fatalf("line mismatch\n got: %s\nwant: %s", got, want)
    }
}

func TestHandleMessage(t *testing.T) {
    var buf bytes.Buffer
    body, _ := json.Marshal(ModerationEvent{Action: ActionListingHidden, ActorID: 2, TargetType: "listing", TargetID: 7})
    if err := handleMessage(&buf, body); err != nil {
        t.Fatalf("handleMessage: %v", err)
    }
    if !strings.Contains(buf.String(), "listing.hidden | actor_id=2 | listing_id=7") {
        t.Fatalf("unexpected line %q", buf.String())
    }

    if err := handleMessage(&buf, []byte("not json")); err == nil {
        t.Fatal("expected error for malformed body")
    }
    if err := handleMessage(&buf, []byte(`{"target_id":1}`)); err == nil {
        t.Fatal("expected error for event without action")
    }
}
