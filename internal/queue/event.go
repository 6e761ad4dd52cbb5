// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// ModerationQueueName is the durable queue every moderation and lifecycle
// event is routed to.
const ModerationQueueName = "marketplace.moderation"

// Moderation actions carried by ModerationEvent.Action.
const (
    ActionListingApproved = "listing.approved"
    ActionListingRejected = "listing.rejected"
    ActionListingHidden   = "listing.hidden"
    ActionListingUnhidden = "listing.unhidden"
    ActionListingDeleted  = "listing.deleted"
    ActionListingPurged   = "listing.purged"
    ActionListingSold     = "listing.sold"
    ActionAccountBanned   = "account.banned"
    ActionAccountUnbanned = "account.unbanned"
    ActionAccountDeleted  = "account.deleted"
    ActionReportDismissed = "report.dismissed"
    ActionReportResolved  = "report.resolved"
)

// ModerationEvent is published after a moderation transition has been
// persisted.  It carries enough context for the audit log without
// querying the primary database.
type ModerationEvent struct {
    Action     string     `json:"action"`
    ActorID    uint64     `json:"actor_id"`
    TargetType string     `json:"target_type"`
    TargetID   uint64     `json:"target_id"`
    Reason     string     `json:"reason,omitempty"`
    Until      *time.Time `json:"until,omitempty"`
    OccurredAt time.Time  `json:"occurred_at"`
}
