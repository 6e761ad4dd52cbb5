package model

import "time"

// Side identifies one party of a conversation.
type Side string

const (
    SideBuyer  Side = "buyer"
    SideSeller Side = "seller"
)

// Conversation represents a private buyer/seller thread about one
// listing, stored in the `conversations` table.  Exactly one row exists
// per (ListingID, BuyerID).  Each side hides the thread independently
// through its delete flag; the row is removed once both flags are set.
type Conversation struct {
    ID            uint64    `json:"id"`             // conversations.id
    ListingID     uint64    `json:"listing_id"`     // conversations.listing_id
    BuyerID       uint64    `json:"buyer_id"`       // conversations.buyer_id
    SellerID      uint64    `json:"seller_id"`      // conversations.seller_id
    BuyerDeleted  bool      `json:"buyer_deleted"`  // conversations.buyer_deleted
    SellerDeleted bool      `json:"seller_deleted"` // conversations.seller_deleted
    CreatedAt     time.Time `json:"created_at"`     // conversations.created_at
    UpdatedAt     time.Time `json:"updated_at"`     // conversations.updated_at
}

// Active reports whether neither party has deleted the conversation.
func (c *Conversation) Active() bool { return !c.BuyerDeleted && !c.SellerDeleted }

// SideOf returns the side userID plays, or false when userID is not a
// participant.
func (c *Conversation) SideOf(userID uint64) (Side, bool) {
    switch userID {
    case c.BuyerID:
        return SideBuyer, true
    case c.SellerID:
        return SideSeller, true
    }
    return "", false
}

// Counterpart returns the participant opposite userID.
func (c *Conversation) Counterpart(userID uint64) uint64 {
    if userID == c.BuyerID {
        return c.SellerID
    }
    return c.BuyerID
}

// DeletedBy reports the delete flag of the given side.
func (c *Conversation) DeletedBy(s Side) bool {
    if s == SideBuyer {
        return c.BuyerDeleted
    }
    return c.SellerDeleted
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
    if s == SideBuyer {
        return SideSeller
    }
    return SideBuyer
}

// ConversationSummary is a conversation as listed for one participant.
type ConversationSummary struct {
    Conversation
    ListingTitle  string        `json:"listing_title"`
    ListingStatus ListingStatus `json:"listing_status"`
    Unread        int64         `json:"unread"`
}
