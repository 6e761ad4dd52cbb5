package model

import "time"

// ListingStatus is the moderation state of a listing.
type ListingStatus string

const (
    ListingPending   ListingStatus = "pending"
    ListingAvailable ListingStatus = "available"
    ListingRejected  ListingStatus = "rejected"
    ListingHidden    ListingStatus = "hidden"
    ListingSold      ListingStatus = "sold"
    ListingDeleted   ListingStatus = "deleted"
)

// Valid reports whether s is one of the known statuses.
func (s ListingStatus) Valid() bool {
    switch s {
    case ListingPending, ListingAvailable, ListingRejected, ListingHidden, ListingSold, ListingDeleted:
        return true
    }
    return false
}

// Image limits applied after every submit and edit.
const (
    MinListingImages = 1
    MaxListingImages = 5
)

// Listing represents a sellable item as stored in the `listings` table.
// RejectionReason is only set while Status is rejected and HiddenReason
// only while Status is hidden; the two are never set together.  BuyerID
// is only set once the listing is sold and may stay nil for off-platform
// sales.
//
// Fields:
//  ID              – primary key identifier.
//  SellerID        – owner of the listing (accounts.id).
//  Status          – moderation state.
//  Title … ShowContact – owner-editable fields.
//  Images          – storage object keys, between 1 and 5.
//  PriceCents      – asking price in cents.
type Listing struct {
    ID              uint64        `json:"id"`                         // listings.id
    SellerID        uint64        `json:"seller_id"`                  // listings.seller_id
    Status          ListingStatus `json:"status"`                     // listings.status
    RejectionReason *string       `json:"rejection_reason,omitempty"` // listings.rejection_reason (nullable)
    HiddenReason    *string       `json:"hidden_reason,omitempty"`    // listings.hidden_reason (nullable)
    BuyerID         *uint64       `json:"buyer_id,omitempty"`         // listings.buyer_id (nullable)
    Title           string        `json:"title"`                      // listings.title
    PriceCents      int64         `json:"price_cents"`                // listings.price_cents
    Description     string        `json:"description"`                // listings.description
    Category        string        `json:"category"`                   // listings.category
    SubCategory     string        `json:"sub_category"`               // listings.sub_category
    Condition       string        `json:"condition"`                  // listings.item_condition
    Images          []string      `json:"images"`                     // listings.images (JSON array)
    MeetupArea      string        `json:"meetup_area"`                // listings.meetup_area
    ShowContact     bool          `json:"show_contact"`               // listings.show_contact
    CreatedAt       time.Time     `json:"created_at"`                 // listings.created_at
    UpdatedAt       time.Time     `json:"updated_at"`                 // listings.updated_at
}

// IsPublic reports whether anonymous visitors may see the listing.
func (l *Listing) IsPublic() bool {
    return l.Status == ListingAvailable || l.Status == ListingSold
}
