package model

import "time"

// Rating bounds and comment limit for reviews.
const (
    MinRating        = 1
    MaxRating        = 5
    MaxReviewComment = 500
)

// Review is a buyer's rating of a sold item.  At most one review exists
// per ItemID.
type Review struct {
    ID        uint64    `json:"id"`        // reviews.id
    ItemID    uint64    `json:"item_id"`   // reviews.item_id (listings.id)
    BuyerID   uint64    `json:"buyer_id"`  // reviews.buyer_id
    SellerID  uint64    `json:"seller_id"` // reviews.seller_id
    Rating    int       `json:"rating"`    // reviews.rating
    Comment   string    `json:"comment"`   // reviews.comment
    CreatedAt time.Time `json:"created_at"`
}

// SellerRating aggregates the reviews received by a seller.
type SellerRating struct {
    SellerID uint64    `json:"seller_id"`
    Count    int       `json:"count"`
    Average  float64   `json:"average"`
    Reviews  []*Review `json:"reviews"`
}
