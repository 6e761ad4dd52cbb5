package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/repository"
)

// ReviewService lets the buyer of a sold item rate the seller once.
type ReviewService struct {
	reviews  ReviewStore
	listings ListingStore
	gate     *Gate
}

// NewReviewService wires reviews.
func NewReviewService(reviews ReviewStore, listings ListingStore, gate *Gate) *ReviewService {
	return &ReviewService{reviews: reviews, listings: listings, gate: gate}
}

// Create records actorID's review of itemID.
func (s *ReviewService) Create(ctx context.Context, actorID, itemID uint64, rating int, comment string) (*model.Review, error) {
	if _, err := s.gate.Actor(ctx, actorID); err != nil {
		return nil, err
	}
	if rating < model.MinRating || rating > model.MaxRating {
		return nil, invalid(fmt.Sprintf("Rating must be between %d and %d", model.MinRating, model.MaxRating))
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > model.MaxReviewComment {
		return nil, invalid(fmt.Sprintf("Comment must be at most %d characters", model.MaxReviewComment))
	}
	l, err := s.listings.GetByID(ctx, itemID)
	if err != nil {
		return nil, fromStore(err, MsgListingNotFound)
	}
	if !l.IsPublic() {
		return nil, notFound(MsgListingNotFound)
	}
	if l.Status != model.ListingSold || l.BuyerID == nil || *l.BuyerID != actorID {
		return nil, unauthorized("")
	}
	if _, err := s.reviews.GetByItem(ctx, itemID); err == nil {
		return nil, conflict(MsgAlreadyReviewed)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeFailure(err)
	}
	rv := &model.Review{ItemID: itemID, BuyerID: actorID, SellerID: l.SellerID, Rating: rating, Comment: comment}
	if err := s.reviews.Create(ctx, rv); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict(MsgAlreadyReviewed)
		}
		return nil, fromStore(err, MsgListingNotFound)
	}
	return rv, nil
}

// ForSeller returns a seller's reviews with their average rating.
func (s *ReviewService) ForSeller(ctx context.Context, sellerID uint64) (*model.SellerRating, error) {
	rs, err := s.reviews.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, storeFailure(err)
	}
	out := &model.SellerRating{SellerID: sellerID, Count: len(rs), Reviews: rs}
	if out.Reviews == nil {
		out.Reviews = []*model.Review{}
	}
	if len(rs) > 0 {
		sum := 0
		for _, r := range rs {
			sum += r.Rating
		}
		out.Average = float64(sum) / float64(len(rs))
	}
	return out, nil
}
