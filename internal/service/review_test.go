package service

import (
	"strings"
	"testing"
)

func TestBuyerReviewsSoldItemOnce(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)
	c, err := e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	mustOK(t, err)
	_, err = e.msgs.Send(e.ctx, buyerID, c.ID, "Is this available?")
	mustOK(t, err)

	// Not sold yet.
	_, err = e.reviews.Create(e.ctx, buyerID, l.ID, 5, "")
	wantKind(t, err, KindUnauthorized)

	_, err = e.listings.MarkSold(e.ctx, sellerID, l.ID, u64p(buyerID))
	mustOK(t, err)

	for _, who := range []uint64{sellerID, otherID, adminID} {
		_, err = e.reviews.Create(e.ctx, who, l.ID, 5, "")
		wantKind(t, err, KindUnauthorized)
	}

	rv, err := e.reviews.Create(e.ctx, buyerID, l.ID, 4, "  Smooth handover  ")
	mustOK(t, err)
	if rv.SellerID != sellerID || rv.Comment != "Smooth handover" {
		t.Fatalf("review %+v", rv)
	}

	_, err = e.reviews.Create(e.ctx, buyerID, l.ID, 5, "again")
	if se := wantKind(t, err, KindConflict); !strings.Contains(se.Msg, "already reviewed") {
		t.Fatalf("msg = %q", se.Msg)
	}
}

func TestReviewValidation(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)
	_, _ = e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	_, _ = e.listings.MarkSold(e.ctx, sellerID, l.ID, u64p(buyerID))

	for _, r := range []int{0, 6, -1} {
		_, err := e.reviews.Create(e.ctx, buyerID, l.ID, r, "")
		wantKind(t, err, KindValidation)
	}
	_, err := e.reviews.Create(e.ctx, buyerID, l.ID, 3, strings.Repeat("a", 501))
	wantKind(t, err, KindValidation)
	_, err = e.reviews.Create(e.ctx, buyerID, 12345, 3, "")
	wantKind(t, err, KindNotFound)
}

func TestSellerRating(t *testing.T) {
	e := newEnv(t)
	for _, rating := range []int{5, 2} {
		l := e.availableListing(t)
		_, _ = e.convs.StartOrResume(e.ctx, buyerID, l.ID)
		_, err := e.listings.MarkSold(e.ctx, sellerID, l.ID, u64p(buyerID))
		mustOK(t, err)
		_, err = e.reviews.Create(e.ctx, buyerID, l.ID, rating, "")
		mustOK(t, err)
	}
	sr, err := e.reviews.ForSeller(e.ctx, sellerID)
	mustOK(t, err)
	if sr.Count != 2 || sr.Average != 3.5 {
		t.Fatalf("rating %+v", sr)
	}
	empty, err := e.reviews.ForSeller(e.ctx, otherID)
	mustOK(t, err)
	if empty.Count != 0 || empty.Reviews == nil {
		t.Fatalf("empty rating %+v", empty)
	}
}
