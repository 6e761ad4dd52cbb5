package service

import (
	"context"
	"testing"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/repository"
)

func TestStartOrResumeIsIdempotent(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)

	first, err := e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	mustOK(t, err)
	second, err := e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	mustOK(t, err)
	if first.ID != second.ID {
		t.Fatalf("ids differ: %d vs %d", first.ID, second.ID)
	}
	if len(e.db.convs) != 1 {
		t.Fatalf("%d conversation rows, want 1", len(e.db.convs))
	}
	if first.SellerID != sellerID || first.BuyerID != buyerID {
		t.Fatalf("participants %+v", first)
	}
}

func TestStartOrResumeRules(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)

	_, err := e.convs.StartOrResume(e.ctx, sellerID, l.ID)
	if se := wantKind(t, err, KindValidation); se.Msg != "You cannot message your own listing" {
		t.Fatalf("msg = %q", se.Msg)
	}
	_, err = e.convs.StartOrResume(e.ctx, buyerID, 424242)
	wantKind(t, err, KindNotFound)
	_, err = e.convs.StartOrResume(e.ctx, 0, l.ID)
	wantKind(t, err, KindUnauthenticated)

	pending, _ := e.listings.Submit(e.ctx, sellerID, sampleInput())
	_, err = e.convs.StartOrResume(e.ctx, buyerID, pending.ID)
	wantKind(t, err, KindNotFound)
}

func TestResumeAfterListingSoldStillWorks(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)
	c, _ := e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	_, err := e.listings.MarkSold(e.ctx, sellerID, l.ID, u64p(buyerID))
	mustOK(t, err)
	again, err := e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	mustOK(t, err)
	if again.ID != c.ID {
		t.Fatal("resume must return the existing conversation")
	}
}

// racingConvs reports no conversation on the first lookup while a row
// already exists, as when two starts for the same pair interleave.
type racingConvs struct {
	convFake
	lookups int
}

func (r *racingConvs) GetByListingAndBuyer(ctx context.Context, listingID, buyerID uint64) (*model.Conversation, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, repository.ErrNotFound
	}
	return r.convFake.GetByListingAndBuyer(ctx, listingID, buyerID)
}

func TestStartOrResumeHandlesDuplicateRace(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)
	winner, err := e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	mustOK(t, err)

	racing := &racingConvs{convFake: convFake{e.db}}
	svc := NewConversationService(racing, listingFake{e.db}, e.gate, nil)
	got, err := svc.StartOrResume(e.ctx, buyerID, l.ID)
	mustOK(t, err)
	if got.ID != winner.ID {
		t.Fatalf("got %d, want existing %d", got.ID, winner.ID)
	}
	if len(e.db.convs) != 1 {
		t.Fatal("no duplicate row may be created")
	}
}

func TestDeleteByBothSidesHardDeletes(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)
	c, _ := e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	_, err := e.msgs.Send(e.ctx, buyerID, c.ID, "Is this available?")
	mustOK(t, err)

	hard, err := e.convs.Delete(e.ctx, buyerID, c.ID)
	mustOK(t, err)
	if hard {
		t.Fatal("first delete must be soft")
	}
	stored, ok := e.conversation(c.ID)
	if !ok || !stored.BuyerDeleted || stored.SellerDeleted {
		t.Fatalf("after buyer delete: %+v", stored)
	}
	if msgs, _ := (msgFake{e.db}).ListByConversation(e.ctx, c.ID); len(msgs) != 1 {
		t.Fatal("soft delete must keep messages")
	}
	buyerList, _ := e.convs.List(e.ctx, buyerID)
	if len(buyerList) != 0 {
		t.Fatal("soft-deleted conversation must disappear for the buyer")
	}
	sellerList, _ := e.convs.List(e.ctx, sellerID)
	if len(sellerList) != 1 {
		t.Fatal("seller still sees the conversation")
	}

	hard, err = e.convs.Delete(e.ctx, sellerID, c.ID)
	mustOK(t, err)
	if !hard {
		t.Fatal("second delete must be hard")
	}
	if _, ok := e.conversation(c.ID); ok {
		t.Fatal("conversation row should be gone")
	}
	if msgs, _ := (msgFake{e.db}).ListByConversation(e.ctx, c.ID); len(msgs) != 0 {
		t.Fatal("messages should be gone")
	}

	_, err = e.convs.Delete(e.ctx, sellerID, c.ID)
	wantKind(t, err, KindNotFound)
}

func TestDeleteThenPeerMessageResurrects(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)
	c, _ := e.convs.StartOrResume(e.ctx, buyerID, l.ID)

	_, err := e.convs.Delete(e.ctx, buyerID, c.ID)
	mustOK(t, err)
	_, err = e.msgs.Send(e.ctx, sellerID, c.ID, "Still interested? I can lower the price")
	mustOK(t, err)

	stored, ok := e.conversation(c.ID)
	if !ok {
		t.Fatal("conversation must not be gone")
	}
	if stored.BuyerDeleted {
		t.Fatal("buyer_deleted should flip back to false")
	}
	list, _ := e.convs.List(e.ctx, buyerID)
	if len(list) != 1 || list[0].Unread != 1 {
		t.Fatalf("buyer list = %+v", list)
	}
}

func TestOwnMessageDoesNotResurrectOwnSide(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)
	c, _ := e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	_, err := e.convs.Delete(e.ctx, sellerID, c.ID)
	mustOK(t, err)

	// The seller sending clears only the buyer's flag, which is already clear.
	_, err = e.msgs.Send(e.ctx, sellerID, c.ID, "Sorry, wrong thread")
	mustOK(t, err)
	stored, _ := e.conversation(c.ID)
	if !stored.SellerDeleted {
		t.Fatal("sender's own delete flag must be left alone")
	}
}

func TestConcurrentSoftDeletesFinishAsHardDelete(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)
	c, _ := e.convs.StartOrResume(e.ctx, buyerID, l.ID)

	// The seller's flag lands after the buyer read the row but before the
	// buyer's own flag is written.
	_, _ = convFake{e.db}.SetDeleted(e.ctx, c.ID, model.SideSeller, true)
	stale := &staleConvs{convFake: convFake{e.db}, snapshot: *c}
	svc := NewConversationService(stale, listingFake{e.db}, e.gate, nil)

	hard, err := svc.Delete(e.ctx, buyerID, c.ID)
	mustOK(t, err)
	if !hard {
		t.Fatal("both flags set: conversation must be hard-deleted")
	}
	if _, ok := e.conversation(c.ID); ok {
		t.Fatal("conversation row should be gone")
	}
}

// staleConvs returns an outdated row on the first GetByID.
type staleConvs struct {
	convFake
	snapshot model.Conversation
	reads    int
}

func (s *staleConvs) GetByID(ctx context.Context, id uint64) (*model.Conversation, error) {
	s.reads++
	if s.reads == 1 {
		c := s.snapshot
		return &c, nil
	}
	return s.convFake.GetByID(ctx, id)
}

func TestDeleteRequiresParticipant(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)
	c, _ := e.convs.StartOrResume(e.ctx, buyerID, l.ID)

	_, err := e.convs.Delete(e.ctx, otherID, c.ID)
	if se := wantKind(t, err, KindNotFound); se.Msg != MsgConvNotFound {
		t.Fatalf("msg = %q", se.Msg)
	}
	_, err = e.convs.Delete(e.ctx, 0, c.ID)
	wantKind(t, err, KindUnauthenticated)
}

func TestBuyerResumeClearsOwnDeleteFlag(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)
	c, _ := e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	_, _ = e.convs.Delete(e.ctx, buyerID, c.ID)

	again, err := e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	mustOK(t, err)
	if again.ID != c.ID || again.BuyerDeleted {
		t.Fatalf("resume = %+v", again)
	}
	if stored, _ := e.conversation(c.ID); stored.BuyerDeleted {
		t.Fatal("stored buyer flag should be cleared")
	}
}
