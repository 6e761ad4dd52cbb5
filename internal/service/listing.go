package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/queue"
	"github.com/iliyamo/secondhand-market/internal/realtime"
	"github.com/iliyamo/secondhand-market/internal/repository"
)

// ListingService owns the listing state machine.  Every mutation re-reads
// the listing and the actor before deciding, then writes the whole row.
type ListingService struct {
	listings ListingStore
	convs    ConversationStore
	gate     *Gate
	files    FileStore
	feed     realtime.Feed
	events   EventPublisher
}

// NewListingService wires the lifecycle.  files, feed and events may be nil.
func NewListingService(listings ListingStore, convs ConversationStore, gate *Gate, files FileStore, feed realtime.Feed, events EventPublisher) *ListingService {
	return &ListingService{listings: listings, convs: convs, gate: gate, files: files, feed: feed, events: events}
}

// ListingInput carries the owner-editable fields of a new listing.
type ListingInput struct {
	Title       string
	PriceCents  int64
	Description string
	Category    string
	SubCategory string
	Condition   string
	Images      []string
	MeetupArea  string
	ShowContact bool
}

// ImagePrefix is the storage prefix owned by a seller.
func ImagePrefix(sellerID uint64) string { return fmt.Sprintf("listings/%d/", sellerID) }

func validateImages(sellerID uint64, images []string) error {
	if len(images) < model.MinListingImages || len(images) > model.MaxListingImages {
		return invalid(fmt.Sprintf("A listing needs between %d and %d images", model.MinListingImages, model.MaxListingImages))
	}
	prefix := ImagePrefix(sellerID)
	seen := make(map[string]bool, len(images))
	for _, k := range images {
		if !strings.HasPrefix(k, prefix) || len(k) == len(prefix) {
			return invalid("Invalid image reference")
		}
		if seen[k] {
			return invalid("Duplicate image")
		}
		seen[k] = true
	}
	return nil
}

func validateFields(l *model.Listing) error {
	required := []struct{ name, value string }{
		{"Title", l.Title},
		{"Description", l.Description},
		{"Category", l.Category},
		{"Sub-category", l.SubCategory},
		{"Condition", l.Condition},
	}
	for _, f := range required {
		if f.value == "" {
			return invalid(f.name + " is required")
		}
	}
	if l.PriceCents < 0 {
		return invalid("Price cannot be negative")
	}
	return nil
}

// applyStatus is the only place status changes.  Reasons are cleared
// whenever the status leaves their state, so rejection and hidden reasons
// can never coexist.
func applyStatus(l *model.Listing, status model.ListingStatus, reason string) {
	l.Status = status
	l.RejectionReason = nil
	l.HiddenReason = nil
	switch status {
	case model.ListingRejected:
		l.RejectionReason = &reason
	case model.ListingHidden:
		l.HiddenReason = &reason
	}
	if status != model.ListingSold {
		l.BuyerID = nil
	}
}

func (s *ListingService) load(ctx context.Context, id uint64) (*model.Listing, error) {
	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, fromStore(err, MsgListingNotFound)
	}
	return l, nil
}

// notOwned is what a caller gets for someone else's listing.  It matches
// a missing row so ownership checks never confirm that an id exists.
func notOwned() error { return notFound(MsgListingNotFound) }

func (s *ListingService) hasActiveConversations(ctx context.Context, id uint64) (bool, error) {
	n, err := s.convs.CountActiveByListing(ctx, id)
	if err != nil {
		return false, storeFailure(err)
	}
	return n > 0, nil
}

func (s *ListingService) save(ctx context.Context, l *model.Listing) error {
	if err := s.listings.Update(ctx, l); err != nil {
		return fromStore(err, MsgListingNotFound)
	}
	s.broadcast(ctx, realtime.EventUpdate, l)
	return nil
}

func (s *ListingService) broadcast(ctx context.Context, typ realtime.EventType, l *model.Listing) {
	if s.feed == nil {
		return
	}
	ev, err := realtime.NewEvent(realtime.TableListings, typ, l, nil)
	if err == nil {
		err = s.feed.Publish(ctx, ev, realtime.Eq("id", l.ID))
	}
	if err != nil {
		log.Printf("listing: broadcast %s for %d failed: %v", typ, l.ID, err)
	}
}

func (s *ListingService) audit(ctx context.Context, action string, actorID, listingID uint64, reason string) {
	publishModeration(ctx, s.events, queue.ModerationEvent{
		Action: action, ActorID: actorID, TargetType: model.ReportTargetListing, TargetID: listingID, Reason: reason,
	})
}

// Submit creates a listing in pending.
func (s *ListingService) Submit(ctx context.Context, actorID uint64, in ListingInput) (*model.Listing, error) {
	if _, err := s.gate.RequireActive(ctx, actorID); err != nil {
		return nil, err
	}
	l := &model.Listing{
		SellerID:    actorID,
		Title:       strings.TrimSpace(in.Title),
		PriceCents:  in.PriceCents,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		SubCategory: strings.TrimSpace(in.SubCategory),
		Condition:   strings.TrimSpace(in.Condition),
		Images:      append([]string(nil), in.Images...),
		MeetupArea:  strings.TrimSpace(in.MeetupArea),
		ShowContact: in.ShowContact,
	}
	if err := validateFields(l); err != nil {
		return nil, err
	}
	if err := validateImages(actorID, l.Images); err != nil {
		return nil, err
	}
	applyStatus(l, model.ListingPending, "")
	if err := s.listings.Create(ctx, l); err != nil {
		return nil, storeFailure(err)
	}
	return l, nil
}

// Edit applies an owner edit following the tiered edit rules.
func (s *ListingService) Edit(ctx context.Context, actorID, listingID uint64, ch ListingChanges) (*model.Listing, EditClassification, error) {
	var cls EditClassification
	if _, err := s.gate.RequireActive(ctx, actorID); err != nil {
		return nil, cls, err
	}
	cur, err := s.load(ctx, listingID)
	if err != nil {
		return nil, cls, err
	}
	if cur.SellerID != actorID {
		return nil, cls, notOwned()
	}
	active, err := s.hasActiveConversations(ctx, listingID)
	if err != nil {
		return nil, cls, err
	}
	cls = ClassifyEdit(cur, ch)
	next, err := DecideEdit(cur.Status, active, cls.Class)
	if err != nil {
		return nil, cls, err
	}

	upd := *cur
	setTrimmed := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setTrimmed(&upd.Title, ch.Title)
	setTrimmed(&upd.Description, ch.Description)
	setTrimmed(&upd.Category, ch.Category)
	setTrimmed(&upd.SubCategory, ch.SubCategory)
	setTrimmed(&upd.Condition, ch.Condition)
	setTrimmed(&upd.MeetupArea, ch.MeetupArea)
	if ch.PriceCents != nil {
		upd.PriceCents = *ch.PriceCents
	}
	if ch.ShowContact != nil {
		upd.ShowContact = *ch.ShowContact
	}
	var removed []string
	upd.Images = nil
	for _, k := range cur.Images {
		if containsString(ch.RemoveImages, k) {
			removed = append(removed, k)
			continue
		}
		upd.Images = append(upd.Images, k)
	}
	upd.Images = append(upd.Images, ch.AddImages...)

	if err := validateFields(&upd); err != nil {
		return nil, cls, err
	}
	if err := validateImages(actorID, upd.Images); err != nil {
		return nil, cls, err
	}
	applyStatus(&upd, next, "")
	if err := s.save(ctx, &upd); err != nil {
		return nil, cls, err
	}
	removeFiles(ctx, s.files, removed)
	return &upd, cls, nil
}

// Approve moves a pending listing to available.
func (s *ListingService) Approve(ctx context.Context, actorID, listingID uint64) (*model.Listing, error) {
	return s.moderate(ctx, actorID, listingID, model.ListingPending, model.ListingAvailable, nil, queue.ActionListingApproved)
}

// Reject moves a pending listing to rejected with a reason.
func (s *ListingService) Reject(ctx context.Context, actorID, listingID uint64, reason string) (*model.Listing, error) {
	return s.moderate(ctx, actorID, listingID, model.ListingPending, model.ListingRejected, &reason, queue.ActionListingRejected)
}

// Hide moves an available listing to hidden with a reason.
func (s *ListingService) Hide(ctx context.Context, actorID, listingID uint64, reason string) (*model.Listing, error) {
	return s.moderate(ctx, actorID, listingID, model.ListingAvailable, model.ListingHidden, &reason, queue.ActionListingHidden)
}

// AdminDelete soft-deletes a hidden listing.  Conversations stay readable
// but no new messages can be sent.
func (s *ListingService) AdminDelete(ctx context.Context, actorID, listingID uint64) (*model.Listing, error) {
	return s.moderate(ctx, actorID, listingID, model.ListingHidden, model.ListingDeleted, nil, queue.ActionListingDeleted)
}

// moderate runs an admin transition.  A non-nil rawReason is validated
// after the role check.
func (s *ListingService) moderate(ctx context.Context, actorID, listingID uint64, from, to model.ListingStatus, rawReason *string, action string) (*model.Listing, error) {
	if _, err := s.gate.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	var reason string
	if rawReason != nil {
		r, err := ValidateReason(*rawReason)
		if err != nil {
			return nil, err
		}
		reason = r
	}
	l, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.Status != from {
		return nil, conflict(fmt.Sprintf("Listing is %s, expected %s", l.Status, from))
	}
	applyStatus(l, to, reason)
	if err := s.save(ctx, l); err != nil {
		return nil, err
	}
	s.audit(ctx, action, actorID, l.ID, reason)
	return l, nil
}

// Unhide returns a hidden listing to available.  Admins and the owner
// may unhide.
func (s *ListingService) Unhide(ctx context.Context, actorID, listingID uint64) (*model.Listing, error) {
	actor, err := s.gate.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	l, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && l.SellerID != actorID {
		return nil, notOwned()
	}
	if l.Status != model.ListingHidden {
		return nil, conflict("Only hidden listings can be unhidden")
	}
	applyStatus(l, model.ListingAvailable, "")
	if err := s.save(ctx, l); err != nil {
		return nil, err
	}
	s.audit(ctx, queue.ActionListingUnhidden, actorID, l.ID, "")
	return l, nil
}

// MarkSold closes an available listing.  buyerID is optional for sales
// made off the platform; when given it must belong to a buyer who
// contacted the seller about this listing.
func (s *ListingService) MarkSold(ctx context.Context, actorID, listingID uint64, buyerID *uint64) (*model.Listing, error) {
	if _, err := s.gate.Actor(ctx, actorID); err != nil {
		return nil, err
	}
	l, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID != actorID {
		return nil, notOwned()
	}
	if l.Status != model.ListingAvailable {
		return nil, conflict("Only available listings can be marked as sold")
	}
	if buyerID != nil {
		if *buyerID == actorID {
			return nil, invalid("You cannot sell to yourself")
		}
		if _, err := s.convs.GetByListingAndBuyer(ctx, listingID, *buyerID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, invalid("Buyer has not contacted you about this listing")
			}
			return nil, storeFailure(err)
		}
	}
	applyStatus(l, model.ListingSold, "")
	if buyerID != nil {
		b := *buyerID
		l.BuyerID = &b
	}
	if err := s.save(ctx, l); err != nil {
		return nil, err
	}
	s.audit(ctx, queue.ActionListingSold, actorID, l.ID, "")
	return l, nil
}

// Purge hard-deletes a hidden or deleted listing.  It is refused while
// any conversation on the listing is still active.
func (s *ListingService) Purge(ctx context.Context, actorID, listingID uint64) error {
	if _, err := s.gate.RequireAdmin(ctx, actorID); err != nil {
		return err
	}
	l, err := s.load(ctx, listingID)
	if err != nil {
		return err
	}
	if l.Status != model.ListingHidden && l.Status != model.ListingDeleted {
		return conflict("Only hidden or deleted listings can be purged")
	}
	if err := s.destroy(ctx, l); err != nil {
		return err
	}
	s.audit(ctx, queue.ActionListingPurged, actorID, l.ID, "")
	return nil
}

// Remove lets the owner hard-delete their own listing under the same
// active-conversation rule as Purge.
func (s *ListingService) Remove(ctx context.Context, actorID, listingID uint64) error {
	if _, err := s.gate.Actor(ctx, actorID); err != nil {
		return err
	}
	l, err := s.load(ctx, listingID)
	if err != nil {
		return err
	}
	if l.SellerID != actorID {
		return notOwned()
	}
	return s.destroy(ctx, l)
}

func (s *ListingService) destroy(ctx context.Context, l *model.Listing) error {
	active, err := s.hasActiveConversations(ctx, l.ID)
	if err != nil {
		return err
	}
	if active {
		return conflict(MsgActiveConvos)
	}
	if err := s.listings.Delete(ctx, l.ID); err != nil {
		return fromStore(err, MsgListingNotFound)
	}
	removeFiles(ctx, s.files, l.Images)
	s.broadcast(ctx, realtime.EventDelete, l)
	return nil
}

// Get returns a listing as seen by viewerID (0 for anonymous).  Only
// available and sold listings are public; the owner and admins see every
// status.  Anything else is reported as not found.
func (s *ListingService) Get(ctx context.Context, viewerID, listingID uint64) (*model.Listing, error) {
	l, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.IsPublic() || (viewerID != 0 && l.SellerID == viewerID) {
		return l, nil
	}
	if viewerID != 0 {
		if a, err := s.gate.Actor(ctx, viewerID); err == nil && a.IsAdmin() {
			return l, nil
		}
	}
	return nil, notFound(MsgListingNotFound)
}

// Browse lists available listings, newest first.
func (s *ListingService) Browse(ctx context.Context, f repository.ListFilter) ([]*model.Listing, error) {
	ls, err := s.listings.ListByStatus(ctx, model.ListingAvailable, f)
	if err != nil {
		return nil, storeFailure(err)
	}
	return ls, nil
}

// Mine lists every listing of the actor.
func (s *ListingService) Mine(ctx context.Context, actorID uint64) ([]*model.Listing, error) {
	if _, err := s.gate.Actor(ctx, actorID); err != nil {
		return nil, err
	}
	ls, err := s.listings.ListBySeller(ctx, actorID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return ls, nil
}

// Queue lists listings in a status for moderators (pending by default).
func (s *ListingService) Queue(ctx context.Context, actorID uint64, status model.ListingStatus, f repository.ListFilter) ([]*model.Listing, error) {
	if _, err := s.gate.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if status == "" {
		status = model.ListingPending
	}
	if !status.Valid() {
		return nil, invalid("Unknown status")
	}
	ls, err := s.listings.ListByStatus(ctx, status, f)
	if err != nil {
		return nil, storeFailure(err)
	}
	return ls, nil
}
