package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/queue"
	"github.com/iliyamo/secondhand-market/internal/realtime"
	"github.com/iliyamo/secondhand-market/internal/repository"
)

// memDB is an in-memory stand-in for the MySQL schema, including its
// unique keys and cascades.
type memDB struct {
	mu       sync.Mutex
	nextID   uint64
	clock    time.Time
	accounts map[uint64]*model.Account
	listings map[uint64]*model.Listing
	convs    map[uint64]*model.Conversation
	msgs     []*model.Message
	reviews  map[uint64]*model.Review
	reports  map[uint64]*model.Report
}

func newMemDB() *memDB {
	return &memDB{
		nextID:   100,
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		accounts: map[uint64]*model.Account{},
		listings: map[uint64]*model.Listing{},
		convs:    map[uint64]*model.Conversation{},
		reviews:  map[uint64]*model.Review{},
		reports:  map[uint64]*model.Report{},
	}
}

func (db *memDB) id() uint64 { db.nextID++; return db.nextID }

func (db *memDB) tick() time.Time { db.clock = db.clock.Add(time.Millisecond); return db.clock }

func cloneListing(l *model.Listing) *model.Listing {
	c := *l
	c.Images = append([]string(nil), l.Images...)
	return &c
}

func cloneConv(c *model.Conversation) *model.Conversation { x := *c; return &x }

// listings

type listingFake struct{ db *memDB }

func (f listingFake) Create(_ context.Context, l *model.Listing) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	l.ID = f.db.id()
	l.CreatedAt = f.db.tick()
	l.UpdatedAt = l.CreatedAt
	f.db.listings[l.ID] = cloneListing(l)
	return nil
}

func (f listingFake) GetByID(_ context.Context, id uint64) (*model.Listing, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	l, ok := f.db.listings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneListing(l), nil
}

func (f listingFake) Update(_ context.Context, l *model.Listing) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.listings[l.ID]; !ok {
		return repository.ErrNotFound
	}
	l.UpdatedAt = f.db.tick()
	f.db.listings[l.ID] = cloneListing(l)
	return nil
}

func (f listingFake) Delete(_ context.Context, id uint64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.listings[id]; !ok {
		return repository.ErrNotFound
	}
	f.db.deleteListingLocked(id)
	return nil
}

func (db *memDB) deleteListingLocked(id uint64) {
	delete(db.listings, id)
	for cid, c := range db.convs {
		if c.ListingID == id {
			db.deleteConvLocked(cid)
		}
	}
	delete(db.reviews, id)
}

func (db *memDB) deleteConvLocked(id uint64) {
	delete(db.convs, id)
	kept := db.msgs[:0]
	for _, m := range db.msgs {
		if m.ConversationID != id {
			kept = append(kept, m)
		}
	}
	db.msgs = kept
}

func (f listingFake) ListByStatus(_ context.Context, status model.ListingStatus, flt repository.ListFilter) ([]*model.Listing, error) {
	return f.list(func(l *model.Listing) bool {
		return l.Status == status && (flt.Category == "" || l.Category == flt.Category)
	}), nil
}

func (f listingFake) ListBySeller(_ context.Context, sellerID uint64) ([]*model.Listing, error) {
	return f.list(func(l *model.Listing) bool { return l.SellerID == sellerID }), nil
}

func (f listingFake) list(keep func(*model.Listing) bool) []*model.Listing {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*model.Listing
	for _, l := range f.db.listings {
		if keep(l) {
			out = append(out, cloneListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// conversations

type convFake struct{ db *memDB }

func (f convFake) Create(_ context.Context, c *model.Conversation) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.listings[c.ListingID]; !ok {
		return repository.ErrNotFound
	}
	for _, x := range f.db.convs {
		if x.ListingID == c.ListingID && x.BuyerID == c.BuyerID {
			return repository.ErrDuplicate
		}
	}
	c.ID = f.db.id()
	c.CreatedAt = f.db.tick()
	c.UpdatedAt = c.CreatedAt
	f.db.convs[c.ID] = cloneConv(c)
	return nil
}

func (f convFake) GetByID(_ context.Context, id uint64) (*model.Conversation, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.convs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneConv(c), nil
}

func (f convFake) GetByListingAndBuyer(_ context.Context, listingID, buyerID uint64) (*model.Conversation, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, c := range f.db.convs {
		if c.ListingID == listingID && c.BuyerID == buyerID {
			return cloneConv(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f convFake) CountActiveByListing(_ context.Context, listingID uint64) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for _, c := range f.db.convs {
		if c.ListingID == listingID && c.Active() {
			n++
		}
	}
	return n, nil
}

func (f convFake) ListForUser(_ context.Context, userID uint64) ([]*model.ConversationSummary, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*model.ConversationSummary
	for _, c := range f.db.convs {
		visible := (c.BuyerID == userID && !c.BuyerDeleted) || (c.SellerID == userID && !c.SellerDeleted)
		if !visible {
			continue
		}
		s := &model.ConversationSummary{Conversation: *c}
		if l, ok := f.db.listings[c.ListingID]; ok {
			s.ListingTitle, s.ListingStatus = l.Title, l.Status
		}
		for _, m := range f.db.msgs {
			if m.ConversationID == c.ID && !m.IsRead && m.SenderID != userID {
				s.Unread++
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f convFake) SetDeleted(_ context.Context, id uint64, side model.Side, deleted bool) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	c, ok := f.db.convs[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	flag := &c.BuyerDeleted
	if side == model.SideSeller {
		flag = &c.SellerDeleted
	}
	if *flag == deleted {
		return false, nil
	}
	*flag = deleted
	return true, nil
}

func (f convFake) HardDelete(_ context.Context, id uint64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.convs[id]; !ok {
		return repository.ErrNotFound
	}
	f.db.deleteConvLocked(id)
	return nil
}

func (f convFake) Touch(_ context.Context, id uint64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if c, ok := f.db.convs[id]; ok {
		c.UpdatedAt = f.db.tick()
	}
	return nil
}

// messages

type msgFake struct{ db *memDB }

func (f msgFake) Create(_ context.Context, m *model.Message) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.convs[m.ConversationID]; !ok {
		return repository.ErrNotFound
	}
	m.ID = f.db.id()
	m.CreatedAt = f.db.tick()
	m.IsRead = false
	x := *m
	f.db.msgs = append(f.db.msgs, &x)
	return nil
}

func (f msgFake) ListByConversation(_ context.Context, conversationID uint64) ([]*model.Message, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*model.Message
	for _, m := range f.db.msgs {
		if m.ConversationID == conversationID {
			x := *m
			out = append(out, &x)
		}
	}
	return out, nil
}

func (f msgFake) MarkAllRead(_ context.Context, conversationID, readerID uint64) ([]uint64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var ids []uint64
	for _, m := range f.db.msgs {
		if m.ConversationID == conversationID && m.SenderID != readerID && !m.IsRead {
			m.IsRead = true
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

func (f msgFake) MarkRead(_ context.Context, conversationID, messageID, readerID uint64) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, m := range f.db.msgs {
		if m.ID == messageID && m.ConversationID == conversationID && m.SenderID != readerID && !m.IsRead {
			m.IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (f msgFake) CountUnread(_ context.Context, viewerID uint64) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for _, m := range f.db.msgs {
		c := f.db.convs[m.ConversationID]
		if c == nil || m.IsRead || m.SenderID == viewerID {
			continue
		}
		if c.BuyerID == viewerID || c.SellerID == viewerID {
			n++
		}
	}
	return n, nil
}

// accounts

type accountFake struct{ db *memDB }

func (f accountFake) GetByID(_ context.Context, id uint64) (*model.Account, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	x := *a
	return &x, nil
}

func (f accountFake) SetBan(_ context.Context, id uint64, until *time.Time, reason *string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.BannedUntil, a.BanReason = until, reason
	return nil
}

func (f accountFake) Delete(_ context.Context, id uint64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.db.accounts, id)
	for lid, l := range f.db.listings {
		if l.SellerID == id {
			f.db.deleteListingLocked(lid)
		}
	}
	for cid, c := range f.db.convs {
		if c.BuyerID == id || c.SellerID == id {
			f.db.deleteConvLocked(cid)
		}
	}
	for rid, r := range f.db.reports {
		if r.ReporterID == id {
			delete(f.db.reports, rid)
		}
	}
	return nil
}

// reviews

type reviewFake struct{ db *memDB }

func (f reviewFake) Create(_ context.Context, rv *model.Review) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.reviews[rv.ItemID]; ok {
		return repository.ErrDuplicate
	}
	rv.ID = f.db.id()
	rv.CreatedAt = f.db.tick()
	x := *rv
	f.db.reviews[rv.ItemID] = &x
	return nil
}

func (f reviewFake) GetByItem(_ context.Context, itemID uint64) (*model.Review, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	rv, ok := f.db.reviews[itemID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	x := *rv
	return &x, nil
}

func (f reviewFake) ListBySeller(_ context.Context, sellerID uint64) ([]*model.Review, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*model.Review
	for _, rv := range f.db.reviews {
		if rv.SellerID == sellerID {
			x := *rv
			out = append(out, &x)
		}
	}
	return out, nil
}

// reports

type reportFake struct{ db *memDB }

func (f reportFake) Create(_ context.Context, rp *model.Report) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	rp.ID = f.db.id()
	rp.Status = model.ReportOpen
	rp.CreatedAt = f.db.tick()
	x := *rp
	f.db.reports[rp.ID] = &x
	return nil
}

func (f reportFake) GetByID(_ context.Context, id uint64) (*model.Report, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	rp, ok := f.db.reports[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	x := *rp
	return &x, nil
}

func (f reportFake) ListByStatus(_ context.Context, status string) ([]*model.Report, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []*model.Report
	for _, rp := range f.db.reports {
		if rp.Status == status {
			x := *rp
			out = append(out, &x)
		}
	}
	return out, nil
}

func (f reportFake) SetStatus(_ context.Context, id uint64, status string, handledBy uint64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	rp, ok := f.db.reports[id]
	if !ok {
		return repository.ErrNotFound
	}
	if rp.Status != model.ReportOpen {
		return repository.ErrConflict
	}
	now := f.db.tick()
	rp.Status, rp.HandledBy, rp.HandledAt = status, &handledBy, &now
	return nil
}

// files

type fileFake struct {
	mu        sync.Mutex
	objects   map[string]bool
	removed   []string
	removeErr error
}

func newFileFake(keys ...string) *fileFake {
	f := &fileFake{objects: map[string]bool{}}
	for _, k := range keys {
		f.objects[k] = true
	}
	return f
}

func (f *fileFake) Remove(_ context.Context, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	for _, p := range paths {
		delete(f.objects, p)
		f.removed = append(f.removed, p)
	}
	return nil
}

func (f *fileFake) List(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// events

type publisherFake struct {
	mu     sync.Mutex
	events []queue.ModerationEvent
	err    error
}

func (p *publisherFake) PublishModeration(_ context.Context, ev queue.ModerationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *publisherFake) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Action)
	}
	return out
}

type tokenFake struct{ revoked []uint64 }

func (t *tokenFake) RevokeAllForUser(_ context.Context, userID uint64) error {
	t.revoked = append(t.revoked, userID)
	return nil
}

// env wires every service over one memDB.
const (
	adminID  uint64 = 1
	sellerID uint64 = 2
	buyerID  uint64 = 3
	otherID  uint64 = 4
)

type env struct {
	db       *memDB
	files    *fileFake
	events   *publisherFake
	tokens   *tokenFake
	feed     *realtime.MemoryFeed
	gate     *Gate
	listings *ListingService
	convs    *ConversationService
	msgs     *MessageService
	mod      *ModerationService
	reviews  *ReviewService
	ctx      context.Context
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := newMemDB()
	for _, a := range []*model.Account{
		{ID: adminID, Email: "admin@example.com", Role: model.RoleAdmin},
		{ID: sellerID, Email: "seller@example.com", Role: model.RoleUser},
		{ID: buyerID, Email: "buyer@example.com", Role: model.RoleUser},
		{ID: otherID, Email: "other@example.com", Role: model.RoleUser},
	} {
		db.accounts[a.ID] = a
	}
	e := &env{
		db:     db,
		files:  newFileFake(),
		events: &publisherFake{},
		tokens: &tokenFake{},
		feed:   realtime.NewMemoryFeed(),
		ctx:    context.Background(),
	}
	e.gate = NewGate(accountFake{db})
	e.gate.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	e.listings = NewListingService(listingFake{db}, convFake{db}, e.gate, e.files, e.feed, e.events)
	e.convs = NewConversationService(convFake{db}, listingFake{db}, e.gate, e.feed)
	e.msgs = NewMessageService(msgFake{db}, listingFake{db}, e.convs, e.gate, e.feed)
	e.mod = NewModerationService(e.gate, accountFake{db}, e.listings, reportFake{db}, e.files, e.tokens, e.events)
	e.reviews = NewReviewService(reviewFake{db}, listingFake{db}, e.gate)
	return e
}

func sampleInput(images ...string) ListingInput {
	if images == nil {
		images = []string{"listings/2/a.jpg", "listings/2/b.jpg"}
	}
	return ListingInput{
		Title:       "Road bike",
		PriceCents:  25000,
		Description: "Aluminium frame, 54cm",
		Category:    "sports",
		SubCategory: "bicycles",
		Condition:   "used",
		Images:      images,
		MeetupArea:  "Central station",
	}
}

// availableListing submits and approves a listing of sellerID.
func (e *env) availableListing(t *testing.T) *model.Listing {
	t.Helper()
	l, err := e.listings.Submit(e.ctx, sellerID, sampleInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	l, err = e.listings.Approve(e.ctx, adminID, l.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return l
}

func (e *env) listing(t *testing.T, id uint64) *model.Listing {
	t.Helper()
	l, err := listingFake{e.db}.GetByID(e.ctx, id)
	if err != nil {
		t.Fatalf("load listing %d: %v", id, err)
	}
	return l
}

func (e *env) conversation(id uint64) (*model.Conversation, bool) {
	c, err := convFake{e.db}.GetByID(e.ctx, id)
	if err != nil {
		return nil, false
	}
	return c, true
}

func wantKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("want %s error, got %v", kind, err)
	}
	if se.Kind != kind {
		t.Fatalf("want %s error, got %s (%s)", kind, se.Kind, se.Msg)
	}
	return se
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertReasonsExclusive(t *testing.T, l *model.Listing) {
	t.Helper()
	if l.RejectionReason != nil && l.HiddenReason != nil {
		t.Fatalf("listing %d has both rejection and hidden reasons", l.ID)
	}
	if l.RejectionReason != nil && l.Status != model.ListingRejected {
		t.Fatalf("rejection reason set while %s", l.Status)
	}
	if l.HiddenReason != nil && l.Status != model.ListingHidden {
		t.Fatalf("hidden reason set while %s", l.Status)
	}
}

func repositoryFilter(category string) repository.ListFilter {
	return repository.ListFilter{Category: category}
}
