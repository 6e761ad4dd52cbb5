package service

import (
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/queue"
)

func TestValidateReason(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "", false},
		{"too short", "", false},
		{"   123456789   ", "", false},
		{"1234567890", "1234567890", true},
		{"  spam links  everywhere ", "spam links  everywhere", true},
		{"ÄÖÜßäöüéèê", "ÄÖÜßäöüéèê", true},
	}
	for _, tc := range cases {
		got, err := ValidateReason(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Errorf("ValidateReason(%q) = %q, %v", tc.in, got, err)
			}
			continue
		}
		var se *Error
		if !errors.As(err, &se) || se.Kind != KindValidation || se.Msg != MsgReasonTooShort {
			t.Errorf("ValidateReason(%q) err = %v", tc.in, err)
		}
	}
}

func TestResolveBanExpiry(t *testing.T) {
	now := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
	cases := map[BanDuration]time.Time{
		BanOneDay:    now.Add(24 * time.Hour),
		BanThreeDays: now.Add(72 * time.Hour),
		BanOneWeek:   now.Add(7 * 24 * time.Hour),
		BanOneMonth:  now.AddDate(0, 1, 0),
		BanPermanent: PermanentBanExpiry,
	}
	for d, want := range cases {
		got, err := ResolveBanExpiry(d, now)
		if err != nil || !got.Equal(want) {
			t.Errorf("%s: got %v, %v; want %v", d, got, err, want)
		}
	}
	if _, err := ResolveBanExpiry("2y", now); KindOf(err) != KindValidation {
		t.Fatalf("unknown duration: %v", err)
	}
}

func TestPermanentBanNeverExpires(t *testing.T) {
	now := time.Now().UTC()
	until, err := ResolveBanExpiry(BanPermanent, now)
	mustOK(t, err)
	a := &model.Account{BannedUntil: &until}
	for day := 0; day <= 366*10; day += 7 {
		if at := now.AddDate(0, 0, day); !a.IsBanned(at) {
			t.Fatalf("permanent ban expired at %v", at)
		}
	}
}

func TestBanAndUnban(t *testing.T) {
	e := newEnv(t)

	_, err := e.mod.Ban(e.ctx, otherID, buyerID, BanOneWeek, "Harassing other users")
	wantKind(t, err, KindUnauthorized)
	_, err = e.mod.Ban(e.ctx, adminID, buyerID, BanOneWeek, "rude")
	wantKind(t, err, KindValidation)
	_, err = e.mod.Ban(e.ctx, adminID, adminID, BanOneWeek, "Harassing other users")
	wantKind(t, err, KindValidation)
	_, err = e.mod.Ban(e.ctx, adminID, 777, BanOneWeek, "Harassing other users")
	wantKind(t, err, KindNotFound)

	a, err := e.mod.Ban(e.ctx, adminID, buyerID, BanPermanent, "  Harassing other users  ")
	mustOK(t, err)
	stored := e.db.accounts[buyerID]
	if stored.BannedUntil == nil || !stored.BannedUntil.Equal(PermanentBanExpiry) {
		t.Fatalf("banned_until = %v", stored.BannedUntil)
	}
	if stored.BanReason == nil || *stored.BanReason != "Harassing other users" {
		t.Fatalf("ban_reason = %v", stored.BanReason)
	}
	if !a.IsBanned(e.gate.now()) {
		t.Fatal("account should be banned")
	}
	if len(e.tokens.revoked) != 1 || e.tokens.revoked[0] != buyerID {
		t.Fatalf("revoked = %v", e.tokens.revoked)
	}

	_, err = e.listings.Submit(e.ctx, buyerID, sampleInput("listings/3/a.jpg"))
	wantKind(t, err, KindUnauthorized)

	_, err = e.mod.Unban(e.ctx, adminID, buyerID)
	mustOK(t, err)
	if e.db.accounts[buyerID].BannedUntil != nil {
		t.Fatal("unban should clear expiry")
	}
	_, err = e.listings.Submit(e.ctx, buyerID, sampleInput("listings/3/a.jpg"))
	mustOK(t, err)

	acts := e.events.actions()
	if len(acts) != 2 || acts[0] != queue.ActionAccountBanned || acts[1] != queue.ActionAccountUnbanned {
		t.Fatalf("events = %v", acts)
	}
}

func TestPublishFailureDoesNotFailAction(t *testing.T) {
	e := newEnv(t)
	e.events.err = errors.New("broker down")
	_, err := e.mod.Ban(e.ctx, adminID, buyerID, BanOneDay, "Harassing other users")
	mustOK(t, err)
}

func TestDeleteAccountCascadesAndSwallowsStorageErrors(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)
	c, _ := e.convs.StartOrResume(e.ctx, buyerID, l.ID)
	_, _ = e.msgs.Send(e.ctx, buyerID, c.ID, "Is this available?")
	e.files.objects["listings/2/a.jpg"] = true
	e.files.objects["avatars/2/me.png"] = true
	e.files.removeErr = errors.New("storage unavailable")

	wantKind(t, e.mod.DeleteAccount(e.ctx, sellerID, buyerID), KindUnauthorized)

	mustOK(t, e.mod.DeleteAccount(e.ctx, adminID, sellerID))
	if _, ok := e.db.accounts[sellerID]; ok {
		t.Fatal("account should be gone")
	}
	if _, ok := e.db.listings[l.ID]; ok {
		t.Fatal("listings should cascade")
	}
	if _, ok := e.conversation(c.ID); ok {
		t.Fatal("conversations should cascade")
	}
	if len(e.db.msgs) != 0 {
		t.Fatal("messages should cascade")
	}

	wantKind(t, e.mod.DeleteAccount(e.ctx, adminID, sellerID), KindNotFound)
}

func TestDeleteAccountRemovesStorage(t *testing.T) {
	e := newEnv(t)
	e.files.objects["listings/2/a.jpg"] = true
	e.files.objects["avatars/2/me.png"] = true
	e.files.objects["listings/20/other.jpg"] = true

	mustOK(t, e.mod.DeleteAccount(e.ctx, adminID, sellerID))
	if len(e.files.objects) != 1 || !e.files.objects["listings/20/other.jpg"] {
		t.Fatalf("objects left = %v", e.files.objects)
	}
}

func TestReportResolveHidesListing(t *testing.T) {
	e := newEnv(t)
	l := e.availableListing(t)

	_, err := e.mod.FileReport(e.ctx, buyerID, model.ReportTargetListing, l.ID, "  ")
	wantKind(t, err, KindValidation)
	_, err = e.mod.FileReport(e.ctx, sellerID, model.ReportTargetListing, l.ID, "mine")
	wantKind(t, err, KindValidation)
	_, err = e.mod.FileReport(e.ctx, buyerID, "comment", l.ID, "spam")
	wantKind(t, err, KindValidation)

	rp, err := e.mod.FileReport(e.ctx, buyerID, model.ReportTargetListing, l.ID, "Looks like a stolen bike")
	mustOK(t, err)
	if rp.Status != model.ReportOpen {
		t.Fatalf("status = %s", rp.Status)
	}

	open, err := e.mod.Reports(e.ctx, adminID, "")
	mustOK(t, err)
	if len(open) != 1 {
		t.Fatalf("open reports = %d", len(open))
	}
	_, err = e.mod.Reports(e.ctx, buyerID, "")
	wantKind(t, err, KindUnauthorized)

	// The shortcut enforces the same reason rule as a direct hide.
	_, err = e.mod.ResolveReport(e.ctx, adminID, rp.ID, ReportResolution{Reason: "stolen"})
	if se := wantKind(t, err, KindValidation); se.Msg != MsgReasonTooShort {
		t.Fatalf("msg = %q", se.Msg)
	}
	if e.listing(t, l.ID).Status != model.ListingAvailable {
		t.Fatal("failed resolution must not hide the listing")
	}

	done, err := e.mod.ResolveReport(e.ctx, adminID, rp.ID, ReportResolution{Reason: "Confirmed stolen property"})
	mustOK(t, err)
	if done.Status != model.ReportResolved || done.HandledBy == nil || *done.HandledBy != adminID {
		t.Fatalf("report %+v", done)
	}
	hidden := e.listing(t, l.ID)
	if hidden.Status != model.ListingHidden || hidden.HiddenReason == nil || *hidden.HiddenReason != "Confirmed stolen property" {
		t.Fatalf("listing %+v", hidden)
	}

	_, err = e.mod.DismissReport(e.ctx, adminID, rp.ID)
	wantKind(t, err, KindConflict)
	_, err = e.mod.ResolveReport(e.ctx, adminID, rp.ID, ReportResolution{Reason: "Confirmed stolen property"})
	wantKind(t, err, KindConflict)
}

func TestReportResolveBansAccount(t *testing.T) {
	e := newEnv(t)
	_, err := e.mod.FileReport(e.ctx, buyerID, model.ReportTargetAccount, buyerID, "myself")
	wantKind(t, err, KindValidation)

	rp, err := e.mod.FileReport(e.ctx, buyerID, model.ReportTargetAccount, otherID, "Sends threatening messages")
	mustOK(t, err)
	_, err = e.mod.ResolveReport(e.ctx, adminID, rp.ID, ReportResolution{Reason: "Threatening messages confirmed", Duration: BanThreeDays})
	mustOK(t, err)
	banned := e.db.accounts[otherID]
	want := e.gate.now().AddDate(0, 0, 3)
	if banned.BannedUntil == nil || !banned.BannedUntil.Equal(want) {
		t.Fatalf("banned_until = %v, want %v", banned.BannedUntil, want)
	}
}

func TestDismissReport(t *testing.T) {
	e := newEnv(t)
	rp, err := e.mod.FileReport(e.ctx, buyerID, model.ReportTargetAccount, otherID, "Not sure about this user")
	mustOK(t, err)
	_, err = e.mod.DismissReport(e.ctx, buyerID, rp.ID)
	wantKind(t, err, KindUnauthorized)
	got, err := e.mod.DismissReport(e.ctx, adminID, rp.ID)
	mustOK(t, err)
	if got.Status != model.ReportDismissed {
		t.Fatalf("status = %s", got.Status)
	}
	_, err = e.mod.DismissReport(e.ctx, adminID, 9999)
	wantKind(t, err, KindNotFound)
}
