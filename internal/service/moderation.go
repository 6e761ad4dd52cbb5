package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/queue"
	"github.com/iliyamo/secondhand-market/internal/repository"
)

// ModerationService holds the admin actions on accounts and the report
// queue.  Listing transitions go through ListingService so a report
// shortcut and a direct action share the same validation.
type ModerationService struct {
	gate     *Gate
	accounts AccountStore
	listings *ListingService
	reports  ReportStore
	files    FileStore
	tokens   TokenRevoker
	events   EventPublisher
}

// NewModerationService wires moderation.  files, tokens and events may be nil.
func NewModerationService(gate *Gate, accounts AccountStore, listings *ListingService, reports ReportStore, files FileStore, tokens TokenRevoker, events EventPublisher) *ModerationService {
	return &ModerationService{gate: gate, accounts: accounts, listings: listings, reports: reports, files: files, tokens: tokens, events: events}
}

func (s *ModerationService) target(ctx context.Context, accountID uint64) (*model.Account, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fromStore(err, MsgAccountNotFound)
	}
	return a, nil
}

// Ban suspends an account until the expiry resolved from d.
func (s *ModerationService) Ban(ctx context.Context, actorID, accountID uint64, d BanDuration, reason string) (*model.Account, error) {
	if _, err := s.gate.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	r, err := ValidateReason(reason)
	if err != nil {
		return nil, err
	}
	until, err := ResolveBanExpiry(d, s.gate.now())
	if err != nil {
		return nil, err
	}
	if accountID == actorID {
		return nil, invalid("You cannot ban yourself")
	}
	a, err := s.target(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetBan(ctx, a.ID, &until, &r); err != nil {
		return nil, fromStore(err, MsgAccountNotFound)
	}
	a.BannedUntil, a.BanReason = &until, &r
	if s.tokens != nil {
		if err := s.tokens.RevokeAllForUser(ctx, a.ID); err != nil {
			log.Printf("moderation: revoke tokens of %d failed: %v", a.ID, err)
		}
	}
	publishModeration(ctx, s.events, queue.ModerationEvent{
		Action: queue.ActionAccountBanned, ActorID: actorID, TargetType: model.ReportTargetAccount,
		TargetID: a.ID, Reason: r, Until: &until,
	})
	return a, nil
}

// Unban lifts a ban.
func (s *ModerationService) Unban(ctx context.Context, actorID, accountID uint64) (*model.Account, error) {
	if _, err := s.gate.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	a, err := s.target(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetBan(ctx, a.ID, nil, nil); err != nil {
		return nil, fromStore(err, MsgAccountNotFound)
	}
	a.BannedUntil, a.BanReason = nil, nil
	publishModeration(ctx, s.events, queue.ModerationEvent{
		Action: queue.ActionAccountUnbanned, ActorID: actorID, TargetType: model.ReportTargetAccount, TargetID: a.ID,
	})
	return a, nil
}

// storagePrefixes are the object prefixes owned by an account.
func storagePrefixes(accountID uint64) []string {
	return []string{ImagePrefix(accountID), fmt.Sprintf("avatars/%d/", accountID)}
}

// DeleteAccount removes an account.  Storage cleanup runs first and is
// best effort: its failures are logged and swallowed.  Deleting the
// account row cascades to listings, conversations, messages, reviews,
// reports and refresh tokens.
func (s *ModerationService) DeleteAccount(ctx context.Context, actorID, accountID uint64) error {
	if _, err := s.gate.RequireAdmin(ctx, actorID); err != nil {
		return err
	}
	if accountID == actorID {
		return invalid("You cannot delete your own account here")
	}
	a, err := s.target(ctx, accountID)
	if err != nil {
		return err
	}
	if s.files != nil {
		for _, prefix := range storagePrefixes(a.ID) {
			keys, err := s.files.List(ctx, prefix)
			if err != nil {
				log.Printf("moderation: list %s failed: %v", prefix, err)
				continue
			}
			removeFiles(ctx, s.files, keys)
		}
	}
	if err := s.accounts.Delete(ctx, a.ID); err != nil {
		return fromStore(err, MsgAccountNotFound)
	}
	publishModeration(ctx, s.events, queue.ModerationEvent{
		Action: queue.ActionAccountDeleted, ActorID: actorID, TargetType: model.ReportTargetAccount, TargetID: a.ID,
	})
	return nil
}

// FileReport records a complaint about a listing or an account.
func (s *ModerationService) FileReport(ctx context.Context, actorID uint64, targetType string, targetID uint64, reason string) (*model.Report, error) {
	if _, err := s.gate.Actor(ctx, actorID); err != nil {
		return nil, err
	}
	r := strings.TrimSpace(reason)
	if r == "" {
		return nil, invalid("Reason is required")
	}
	switch targetType {
	case model.ReportTargetListing:
		l, err := s.listings.Get(ctx, actorID, targetID)
		if err != nil {
			return nil, err
		}
		if l.SellerID == actorID {
			return nil, invalid("You cannot report your own listing")
		}
	case model.ReportTargetAccount:
		if targetID == actorID {
			return nil, invalid("You cannot report yourself")
		}
		if _, err := s.target(ctx, targetID); err != nil {
			return nil, err
		}
	default:
		return nil, invalid("Unknown report target")
	}
	rp := &model.Report{ReporterID: actorID, TargetType: targetType, TargetID: targetID, Reason: r}
	if err := s.reports.Create(ctx, rp); err != nil {
		return nil, fromStore(err, "Report target not found")
	}
	return rp, nil
}

// Reports lists reports in a status, open by default.
func (s *ModerationService) Reports(ctx context.Context, actorID uint64, status string) ([]*model.Report, error) {
	if _, err := s.gate.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	switch status {
	case "":
		status = model.ReportOpen
	case model.ReportOpen, model.ReportDismissed, model.ReportResolved:
	default:
		return nil, invalid("Unknown report status")
	}
	out, err := s.reports.ListByStatus(ctx, status)
	if err != nil {
		return nil, storeFailure(err)
	}
	return out, nil
}

// DismissReport closes a report without acting on its target.
func (s *ModerationService) DismissReport(ctx context.Context, actorID, reportID uint64) (*model.Report, error) {
	if _, err := s.gate.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	rp, err := s.closeReport(ctx, actorID, reportID, model.ReportDismissed)
	if err != nil {
		return nil, err
	}
	publishModeration(ctx, s.events, queue.ModerationEvent{
		Action: queue.ActionReportDismissed, ActorID: actorID, TargetType: rp.TargetType, TargetID: rp.TargetID,
	})
	return rp, nil
}

// ReportResolution is the shortcut applied when resolving a report: hide
// the reported listing or ban the reported account.
type ReportResolution struct {
	Reason   string
	Duration BanDuration
}

// ResolveReport acts on the report's target with the same rules as the
// direct actions, then closes the report.
func (s *ModerationService) ResolveReport(ctx context.Context, actorID, reportID uint64, res ReportResolution) (*model.Report, error) {
	if _, err := s.gate.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	reason, err := ValidateReason(res.Reason)
	if err != nil {
		return nil, err
	}
	rp, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, fromStore(err, "Report not found")
	}
	if rp.Status != model.ReportOpen {
		return nil, conflict("Report already handled")
	}
	switch rp.TargetType {
	case model.ReportTargetListing:
		if _, err := s.listings.Hide(ctx, actorID, rp.TargetID, reason); err != nil {
			return nil, err
		}
	case model.ReportTargetAccount:
		d := res.Duration
		if d == "" {
			d = BanOneWeek
		}
		if _, err := s.Ban(ctx, actorID, rp.TargetID, d, reason); err != nil {
			return nil, err
		}
	}
	rp, err = s.closeReport(ctx, actorID, reportID, model.ReportResolved)
	if err != nil {
		return nil, err
	}
	publishModeration(ctx, s.events, queue.ModerationEvent{
		Action: queue.ActionReportResolved, ActorID: actorID, TargetType: rp.TargetType, TargetID: rp.TargetID, Reason: reason,
	})
	return rp, nil
}

func (s *ModerationService) closeReport(ctx context.Context, actorID, reportID uint64, status string) (*model.Report, error) {
	if err := s.reports.SetStatus(ctx, reportID, status, actorID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflict("Report already handled")
		}
		return nil, fromStore(err, "Report not found")
	}
	rp, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, fromStore(err, "Report not found")
	}
	return rp, nil
}
