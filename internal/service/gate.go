package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/secondhand-market/internal/model"
	"github.com/iliyamo/secondhand-market/internal/repository"
)

// MinReasonLength is the minimum length, in characters after trimming,
// of every moderation reason.
const MinReasonLength = 10

// Gate resolves the acting account from the store on every call.  Roles
// and bans are never taken from a token or a cache.
type Gate struct {
	accounts AccountStore
	now      func() time.Time
}

// NewGate returns a Gate reading accounts from store.
func NewGate(accounts AccountStore) *Gate {
	return &Gate{accounts: accounts, now: time.Now}
}

// Actor loads the account behind actorID.
func (g *Gate) Actor(ctx context.Context, actorID uint64) (*model.Account, error) {
	if actorID == 0 {
		return nil, unauthenticated()
	}
	a, err := g.accounts.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, unauthenticated()
		}
		return nil, storeFailure(err)
	}
	return a, nil
}

// RequireActive loads the actor and rejects suspended accounts.
func (g *Gate) RequireActive(ctx context.Context, actorID uint64) (*model.Account, error) {
	a, err := g.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if a.IsBanned(g.now()) {
		return nil, unauthorized(MsgSuspended)
	}
	return a, nil
}

// RequireAdmin loads the actor and requires the admin role.
func (g *Gate) RequireAdmin(ctx context.Context, actorID uint64) (*model.Account, error) {
	a, err := g.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !a.IsAdmin() {
		return nil, unauthorized("")
	}
	return a, nil
}

// ValidateReason trims a moderation reason and enforces its minimum length.
func ValidateReason(reason string) (string, error) {
	r := strings.TrimSpace(reason)
	if utf8.RuneCountInString(r) < MinReasonLength {
		return "", invalid(MsgReasonTooShort)
	}
	return r, nil
}

// BanDuration is one of the supported ban lengths.
type BanDuration string

const (
	BanOneDay    BanDuration = "1d"
	BanThreeDays BanDuration = "3d"
	BanOneWeek   BanDuration = "1w"
	BanOneMonth  BanDuration = "1m"
	BanPermanent BanDuration = "permanent"
)

// PermanentBanExpiry stands in for "forever" so every ban check stays a
// plain now < banned_until comparison.
var PermanentBanExpiry = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// ResolveBanExpiry turns d into an absolute expiry relative to now.
func ResolveBanExpiry(d BanDuration, now time.Time) (time.Time, error) {
	now = now.UTC()
	switch d {
	case BanOneDay:
		return now.AddDate(0, 0, 1), nil
	case BanThreeDays:
		return now.AddDate(0, 0, 3), nil
	case BanOneWeek:
		return now.AddDate(0, 0, 7), nil
	case BanOneMonth:
		return now.AddDate(0, 1, 0), nil
	case BanPermanent:
		return PermanentBanExpiry, nil
	}
	return time.Time{}, invalid("Unknown ban duration")
}
