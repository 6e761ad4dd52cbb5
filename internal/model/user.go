package model

import "time"

// Account roles.
const (
    RoleUser  = "user"
    RoleAdmin = "admin"
)

// Account represents a row in the `accounts` table.  A ban is modeled as
// an absolute expiry; permanent bans use a far-future timestamp so every
// check is the single comparison done by IsBanned.
//
// Fields:
//  ID           – primary key identifier.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hash, never serialized.
//  DisplayName  – public name shown on listings and conversations.
//  Phone        – contact number, exposed only when a listing opts in.
//  Role         – user or admin.
//  BannedUntil  – ban expiry (nullable).
//  BanReason    – moderator text attached to the ban (nullable).
type Account struct {
    ID           uint64     `json:"id"`
    Email        string     `json:"email"`
    PasswordHash string     `json:"-"`
    DisplayName  string     `json:"display_name"`
    Phone        string     `json:"phone,omitempty"`
    Role         string     `json:"role"`
    BannedUntil  *time.Time `json:"banned_until,omitempty"`
    BanReason    *string    `json:"ban_reason,omitempty"`
    CreatedAt    time.Time  `json:"created_at"`
    UpdatedAt    time.Time  `json:"updated_at"`
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool { return a.Role == RoleAdmin }

// IsBanned reports whether a ban is in force at now.
func (a *Account) IsBanned(now time.Time) bool {
    return a.BannedUntil != nil && now.Before(*a.BannedUntil)
}

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is never stored; only its SHA-256 hash.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
