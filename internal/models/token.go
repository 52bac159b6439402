package models

import (
	"time"

	"github.com/google/uuid"
)

// Why the refresh token was revoked
type RevokeReason string

const (
	RevokeReasonNone    RevokeReason = "" // token is not revoked
	RevokeReasonRotated RevokeReason = "rotated"
	RevokeReasonManual  RevokeReason = "manual-revoke"
	RevokeReasonReuse   RevokeReason = "reuse-detected"
)

type RefreshToken struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	UserID   uuid.UUID

	// First token of the login chain; inherited on every rotation
	FamilyID uuid.UUID

	// Hex encoded sha256 of the raw secret. The raw secret is never stored
	TokenHash string

	CreatedAt        time.Time
	ExpiresAt        time.Time
	SessionStartedAt time.Time

	IsRevoked         bool
	RevokedAt         *time.Time
	RevokedReason     RevokeReason
	ReplacedByTokenID *uuid.UUID

	CreatedByIP string
	RevokedByIP string
}

// Active token is neither revoked nor expired at the moment
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt.After(now)
}

// Revoke marks token revoked. Already revoked token stays untouched:
// the first revocation wins
func (t *RefreshToken) Revoke(now time.Time, reason RevokeReason, ip string) {
	if t.IsRevoked {
		return
	}

	t.IsRevoked = true
	t.RevokedAt = &now
	t.RevokedReason = reason
	t.RevokedByIP = ip
}

// Set successor token. Once set the reference is never overwritten
func (t *RefreshToken) ReplaceBy(id uuid.UUID) {
	if t.ReplacedByTokenID != nil {
		return
	}
	t.ReplacedByTokenID = &id
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issues by AuthService on login or refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
