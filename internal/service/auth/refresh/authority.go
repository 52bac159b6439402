// Package refresh is the only place where refresh tokens are minted, rotated and revoked.
//
// Refresh tokens are single use. Every successful rotation revokes the presented token
// and links it to its successor. Presenting a revoked token again is treated as theft:
// all active tokens of the owner are revoked in the same transaction.
package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/logger"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
)

const (
	defaultRefreshTTL = 24 * time.Hour

	// 256 bits of entropy
	secretSize = 32
)

type Config struct {
	// Lifetime of every single refresh token
	// If not set than default is used
	RefreshTTL time.Duration

	// Absolute lifetime of a login session regardless of rotations
	// Zero means sessions are limited by RefreshTTL of the last token only
	MaxSessionLifetime time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

type AccessIssuer interface {
	IssueAccess(user models.User) (models.IssuedToken, error)
}

// Client is the caller of the operation
type Client struct {
	// Remote address, kept for audit only
	IP string

	// Tenant the caller is bound to. Zero scope trusts the tenant of the presented token
	Scope repository.Scope
}

// ReuseError is returned when revoked token presented again
type ReuseError struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	FamilyID uuid.UUID

	// How many active tokens were revoked
	Revoked int
}

func (e *ReuseError) Error() string {
	return fmt.Sprintf("refresh token reuse detected for user %s: %d active tokens revoked", e.UserID, e.Revoked)
}

func (e *ReuseError) Unwrap() error {
	return apperrors.ErrTokenReuseDetected
}

type Authority struct {
	refreshTTL  time.Duration
	maxLifetime time.Duration
	now         func() time.Time

	storage repository.Storage
	access  AccessIssuer
	logger  logger.Logger
}

func New(cfg Config, storage repository.Storage, access AccessIssuer, l logger.Logger) *Authority {
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Authority{
		refreshTTL:  cfg.RefreshTTL,
		maxLifetime: cfg.MaxSessionLifetime,
		now:         cfg.Now,
		storage:     storage,
		access:      access,
		logger:      l,
	}
}

func (a *Authority) RefreshTTL() time.Duration {
	return a.refreshTTL
}

// Postgres keeps microseconds only
func (a *Authority) clock() time.Time {
	return a.now().UTC().Truncate(time.Microsecond)
}

// Issue starts new token family for the already authenticated user
func (a *Authority) Issue(ctx context.Context, user models.User, client Client) (models.IssuedToken, error) {
	now := a.clock()

	secret, err := newSecret()
	if err != nil {
		return models.IssuedToken{}, err
	}

	id := uuid.New()
	token := models.RefreshToken{
		ID:               id,
		TenantID:         user.TenantID,
		UserID:           user.ID,
		FamilyID:         id,
		TokenHash:        HashSecret(secret),
		CreatedAt:        now,
		ExpiresAt:        a.expiresAt(now, now),
		SessionStartedAt: now,
		CreatedByIP:      client.IP,
	}

	created, err := a.storage.Refresh().Create(ctx, token)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.IssuedToken{Value: secret, ExpiresAt: created.ExpiresAt}, nil
}

// Rotate exchanges valid refresh token for new access and refresh tokens
//
// Errors:
//   - apperrors.ErrInvalidToken when token unknown (or of other tenant) or its owner is gone
//   - apperrors.ErrTokenExpired when token or its session expired
//   - *ReuseError (apperrors.ErrTokenReuseDetected) when token was already revoked
func (a *Authority) Rotate(ctx context.Context, raw string, client Client) (models.TokenPair, error) {
	var pair models.TokenPair
	var outcome error

	err := a.storage.InTx(ctx, func(tx repository.Storage) error {
		now := a.clock()

		token, err := tx.Refresh().GetByHash(ctx, client.Scope, HashSecret(raw))
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			outcome = apperrors.ErrInvalidToken
			return nil
		case err != nil:
			return err
		}

		if token.IsRevoked {
			revoked, err := a.revokeAllForUser(ctx, tx, token, now, client.IP)
			if err != nil {
				return err
			}
			outcome = &ReuseError{UserID: token.UserID, TenantID: token.TenantID, FamilyID: token.FamilyID, Revoked: revoked}
			return nil
		}

		if !token.IsActive(now) || a.sessionEnded(token, now) {
			outcome = apperrors.ErrTokenExpired
			return nil
		}

		// Owner is read within the transaction, access token gets actual claims
		user, err := tx.User().GetUserByID(ctx, repository.TenantScope(token.TenantID), token.UserID)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			outcome = apperrors.ErrInvalidToken
			return nil
		case err != nil:
			return err
		}

		access, err := a.access.IssueAccess(user)
		if err != nil {
			return err
		}

		refresh, successor, err := a.mintSuccessor(ctx, tx, token, now, client.IP)
		if err != nil {
			return err
		}

		token.Revoke(now, models.RevokeReasonRotated, client.IP)
		token.ReplaceBy(successor.ID)
		if _, err := tx.Refresh().Update(ctx, token); err != nil {
			return fmt.Errorf("error while revoking rotated token. Err: %w", err)
		}

		pair = models.TokenPair{Access: access, Refresh: refresh}
		return nil
	})

	if err != nil {
		return models.TokenPair{}, err
	}
	if outcome != nil {
		var reuse *ReuseError
		if errors.As(outcome, &reuse) {
			a.logger.Warn("Refresh token reuse detected, all user sessions revoked",
				"user_id", reuse.UserID, "tenant_id", reuse.TenantID, "family_id", reuse.FamilyID,
				"revoked", reuse.Revoked, "ip", client.IP,
			)
		}
		return models.TokenPair{}, outcome
	}

	return pair, nil
}

// Revoke is idempotent: unknown or already revoked token is not an error
func (a *Authority) Revoke(ctx context.Context, raw string, client Client) error {
	return a.storage.InTx(ctx, func(tx repository.Storage) error {
		token, err := tx.Refresh().GetByHash(ctx, client.Scope, HashSecret(raw))
		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			return nil
		case err != nil:
			return err
		}

		if token.IsRevoked {
			return nil
		}

		token.Revoke(a.clock(), models.RevokeReasonManual, client.IP)
		if _, err := tx.Refresh().Update(ctx, token); err != nil {
			return fmt.Errorf("error while revoking token. Err: %w", err)
		}
		return nil
	})
}

// ActiveForUser returns tokens neither revoked nor expired
func (a *Authority) ActiveForUser(ctx context.Context, scope repository.Scope, userID uuid.UUID) ([]models.RefreshToken, error) {
	tokens, err := a.storage.Refresh().ListActiveForUser(ctx, scope, userID, a.clock())
	if err != nil {
		return nil, fmt.Errorf("error while listing active tokens. Err: %w", err)
	}
	return tokens, nil
}

func (a *Authority) revokeAllForUser(ctx context.Context, tx repository.Storage, token models.RefreshToken, now time.Time, ip string) (int, error) {
	active, err := tx.Refresh().ListActiveForUser(ctx, repository.TenantScope(token.TenantID), token.UserID, now)
	if err != nil {
		return 0, fmt.Errorf("error while loading user tokens. Err: %w", err)
	}

	for _, t := range active {
		t.Revoke(now, models.RevokeReasonReuse, ip)
		if _, err := tx.Refresh().Update(ctx, t); err != nil {
			return 0, fmt.Errorf("error while revoking user tokens. Err: %w", err)
		}
	}

	return len(active), nil
}

func (a *Authority) mintSuccessor(ctx context.Context, tx repository.Storage, prev models.RefreshToken, now time.Time, ip string) (models.IssuedToken, models.RefreshToken, error) {
	secret, err := newSecret()
	if err != nil {
		return models.IssuedToken{}, models.RefreshToken{}, err
	}

	successor, err := tx.Refresh().Create(ctx, models.RefreshToken{
		ID:               uuid.New(),
		TenantID:         prev.TenantID,
		UserID:           prev.UserID,
		FamilyID:         prev.FamilyID,
		TokenHash:        HashSecret(secret),
		CreatedAt:        now,
		ExpiresAt:        a.expiresAt(now, prev.SessionStartedAt),
		SessionStartedAt: prev.SessionStartedAt,
		CreatedByIP:      ip,
	})
	if err != nil {
		return models.IssuedToken{}, models.RefreshToken{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.IssuedToken{Value: secret, ExpiresAt: successor.ExpiresAt}, successor, nil
}

func (a *Authority) expiresAt(now time.Time, sessionStartedAt time.Time) time.Time {
	expiresAt := now.Add(a.refreshTTL)
	if a.maxLifetime > 0 {
		if limit := sessionStartedAt.Add(a.maxLifetime); limit.Before(expiresAt) {
			return limit
		}
	}
	return expiresAt
}

func (a *Authority) sessionEnded(token models.RefreshToken, now time.Time) bool {
	return a.maxLifetime > 0 && !token.SessionStartedAt.Add(a.maxLifetime).After(now)
}

// HashSecret is how raw secret is looked up in the store
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newSecret() (string, error) {
	b := make([]byte, secretSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generate refresh token. Err: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
