package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const refreshTokenColumns = `id, tenant_id, user_id, family_id, token_hash,
	created_at, expires_at, session_started_at,
	is_revoked, revoked_at, revoked_reason, replaced_by_token_id,
	created_by_ip, revoked_by_ip`

const createToken = `-- name: CreateRefreshToken
INSERT INTO refresh_tokens (
	id, tenant_id, user_id, family_id, token_hash,
	created_at, expires_at, session_started_at, created_by_ip
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + refreshTokenColumns

func (r *RefreshTokenRepo) Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, createToken,
		token.ID, token.TenantID, token.UserID, token.FamilyID, token.TokenHash,
		token.CreatedAt, token.ExpiresAt, token.SessionStartedAt, token.CreatedByIP,
	)
	created, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, apperrors.ErrRefreshTokenAlreadyExists
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getTokenByHash = `-- name: GetRefreshTokenByHash
SELECT ` + refreshTokenColumns + `
FROM refresh_tokens
WHERE token_hash = $1 AND ($2::uuid IS NULL OR tenant_id = $2)
FOR UPDATE
`

// Get token by hash
// It should return result even it expired or revoked already
func (r *RefreshTokenRepo) GetByHash(ctx context.Context, scope repository.Scope, tokenHash string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getTokenByHash, tokenHash, scopeArg(scope))
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

// Revocation fields are written only while the row is not revoked yet,
// successor reference only while it is empty
const updateToken = `-- name: UpdateRefreshToken
UPDATE refresh_tokens
SET is_revoked = is_revoked OR $2,
	revoked_at = CASE WHEN is_revoked THEN revoked_at ELSE $3 END,
	revoked_reason = CASE WHEN is_revoked THEN revoked_reason ELSE $4 END,
	revoked_by_ip = CASE WHEN is_revoked THEN revoked_by_ip ELSE $5 END,
	replaced_by_token_id = COALESCE(replaced_by_token_id, $6)
WHERE id = $1
RETURNING ` + refreshTokenColumns

func (r *RefreshTokenRepo) Update(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	var revokedAt *time.Time
	var reason, revokedByIP *string
	if token.IsRevoked {
		revokedAt = token.RevokedAt
		reason = nullString(string(token.RevokedReason))
		revokedByIP = &token.RevokedByIP
	}

	rows, _ := r.DB.Query(ctx, updateToken,
		token.ID, token.IsRevoked, revokedAt, reason, revokedByIP, token.ReplacedByTokenID,
	)
	updated, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, pgx.ErrNoRows):
		return updated, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return updated, fmt.Errorf("db error: %w", err)
	}
}

const listActiveForUser = `-- name: ListActiveRefreshTokensForUser
SELECT ` + refreshTokenColumns + `
FROM refresh_tokens
WHERE user_id = $1
	AND ($2::uuid IS NULL OR tenant_id = $2)
	AND NOT is_revoked
	AND expires_at > $3
ORDER BY created_at
FOR UPDATE
`

func (r *RefreshTokenRepo) ListActiveForUser(ctx context.Context, scope repository.Scope, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, listActiveForUser, userID, scopeArg(scope), now)
	tokens, err := pgx.CollectRows(rows, rowToRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tokens, nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	var reason, revokedByIP *string

	err := row.Scan(
		&t.ID, &t.TenantID, &t.UserID, &t.FamilyID, &t.TokenHash,
		&t.CreatedAt, &t.ExpiresAt, &t.SessionStartedAt,
		&t.IsRevoked, &t.RevokedAt, &reason, &t.ReplacedByTokenID,
		&t.CreatedByIP, &revokedByIP,
	)
	if reason != nil {
		t.RevokedReason = models.RevokeReason(*reason)
	}
	if revokedByIP != nil {
		t.RevokedByIP = *revokedByIP
	}

	return t, err
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
