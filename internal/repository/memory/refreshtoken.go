package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
)

type RefreshTokenRepo struct {
	s *Storage
}

func (r *RefreshTokenRepo) Create(_ context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	defer r.s.lock()()
	st := r.s.st

	if _, ok := st.byHash[token.TokenHash]; ok {
		return models.RefreshToken{}, fmt.Errorf("hash taken: %w", apperrors.ErrRefreshTokenAlreadyExists)
	}
	if _, ok := st.tokens[token.ID]; ok {
		return models.RefreshToken{}, fmt.Errorf("id %s taken: %w", token.ID, apperrors.ErrRefreshTokenAlreadyExists)
	}

	token.IsRevoked = false
	token.RevokedAt = nil
	token.RevokedReason = models.RevokeReasonNone
	token.RevokedByIP = ""
	token.ReplacedByTokenID = nil

	st.tokens[token.ID] = token
	st.byHash[token.TokenHash] = token.ID
	return token, nil
}

func (r *RefreshTokenRepo) GetByHash(_ context.Context, scope repository.Scope, tokenHash string) (models.RefreshToken, error) {
	defer r.s.lock()()

	id, ok := r.s.st.byHash[tokenHash]
	if !ok {
		return models.RefreshToken{}, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}
	token := r.s.st.tokens[id]
	if !scope.Allows(token.TenantID) {
		return models.RefreshToken{}, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}
	return token, nil
}

func (r *RefreshTokenRepo) Update(_ context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	defer r.s.lock()()

	stored, ok := r.s.st.tokens[token.ID]
	if !ok {
		return models.RefreshToken{}, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}

	if token.IsRevoked && token.RevokedAt != nil {
		stored.Revoke(*token.RevokedAt, token.RevokedReason, token.RevokedByIP)
	}
	if token.ReplacedByTokenID != nil {
		stored.ReplaceBy(*token.ReplacedByTokenID)
	}

	r.s.st.tokens[stored.ID] = stored
	return stored, nil
}

func (r *RefreshTokenRepo) ListActiveForUser(_ context.Context, scope repository.Scope, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	defer r.s.lock()()

	var tokens []models.RefreshToken
	for _, t := range r.s.st.tokens {
		if t.UserID == userID && scope.Allows(t.TenantID) && t.IsActive(now) {
			tokens = append(tokens, t)
		}
	}

	slices.SortFunc(tokens, func(a, b models.RefreshToken) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return tokens, nil
}
