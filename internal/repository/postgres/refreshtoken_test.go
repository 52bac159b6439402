package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
	"github.com/nkiryanov/schoolhub/internal/testutil"
)

func Test_RefreshTokenRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	farFuture := mustParseTime("2200-01-01 03:00:02Z")
	now := mustParseTime("2024-01-02 10:00:00Z")

	t.Run("create token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			_, user := createTenantUser(t, tx, "north-high")
			repo := RefreshTokenRepo{DB: tx}
			token := newRefreshToken(user, "hash-1", farFuture)

			got, err := repo.Create(t.Context(), token)

			require.NoError(t, err)
			require.Equal(t, token.ID, got.ID)
			require.Equal(t, token.FamilyID, got.FamilyID)
			require.Equal(t, user.TenantID, got.TenantID)
			require.Equal(t, user.ID, got.UserID)
			require.Equal(t, "hash-1", got.TokenHash)
			require.Equal(t, "192.0.2.1", got.CreatedByIP)
			require.WithinDuration(t, token.CreatedAt, got.CreatedAt, time.Microsecond)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, time.Microsecond)
			require.WithinDuration(t, token.SessionStartedAt, got.SessionStartedAt, time.Microsecond)
			require.False(t, got.IsRevoked)
			require.Nil(t, got.RevokedAt)
			require.Equal(t, models.RevokeReasonNone, got.RevokedReason)
			require.Nil(t, got.ReplacedByTokenID)
		})
	})

	t.Run("create token with same hash fails", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			_, user := createTenantUser(t, tx, "north-high")
			repo := RefreshTokenRepo{DB: tx}
			_, err := repo.Create(t.Context(), newRefreshToken(user, "hash-1", farFuture))
			require.NoError(t, err)

			_, err = repo.Create(t.Context(), newRefreshToken(user, "hash-1", farFuture))

			require.ErrorIs(t, err, apperrors.ErrRefreshTokenAlreadyExists)
		})
	})

	t.Run("get token by hash", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			tenant, user := createTenantUser(t, tx, "north-high")
			repo := RefreshTokenRepo{DB: tx}
			created, err := repo.Create(t.Context(), newRefreshToken(user, "hash-1", farFuture))
			require.NoError(t, err)

			got, err := repo.GetByHash(t.Context(), repository.TenantScope(tenant.ID), "hash-1")
			require.NoError(t, err)
			assert.Equal(t, created, got)

			got, err = repo.GetByHash(t.Context(), repository.Scope{}, "hash-1")
			require.NoError(t, err)
			assert.Equal(t, created, got)
		})
	})

	t.Run("get token by hash other tenant or unknown hash", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			_, user := createTenantUser(t, tx, "north-high")
			south, _ := createTenantUser(t, tx, "south-high")
			repo := RefreshTokenRepo{DB: tx}
			_, err := repo.Create(t.Context(), newRefreshToken(user, "hash-1", farFuture))
			require.NoError(t, err)

			_, err = repo.GetByHash(t.Context(), repository.TenantScope(south.ID), "hash-1")
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)

			_, err = repo.GetByHash(t.Context(), repository.Scope{}, "unknown")
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("update revokes and links successor", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			_, user := createTenantUser(t, tx, "north-high")
			repo := RefreshTokenRepo{DB: tx}
			old, err := repo.Create(t.Context(), newRefreshToken(user, "hash-1", farFuture))
			require.NoError(t, err)
			successor := newRefreshToken(user, "hash-2", farFuture)
			successor.FamilyID = old.FamilyID
			successor, err = repo.Create(t.Context(), successor)
			require.NoError(t, err)

			old.Revoke(now, models.RevokeReasonRotated, "198.51.100.7")
			old.ReplaceBy(successor.ID)
			got, err := repo.Update(t.Context(), old)

			require.NoError(t, err)
			require.True(t, got.IsRevoked)
			require.NotNil(t, got.RevokedAt)
			require.WithinDuration(t, now, *got.RevokedAt, time.Microsecond)
			require.Equal(t, models.RevokeReasonRotated, got.RevokedReason)
			require.Equal(t, "198.51.100.7", got.RevokedByIP)
			require.Equal(t, &successor.ID, got.ReplacedByTokenID)
		})
	})

	t.Run("update never unrevokes nor overwrites revocation", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			_, user := createTenantUser(t, tx, "north-high")
			repo := RefreshTokenRepo{DB: tx}
			token, err := repo.Create(t.Context(), newRefreshToken(user, "hash-1", farFuture))
			require.NoError(t, err)
			stale := token

			token.Revoke(now, models.RevokeReasonManual, "198.51.100.7")
			_, err = repo.Update(t.Context(), token)
			require.NoError(t, err)

			// Stale copy still thinks token is active
			got, err := repo.Update(t.Context(), stale)
			require.NoError(t, err)
			require.True(t, got.IsRevoked, "revoked token must stay revoked")

			// Another revocation must not rewrite the first one
			later := stale
			later.Revoke(now.Add(time.Hour), models.RevokeReasonReuse, "203.0.113.9")
			got, err = repo.Update(t.Context(), later)
			require.NoError(t, err)
			require.WithinDuration(t, now, *got.RevokedAt, time.Microsecond)
			require.Equal(t, models.RevokeReasonManual, got.RevokedReason)
			require.Equal(t, "198.51.100.7", got.RevokedByIP)
		})
	})

	t.Run("update keeps first successor", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			_, user := createTenantUser(t, tx, "north-high")
			repo := RefreshTokenRepo{DB: tx}
			token, err := repo.Create(t.Context(), newRefreshToken(user, "hash-1", farFuture))
			require.NoError(t, err)
			first, err := repo.Create(t.Context(), newRefreshToken(user, "hash-2", farFuture))
			require.NoError(t, err)
			second, err := repo.Create(t.Context(), newRefreshToken(user, "hash-3", farFuture))
			require.NoError(t, err)

			withFirst := token
			withFirst.ReplaceBy(first.ID)
			_, err = repo.Update(t.Context(), withFirst)
			require.NoError(t, err)

			withSecond := token
			withSecond.ReplaceBy(second.ID)
			got, err := repo.Update(t.Context(), withSecond)

			require.NoError(t, err)
			require.Equal(t, &first.ID, got.ReplacedByTokenID)
		})
	})

	t.Run("update unknown token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}

			_, err := repo.Update(t.Context(), models.RefreshToken{ID: uuid.New()})

			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("list active for user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			tenant, user := createTenantUser(t, tx, "north-high")
			south, other := createTenantUser(t, tx, "south-high")
			repo := RefreshTokenRepo{DB: tx}

			active, err := repo.Create(t.Context(), newRefreshToken(user, "active", farFuture))
			require.NoError(t, err)
			_, err = repo.Create(t.Context(), newRefreshToken(user, "expired", now.Add(-time.Minute)))
			require.NoError(t, err)
			revoked, err := repo.Create(t.Context(), newRefreshToken(user, "revoked", farFuture))
			require.NoError(t, err)
			revoked.Revoke(now, models.RevokeReasonManual, "")
			_, err = repo.Update(t.Context(), revoked)
			require.NoError(t, err)
			_, err = repo.Create(t.Context(), newRefreshToken(other, "other-user", farFuture))
			require.NoError(t, err)

			got, err := repo.ListActiveForUser(t.Context(), repository.TenantScope(tenant.ID), user.ID, now)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, active.ID, got[0].ID)

			got, err = repo.ListActiveForUser(t.Context(), repository.TenantScope(south.ID), user.ID, now)
			require.NoError(t, err)
			assert.Empty(t, got, "tokens of other tenant must be invisible")
		})
	})
}
