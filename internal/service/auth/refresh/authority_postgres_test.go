package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/logger"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
	"github.com/nkiryanov/schoolhub/internal/repository/postgres"
	"github.com/nkiryanov/schoolhub/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/schoolhub/internal/testutil"
)

// Rotations run in real concurrent transactions, so nothing is rolled back here
func TestAuthority_Postgres(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	storage := postgres.NewStorage(pg.Pool)
	tenant, err := storage.Tenant().CreateTenant(t.Context(), "north-high", "North High")
	require.NoError(t, err)
	user, err := storage.User().CreateUser(t.Context(), repository.CreateUserParams{
		TenantID:       tenant.ID,
		Email:          "ada@north.test",
		HashedPassword: "hashed",
		Role:           models.RoleStudent,
	})
	require.NoError(t, err)

	access, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret-key"})
	require.NoError(t, err)
	authority := New(Config{RefreshTTL: time.Hour}, storage, access, logger.NewNoOpLogger())

	t.Run("concurrent rotations create single successor", func(t *testing.T) {
		issued, err := authority.Issue(t.Context(), user, client)
		require.NoError(t, err)

		results := rotateConcurrently(t, authority, issued.Value, 8)

		assert.Equal(t, 1, results.succeeded, "exactly one rotation succeeds")
		assert.Equal(t, 7, results.reused+results.invalid)

		var successors int
		err = pg.Pool.QueryRow(t.Context(),
			`SELECT count(*) FROM refresh_tokens WHERE family_id = (SELECT family_id FROM refresh_tokens WHERE token_hash = $1)`,
			HashSecret(issued.Value),
		).Scan(&successors)
		require.NoError(t, err)
		assert.Equal(t, 2, successors, "family holds the issued token and one successor")

		active, err := authority.ActiveForUser(t.Context(), repository.TenantScope(tenant.ID), user.ID)
		require.NoError(t, err)
		assert.Empty(t, active, "losers trigger the reuse sweep")
	})

	t.Run("reuse sweep is committed", func(t *testing.T) {
		t1, err := authority.Issue(t.Context(), user, client)
		require.NoError(t, err)
		pair, err := authority.Rotate(t.Context(), t1.Value, client)
		require.NoError(t, err)

		_, err = authority.Rotate(t.Context(), t1.Value, client)
		require.ErrorIs(t, err, apperrors.ErrTokenReuseDetected)

		t2, err := storage.Refresh().GetByHash(t.Context(), repository.Scope{}, HashSecret(pair.Refresh.Value))
		require.NoError(t, err)
		assert.True(t, t2.IsRevoked)
		assert.Equal(t, models.RevokeReasonReuse, t2.RevokedReason)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		issued, err := authority.Issue(t.Context(), user, client)
		require.NoError(t, err)

		require.NoError(t, authority.Revoke(t.Context(), issued.Value, client))
		require.NoError(t, authority.Revoke(t.Context(), issued.Value, client))

		_, err = authority.Rotate(t.Context(), issued.Value, client)
		require.ErrorIs(t, err, apperrors.ErrTokenReuseDetected)
	})
}
