package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

// Create tenant and a teacher in it
func createTenantUser(t *testing.T, tx pgx.Tx, slug string) (models.Tenant, models.User) {
	t.Helper()

	tenant, err := (&TenantRepo{DB: tx}).CreateTenant(t.Context(), slug, "School "+slug)
	require.NoError(t, err, "tenant fixture should be created")

	user, err := (&UserRepo{DB: tx}).CreateUser(t.Context(), repository.CreateUserParams{
		TenantID:       tenant.ID,
		Email:          "teacher@" + slug + ".test",
		HashedPassword: "hashed_password",
		Role:           models.RoleTeacher,
	})
	require.NoError(t, err, "user fixture should be created")

	return tenant, user
}

func newRefreshToken(user models.User, hash string, expiresAt time.Time) models.RefreshToken {
	id := uuid.New()
	createdAt := mustParseTime("2024-01-01 19:00:01Z")

	return models.RefreshToken{
		ID:               id,
		TenantID:         user.TenantID,
		UserID:           user.ID,
		FamilyID:         id,
		TokenHash:        hash,
		CreatedAt:        createdAt,
		ExpiresAt:        expiresAt,
		SessionStartedAt: createdAt,
		CreatedByIP:      "192.0.2.1",
	}
}
