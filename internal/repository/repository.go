package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolhub/internal/models"
)

// Scope restricts a query to one tenant
// Zero value means tenant is not known to the caller and the row's own tenant is trusted
type Scope struct {
	TenantID uuid.UUID
}

func TenantScope(tenantID uuid.UUID) Scope {
	return Scope{TenantID: tenantID}
}

// Whether the row owned by tenantID is visible within the scope
func (s Scope) Allows(tenantID uuid.UUID) bool {
	return s.TenantID == uuid.Nil || s.TenantID == tenantID
}

// Tenant and campus repository
type TenantRepo interface {
	// Has to return apperrors.ErrTenantAlreadyExists if slug is taken
	CreateTenant(ctx context.Context, slug string, name string) (models.Tenant, error)

	// Has to return apperrors.ErrTenantNotFound if tenant not exists
	GetTenantByID(ctx context.Context, id uuid.UUID) (models.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (models.Tenant, error)

	// Has to return apperrors.ErrCampusAlreadyExists if name is taken within the tenant
	CreateCampus(ctx context.Context, tenantID uuid.UUID, name string) (models.Campus, error)

	// Has to return apperrors.ErrCampusNotFound if campus not exists in the scope
	GetCampus(ctx context.Context, scope Scope, id uuid.UUID) (models.Campus, error)
}

type CreateUserParams struct {
	TenantID       uuid.UUID
	CampusID       *uuid.UUID
	Email          string
	HashedPassword string
	Role           models.Role
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with the email exists within the tenant has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id or email
	// If user not found in the scope must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, scope Scope, id uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, scope Scope, email string) (models.User, error)
}

// RefreshToken repository interface
// Rows are never deleted: revoked rows are what reuse detection works on
type RefreshTokenRepo interface {
	// Insert new token. TokenHash must be unique
	Create(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token (revoked or expired too) by secret hash
	// Must return apperrors.ErrRefreshTokenNotFound if no token in the scope
	// Within a transaction the row stays locked until the transaction ends
	GetByHash(ctx context.Context, scope Scope, tokenHash string) (models.RefreshToken, error)

	// Persist revocation state of the token
	// Must never un-revoke the token nor overwrite revocation fields or successor reference once set
	Update(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Tokens of the user that are not revoked and expire after 'now'
	// Within a transaction the rows stay locked until the transaction ends
	ListActiveForUser(ctx context.Context, scope Scope, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error)
}

type Storage interface {
	Tenant() TenantRepo
	User() UserRepo
	Refresh() RefreshTokenRepo

	// Run fn within a transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
