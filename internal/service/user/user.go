package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
	"github.com/nkiryanov/schoolhub/internal/service/auth"
)

type CreateUserParams struct {
	TenantID uuid.UUID
	CampusID *uuid.UUID
	Email    string
	Password string
	Role     models.Role
}

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage

	// Compared against when user not found, so both branches cost the same
	dummyHash func() (string, error)
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
		dummyHash: sync.OnceValues(func() (string, error) {
			return hasher.Hash("schoolhub-dummy-password")
		}),
	}
}

func (s *UserService) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	var user models.User

	if !params.Role.Valid() {
		return user, apperrors.ErrUserRoleInvalid
	}
	if params.Password == "" {
		return user, errors.New("password must not be empty")
	}

	if params.CampusID != nil {
		_, err := s.storage.Tenant().GetCampus(ctx, repository.TenantScope(params.TenantID), *params.CampusID)
		if err != nil {
			return user, fmt.Errorf("campus must belong to user tenant. Err: %w", err)
		}
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		TenantID:       params.TenantID,
		CampusID:       params.CampusID,
		Email:          models.NormalizeEmail(params.Email),
		HashedPassword: hash,
		Role:           params.Role,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Authenticate checks user credentials within the tenant
// Any mismatch (tenant, email or password) is apperrors.ErrInvalidCredentials
func (s *UserService) Authenticate(ctx context.Context, tenantSlug string, email string, password string) (models.User, error) {
	var user models.User

	tenant, err := s.storage.Tenant().GetTenantBySlug(ctx, strings.ToLower(tenantSlug))
	switch {
	case errors.Is(err, apperrors.ErrTenantNotFound):
		return user, s.failCompare(password)
	case err != nil:
		return user, err
	}

	user, err = s.storage.User().GetUserByEmail(ctx, repository.TenantScope(tenant.ID), models.NormalizeEmail(email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.User{}, s.failCompare(password)
	case err != nil:
		return models.User{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, scope repository.Scope, id uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, scope, id)
}

func (s *UserService) GetUserByEmail(ctx context.Context, scope repository.Scope, email string) (models.User, error) {
	return s.storage.User().GetUserByEmail(ctx, scope, models.NormalizeEmail(email))
}

func (s *UserService) failCompare(password string) error {
	hash, err := s.dummyHash()
	if err != nil {
		return fmt.Errorf("dummy hash error: %w", err)
	}
	_ = s.hasher.Compare(hash, password)
	return apperrors.ErrInvalidCredentials
}
