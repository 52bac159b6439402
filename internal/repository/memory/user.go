package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
)

type UserRepo struct {
	s *Storage
}

func (r *UserRepo) CreateUser(_ context.Context, params repository.CreateUserParams) (models.User, error) {
	defer r.s.lock()()
	st := r.s.st

	if !params.Role.Valid() {
		return models.User{}, apperrors.ErrUserRoleInvalid
	}
	if _, ok := st.tenants[params.TenantID]; !ok {
		return models.User{}, fmt.Errorf("tenant or campus not exists: %w", apperrors.ErrNotFound)
	}
	if params.CampusID != nil {
		if _, ok := st.campuses[*params.CampusID]; !ok {
			return models.User{}, fmt.Errorf("tenant or campus not exists: %w", apperrors.ErrNotFound)
		}
	}
	for _, u := range st.users {
		if u.TenantID == params.TenantID && u.Email == params.Email {
			return models.User{}, apperrors.ErrUserAlreadyExists
		}
	}

	user := models.User{
		ID:             uuid.New(),
		CreatedAt:      time.Now(),
		TenantID:       params.TenantID,
		CampusID:       params.CampusID,
		Email:          params.Email,
		HashedPassword: params.HashedPassword,
		Role:           params.Role,
	}
	st.users[user.ID] = user
	return user, nil
}

func (r *UserRepo) GetUserByID(_ context.Context, scope repository.Scope, id uuid.UUID) (models.User, error) {
	defer r.s.lock()()

	user, ok := r.s.st.users[id]
	if !ok || !scope.Allows(user.TenantID) {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return user, nil
}

func (r *UserRepo) GetUserByEmail(_ context.Context, scope repository.Scope, email string) (models.User, error) {
	defer r.s.lock()()

	var found []models.User
	for _, u := range r.s.st.users {
		if u.Email == email && scope.Allows(u.TenantID) {
			found = append(found, u)
		}
	}

	if len(found) != 1 {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return found[0], nil
}
