package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
)

type TenantRepo struct {
	s *Storage
}

func (r *TenantRepo) CreateTenant(_ context.Context, slug string, name string) (models.Tenant, error) {
	defer r.s.lock()()

	for _, t := range r.s.st.tenants {
		if t.Slug == slug {
			return models.Tenant{}, apperrors.ErrTenantAlreadyExists
		}
	}

	tenant := models.Tenant{ID: uuid.New(), CreatedAt: time.Now(), Slug: slug, Name: name}
	r.s.st.tenants[tenant.ID] = tenant
	return tenant, nil
}

func (r *TenantRepo) GetTenantByID(_ context.Context, id uuid.UUID) (models.Tenant, error) {
	defer r.s.lock()()

	tenant, ok := r.s.st.tenants[id]
	if !ok {
		return tenant, apperrors.ErrTenantNotFound
	}
	return tenant, nil
}

func (r *TenantRepo) GetTenantBySlug(_ context.Context, slug string) (models.Tenant, error) {
	defer r.s.lock()()

	for _, t := range r.s.st.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return models.Tenant{}, apperrors.ErrTenantNotFound
}

func (r *TenantRepo) CreateCampus(_ context.Context, tenantID uuid.UUID, name string) (models.Campus, error) {
	defer r.s.lock()()

	if _, ok := r.s.st.tenants[tenantID]; !ok {
		return models.Campus{}, apperrors.ErrTenantNotFound
	}
	for _, c := range r.s.st.campuses {
		if c.TenantID == tenantID && c.Name == name {
			return models.Campus{}, apperrors.ErrCampusAlreadyExists
		}
	}

	campus := models.Campus{ID: uuid.New(), TenantID: tenantID, CreatedAt: time.Now(), Name: name}
	r.s.st.campuses[campus.ID] = campus
	return campus, nil
}

func (r *TenantRepo) GetCampus(_ context.Context, scope repository.Scope, id uuid.UUID) (models.Campus, error) {
	defer r.s.lock()()

	campus, ok := r.s.st.campuses[id]
	if !ok || !scope.Allows(campus.TenantID) {
		return models.Campus{}, apperrors.ErrCampusNotFound
	}
	return campus, nil
}
