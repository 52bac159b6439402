package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
)

type TenantRepo struct {
	DB DBTX
}

const createTenant = `-- name: CreateTenant
INSERT INTO tenants (id, slug, name)
VALUES ($1, $2, $3)
RETURNING id, created_at, slug, name
`

func (r *TenantRepo) CreateTenant(ctx context.Context, slug string, name string) (models.Tenant, error) {
	rows, _ := r.DB.Query(ctx, createTenant, uuid.New(), slug, name)
	tenant, err := pgx.CollectOneRow(rows, rowToTenant)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return tenant, apperrors.ErrTenantAlreadyExists
		}

		return tenant, fmt.Errorf("db error: %w", err)
	}

	return tenant, nil
}

const getTenantByID = `-- name: GetTenantByID
SELECT id, created_at, slug, name FROM tenants
WHERE id = $1
`

func (r *TenantRepo) GetTenantByID(ctx context.Context, id uuid.UUID) (models.Tenant, error) {
	rows, _ := r.DB.Query(ctx, getTenantByID, id)
	return tenantOrErr(pgx.CollectOneRow(rows, rowToTenant))
}

const getTenantBySlug = `-- name: GetTenantBySlug
SELECT id, created_at, slug, name FROM tenants
WHERE slug = $1
`

func (r *TenantRepo) GetTenantBySlug(ctx context.Context, slug string) (models.Tenant, error) {
	rows, _ := r.DB.Query(ctx, getTenantBySlug, slug)
	return tenantOrErr(pgx.CollectOneRow(rows, rowToTenant))
}

const createCampus = `-- name: CreateCampus
INSERT INTO campuses (id, tenant_id, name)
VALUES ($1, $2, $3)
RETURNING id, tenant_id, created_at, name
`

func (r *TenantRepo) CreateCampus(ctx context.Context, tenantID uuid.UUID, name string) (models.Campus, error) {
	rows, _ := r.DB.Query(ctx, createCampus, uuid.New(), tenantID, name)
	campus, err := pgx.CollectOneRow(rows, rowToCampus)

	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
			return campus, apperrors.ErrCampusAlreadyExists
		case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation:
			return campus, apperrors.ErrTenantNotFound
		}

		return campus, fmt.Errorf("db error: %w", err)
	}

	return campus, nil
}

const getCampus = `-- name: GetCampus
SELECT id, tenant_id, created_at, name FROM campuses
WHERE id = $1 AND ($2::uuid IS NULL OR tenant_id = $2)
`

func (r *TenantRepo) GetCampus(ctx context.Context, scope repository.Scope, id uuid.UUID) (models.Campus, error) {
	rows, _ := r.DB.Query(ctx, getCampus, id, scopeArg(scope))
	campus, err := pgx.CollectOneRow(rows, rowToCampus)

	switch {
	case err == nil:
		return campus, nil
	case errors.Is(err, pgx.ErrNoRows):
		return campus, apperrors.ErrCampusNotFound
	default:
		return campus, fmt.Errorf("db error: %w", err)
	}
}

func tenantOrErr(tenant models.Tenant, err error) (models.Tenant, error) {
	switch {
	case err == nil:
		return tenant, nil
	case errors.Is(err, pgx.ErrNoRows):
		return tenant, apperrors.ErrTenantNotFound
	default:
		return tenant, fmt.Errorf("db error: %w", err)
	}
}

func rowToTenant(row pgx.CollectableRow) (models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.CreatedAt, &t.Slug, &t.Name)
	return t, err
}

func rowToCampus(row pgx.CollectableRow) (models.Campus, error) {
	var c models.Campus
	err := row.Scan(&c.ID, &c.TenantID, &c.CreatedAt, &c.Name)
	return c, err
}

// Scope as nullable query argument: NULL means any tenant
func scopeArg(scope repository.Scope) *uuid.UUID {
	if scope.TenantID == uuid.Nil {
		return nil
	}
	return &scope.TenantID
}
