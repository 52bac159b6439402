package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
	"github.com/nkiryanov/schoolhub/internal/service/auth"
	"github.com/nkiryanov/schoolhub/internal/service/user"
	"github.com/nkiryanov/schoolhub/internal/service/validate"
)

type params struct {
	TenantSlug    string
	TenantName    string
	CampusName    string
	AdminEmail    string
	AdminPassword string
	AdminRole     models.Role
}

type result struct {
	Tenant models.Tenant
	Campus *models.Campus
	Admin  models.User
}

func (p params) validate() error {
	var errs []error

	if err := validate.Slug(p.TenantSlug); err != nil {
		errs = append(errs, fmt.Errorf("tenant: %w", err))
	}
	if p.AdminEmail == "" {
		errs = append(errs, errors.New("admin email is required"))
	}
	if p.AdminPassword == "" {
		errs = append(errs, errors.New("admin password is required"))
	}
	switch p.AdminRole {
	case models.RoleTenantAdmin:
	case models.RoleCampusAdmin:
		if p.CampusName == "" {
			errs = append(errs, errors.New("campus admin requires campus"))
		}
	default:
		errs = append(errs, fmt.Errorf("admin role %q: %w", p.AdminRole, apperrors.ErrUserRoleInvalid))
	}

	return errors.Join(errs...)
}

// Create tenant, optional campus and its administrator at once: either all or nothing
func provision(ctx context.Context, storage repository.Storage, hasher auth.PasswordHasher, p params) (result, error) {
	var res result

	if err := p.validate(); err != nil {
		return res, err
	}
	if p.TenantName == "" {
		p.TenantName = p.TenantSlug
	}

	err := storage.InTx(ctx, func(tx repository.Storage) error {
		tenant, err := tx.Tenant().CreateTenant(ctx, p.TenantSlug, p.TenantName)
		if err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}
		res.Tenant = tenant

		var campusID *uuid.UUID
		if p.CampusName != "" {
			campus, err := tx.Tenant().CreateCampus(ctx, tenant.ID, p.CampusName)
			if err != nil {
				return fmt.Errorf("create campus: %w", err)
			}
			res.Campus = &campus
			if p.AdminRole == models.RoleCampusAdmin {
				campusID = &campus.ID
			}
		}

		admin, err := user.NewService(hasher, tx).CreateUser(ctx, user.CreateUserParams{
			TenantID: tenant.ID,
			CampusID: campusID,
			Email:    p.AdminEmail,
			Password: p.AdminPassword,
			Role:     p.AdminRole,
		})
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		res.Admin = admin

		return nil
	})

	if err != nil {
		return result{}, err
	}
	return res, nil
}
