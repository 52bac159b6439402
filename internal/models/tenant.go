package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolated organization (school group) owning campuses and users
type Tenant struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Slug      string
	Name      string
}

// Campus is a physical site of a tenant
type Campus struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	CreatedAt time.Time
	Name      string
}
