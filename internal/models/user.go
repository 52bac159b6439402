package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleCampusAdmin Role = "campus_admin"
	RoleTeacher     Role = "teacher"
	RoleStudent     Role = "student"
	RoleParent      Role = "parent"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleTenantAdmin, RoleCampusAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	default:
		return false
	}
}

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	TenantID       uuid.UUID
	CampusID       *uuid.UUID // nil for tenant wide users
	Email          string
	HashedPassword string
	Role           Role
}

// Emails are compared case insensitive and without surrounding spaces
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
