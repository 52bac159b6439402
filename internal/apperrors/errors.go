package apperrors

import (
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")

	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrCampusAlreadyExists = errors.New("campus already exists")
	ErrCampusNotFound      = errors.New("campus not found")

	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserRoleInvalid    = errors.New("user role is invalid")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many attempts")

	// Repository level: no row for the hash (within the requested scope)
	ErrRefreshTokenNotFound      = errors.New("refresh token not found")
	ErrRefreshTokenAlreadyExists = errors.New("refresh token already exists")

	// Refresh outcomes. Each one is terminal for the request
	ErrInvalidToken       = errors.New("refresh token is invalid")
	ErrTokenExpired       = errors.New("refresh token is expired")
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
)
