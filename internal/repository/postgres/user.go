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

type UserRepo struct {
	DB DBTX
}

const createUser = `-- name: CreateUser
INSERT INTO users (id, tenant_id, campus_id, email, password_hash, role)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, tenant_id, campus_id, email, password_hash, role
`

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser,
		uuid.New(), params.TenantID, params.CampusID, params.Email, params.HashedPassword, params.Role,
	)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
			return user, apperrors.ErrUserAlreadyExists
		case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation:
			return user, apperrors.ErrUserRoleInvalid
		case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation:
			return user, fmt.Errorf("tenant or campus not exists: %w", apperrors.ErrNotFound)
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT id, created_at, tenant_id, campus_id, email, password_hash, role FROM users
WHERE id = $1 AND ($2::uuid IS NULL OR tenant_id = $2)
`

func (r *UserRepo) GetUserByID(ctx context.Context, scope repository.Scope, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id, scopeArg(scope))
	return userOrErr(pgx.CollectOneRow(rows, rowToUser))
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT id, created_at, tenant_id, campus_id, email, password_hash, role FROM users
WHERE email = $1 AND ($2::uuid IS NULL OR tenant_id = $2)
`

// Email is unique within a tenant only, so unscoped lookup may be ambiguous
// In that case the user is treated as not found
func (r *UserRepo) GetUserByEmail(ctx context.Context, scope repository.Scope, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email, scopeArg(scope))
	user, err := pgx.CollectExactlyOneRow(rows, rowToUser)

	if errors.Is(err, pgx.ErrTooManyRows) {
		return user, apperrors.ErrUserNotFound
	}
	return userOrErr(user, err)
}

func userOrErr(user models.User, err error) (models.User, error) {
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.TenantID, &u.CampusID, &u.Email, &u.HashedPassword, &u.Role)
	return u, err
}
