// Package memory keeps the storage in process memory.
// Transactions are serialized, so it backs the unit tests of the services.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/schoolhub/internal/models"
	"github.com/nkiryanov/schoolhub/internal/repository"
)

type state struct {
	tenants  map[uuid.UUID]models.Tenant
	campuses map[uuid.UUID]models.Campus
	users    map[uuid.UUID]models.User
	tokens   map[uuid.UUID]models.RefreshToken
	byHash   map[string]uuid.UUID
}

func newState() *state {
	return &state{
		tenants:  make(map[uuid.UUID]models.Tenant),
		campuses: make(map[uuid.UUID]models.Campus),
		users:    make(map[uuid.UUID]models.User),
		tokens:   make(map[uuid.UUID]models.RefreshToken),
		byHash:   make(map[string]uuid.UUID),
	}
}

func (s *state) clone() *state {
	return &state{
		tenants:  maps.Clone(s.tenants),
		campuses: maps.Clone(s.campuses),
		users:    maps.Clone(s.users),
		tokens:   maps.Clone(s.tokens),
		byHash:   maps.Clone(s.byHash),
	}
}

// Storage guards its state with a mutex.
// Transaction works on a copy of the state and holds the mutex until fn returns,
// so transactions are fully serialized.
type Storage struct {
	mu *sync.Mutex // nil within transaction
	st *state
}

var _ repository.Storage = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{mu: &sync.Mutex{}, st: newState()}
}

func (s *Storage) lock() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Storage) Tenant() repository.TenantRepo {
	return &TenantRepo{s: s}
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{s: s}
}

func (s *Storage) Refresh() repository.RefreshTokenRepo {
	return &RefreshTokenRepo{s: s}
}

func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lock()
	defer unlock()

	tx := &Storage{st: s.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}

	*s.st = *tx.st
	return nil
}
