// Package memory is an in-process account.Store used by tests and by
// single-node development setups.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orbitadevhub/backDashboard/account"
)

// Store keeps accounts in maps guarded by a single RWMutex. Uniqueness of
// email and external id is checked and claimed under the write lock, so two
// concurrent Create calls for the same email cannot both succeed.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]account.Account
	byEmail    map[string]string
	byExternal map[string]string
	now        func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:       make(map[string]account.Account),
		byEmail:    make(map[string]string),
		byExternal: make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) FindByID(ctx context.Context, id string) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}
	if externalID == "" {
		return account.Account{}, account.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalID]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) Create(ctx context.Context, draft account.Draft) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}
	if err := draft.Validate(); err != nil {
		return account.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[draft.Email]; taken {
		return account.Account{}, account.ErrDuplicate
	}
	if draft.ExternalID != "" {
		if _, taken := s.byExternal[draft.ExternalID]; taken {
			return account.Account{}, account.ErrDuplicate
		}
	}

	a := draft.Account(uuid.NewString(), s.now())
	s.byID[a.ID] = a
	s.byEmail[a.Email] = a.ID
	if a.ExternalID != "" {
		s.byExternal[a.ExternalID] = a.ID
	}
	return a.Clone(), nil
}

func (s *Store) Update(ctx context.Context, id string, patch account.Patch) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	if patch.Empty() {
		return current.Clone(), nil
	}

	next, err := patch.Apply(current, s.now())
	if err != nil {
		return account.Account{}, err
	}
	if next.ExternalID != current.ExternalID && next.ExternalID != "" {
		if owner, taken := s.byExternal[next.ExternalID]; taken && owner != id {
			return account.Account{}, account.ErrDuplicate
		}
	}

	if current.ExternalID != "" && current.ExternalID != next.ExternalID {
		delete(s.byExternal, current.ExternalID)
	}
	if next.ExternalID != "" {
		s.byExternal[next.ExternalID] = id
	}
	s.byID[id] = next
	return next.Clone(), nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
