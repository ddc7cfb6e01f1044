// Package session holds the identity of one client context together with the
// tokens it authenticates with, mirrored into a persisted key-value Storage.
//
// A Store is built with Open, which loads whatever the storage already holds,
// and is finished with Close. Mutations persist first and update memory after,
// so memory never claims something storage does not have.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/geocoder89/parcelhub/internal/domain/role"
)

var (
	ErrClosed          = errors.New("session store is closed")
	ErrInvalidIdentity = errors.New("invalid session identity")
)

type Store struct {
	mu       sync.RWMutex
	storage  Storage
	identity *Identity
	access   string
	refresh  string
	closed   bool
}

// Open builds a Store and initializes it from storage.
func Open(ctx context.Context, storage Storage) (*Store, error) {
	s := &Store{storage: storage}

	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns a copy of the identity, or nil when nobody is signed in.
func (s *Store) Current() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.identity == nil {
		return nil
	}
	return s.identity.clone()
}

func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil
}

// Tokens returns the access and refresh tokens held for this context.
func (s *Store) Tokens() (access, refresh string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, s.refresh
}

// Set replaces the identity. A nil identity signs the context out of its
// identity but keeps the tokens; use Logout to drop everything.
func (s *Store) Set(ctx context.Context, id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if id == nil {
		if err := s.storage.Delete(ctx, KeyUser, KeyAdmin, KeySuperadmin); err != nil {
			return fmt.Errorf("clear identity: %w", err)
		}
		s.identity = nil
		return nil
	}

	if id.ID == "" || !id.Role.Valid() {
		return ErrInvalidIdentity
	}

	raw, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}

	if err := s.storage.Set(ctx, KeyUser, string(raw)); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}
	if err := s.persistRoleKey(ctx, id.Role, string(raw)); err != nil {
		return err
	}

	s.identity = id.clone()
	return nil
}

// admin and superadmin identities are also kept under their role key.
func (s *Store) persistRoleKey(ctx context.Context, r role.Role, raw string) error {
	var keep, drop []string

	switch r {
	case role.Superadmin:
		keep, drop = []string{KeySuperadmin}, []string{KeyAdmin}
	case role.Admin:
		keep, drop = []string{KeyAdmin}, []string{KeySuperadmin}
	case role.User:
		drop = []string{KeyAdmin, KeySuperadmin}
	}

	for _, k := range keep {
		if err := s.storage.Set(ctx, k, raw); err != nil {
			return fmt.Errorf("persist %s: %w", k, err)
		}
	}
	if err := s.storage.Delete(ctx, drop...); err != nil {
		return fmt.Errorf("clear role keys: %w", err)
	}
	return nil
}

func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if err := s.storage.Set(ctx, KeyAccessToken, access); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if err := s.storage.Set(ctx, KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}

	s.access, s.refresh = access, refresh
	return nil
}

// Logout clears every persisted key and the in-memory state. Memory is cleared
// even when storage fails, so the context is signed out locally either way.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = nil
	s.access, s.refresh = "", ""

	if s.closed {
		return ErrClosed
	}
	if err := s.storage.Delete(ctx, allKeys...); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Sync re-reads storage into memory. A missing or unreadable user entry means
// no identity.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	id, err := s.loadIdentity(ctx)
	if err != nil {
		return err
	}

	access, err := s.loadString(ctx, KeyAccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.loadString(ctx, KeyRefreshToken)
	if err != nil {
		return err
	}

	s.identity = id
	s.access, s.refresh = access, refresh
	return nil
}

func (s *Store) loadIdentity(ctx context.Context) (*Identity, error) {
	raw, err := s.loadString(ctx, KeyUser)
	if err != nil || raw == "" {
		return nil, err
	}

	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil || id.ID == "" {
		return nil, nil
	}
	return &id, nil
}

func (s *Store) loadString(ctx context.Context, key string) (string, error) {
	v, err := s.storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMissing) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

// Close detaches the store from its storage. Persisted state is left as is.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.storage = nil
	s.mu.Unlock()
}
