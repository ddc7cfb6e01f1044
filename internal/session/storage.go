package session

import (
	"context"
	"errors"
	"sync"
)

// Keys persisted for a client context.
const (
	KeyUser         = "user"
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyAdmin        = "admin"
	KeySuperadmin   = "superadmin"
)

var allKeys = []string{KeyUser, KeyAccessToken, KeyRefreshToken, KeyAdmin, KeySuperadmin}

var ErrMissing = errors.New("session key not found")

// Storage is the key-value medium a Store persists into.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Backend hands out the Storage for one session id and remembers which
// sessions belong to which user, so all of them can be ended at once.
type Backend interface {
	Storage(sid string) Storage
	Track(ctx context.Context, userID, sid string) error
	EndAll(ctx context.Context, userID string) error
}

type MemoryStorage struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: make(map[string]string)}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.m[key]
	if !ok {
		return "", ErrMissing
	}
	return v, nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.m, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

type MemoryBackend struct {
	mu       sync.Mutex
	sessions map[string]*MemoryStorage
	byUser   map[string]map[string]struct{}
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions: make(map[string]*MemoryStorage),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (b *MemoryBackend) Track(_ context.Context, userID, sid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		b.byUser[userID] = set
	}
	set[sid] = struct{}{}
	return nil
}

func (b *MemoryBackend) EndAll(_ context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sid := range b.byUser[userID] {
		delete(b.sessions, sid)
	}
	delete(b.byUser, userID)
	return nil
}

func (b *MemoryBackend) Storage(sid string) Storage {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[sid]
	if !ok {
		s = NewMemoryStorage()
		b.sessions[sid] = s
	}
	return s
}
