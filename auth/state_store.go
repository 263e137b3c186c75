package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrStateNotFound = errors.New("auth: authorization state not found")
	ErrStateExpired  = errors.New("auth: authorization state expired")
)

// AuthorizationState is what AuthorizationURL remembers until the provider
// redirects back with the same state.
type AuthorizationState struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// StateStore keeps pending authorizations. Consume is single use: a second
// call for the same state reports ErrStateNotFound.
type StateStore interface {
	Save(ctx context.Context, record AuthorizationState) error
	Consume(ctx context.Context, state string) (AuthorizationState, error)
}

type MemoryStateStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]AuthorizationState
}

func NewMemoryStateStore(now func() time.Time) *MemoryStateStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStateStore{
		now:     now,
		entries: map[string]AuthorizationState{},
	}
}

func (s *MemoryStateStore) Save(_ context.Context, record AuthorizationState) error {
	state := strings.TrimSpace(record.State)
	if state == "" {
		return errors.New("auth: authorization state is required")
	}
	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(DefaultPendingTTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, key)
		}
	}
	s.entries[state] = record
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (AuthorizationState, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return AuthorizationState{}, ErrStateNotFound
	}

	s.mu.Lock()
	record, ok := s.entries[state]
	delete(s.entries, state)
	s.mu.Unlock()

	if !ok {
		return AuthorizationState{}, ErrStateNotFound
	}
	if s.now().After(record.ExpiresAt) {
		return AuthorizationState{}, ErrStateExpired
	}
	return record, nil
}

func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
