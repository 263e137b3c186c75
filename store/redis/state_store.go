package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-apiclient/auth"
	"github.com/redis/go-redis/v9"
)

const DefaultStatePrefix = "apiclient:oidc_state"

// StateStore keeps pending OIDC authorizations in redis so the callback can
// land on any instance. Each record expires with its ExpiresAt.
type StateStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ auth.StateStore = (*StateStore)(nil)

type StateOption func(*StateStore)

func WithStatePrefix(prefix string) StateOption {
	return func(s *StateStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.prefix = strings.TrimSuffix(trimmed, ":")
		}
	}
}

func WithStateClock(now func() time.Time) StateOption {
	return func(s *StateStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStateStore(client redis.UniversalClient, opts ...StateOption) (*StateStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	store := &StateStore{
		redis:  client,
		prefix: DefaultStatePrefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *StateStore) key(state string) string {
	return s.prefix + ":" + state
}

func (s *StateStore) Save(ctx context.Context, record auth.AuthorizationState) error {
	record.State = strings.TrimSpace(record.State)
	if record.State == "" {
		return fmt.Errorf("redisstore: authorization state is required")
	}
	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(auth.DefaultPendingTTL)
	}
	ttl := record.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return auth.ErrStateExpired
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redisstore: encode authorization state: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(record.State), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return nil
}

// Consume reads and deletes the record in one GETDEL.
func (s *StateStore) Consume(ctx context.Context, state string) (auth.AuthorizationState, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return auth.AuthorizationState{}, auth.ErrStateNotFound
	}
	payload, err := s.redis.GetDel(ctx, s.key(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth.AuthorizationState{}, auth.ErrStateNotFound
	}
	if err != nil {
		return auth.AuthorizationState{}, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}

	var record auth.AuthorizationState
	if err := json.Unmarshal(payload, &record); err != nil {
		return auth.AuthorizationState{}, fmt.Errorf("redisstore: decode authorization state: %w", err)
	}
	if s.now().After(record.ExpiresAt) {
		return auth.AuthorizationState{}, auth.ErrStateExpired
	}
	return record, nil
}
