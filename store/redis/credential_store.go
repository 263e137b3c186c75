package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-apiclient/core"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix  = "apiclient:session"
	DefaultSessionKey = "default"
)

var errRedisUnavailable = errors.New("redisstore: redis unavailable")

// CredentialStore keeps one session's credential pair in a redis hash whose
// fields are the configured token keys.
type CredentialStore struct {
	redis redis.UniversalClient

	prefix          string
	sessionKey      string
	accessTokenKey  string
	refreshTokenKey string
	ttl             time.Duration
}

var _ core.CredentialPersistence = (*CredentialStore)(nil)

type Option func(*CredentialStore)

func WithKeyPrefix(prefix string) Option {
	return func(s *CredentialStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.prefix = strings.TrimSuffix(trimmed, ":")
		}
	}
}

func WithSessionKey(key string) Option {
	return func(s *CredentialStore) {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			s.sessionKey = trimmed
		}
	}
}

func WithTokenKeys(storage core.StorageConfig) Option {
	return func(s *CredentialStore) {
		if key := strings.TrimSpace(storage.AccessTokenKey); key != "" {
			s.accessTokenKey = key
		}
		if key := strings.TrimSpace(storage.RefreshTokenKey); key != "" {
			s.refreshTokenKey = key
		}
	}
}

// WithTTL expires the stored pair after ttl of inactivity. Zero keeps it
// until cleared.
func WithTTL(ttl time.Duration) Option {
	return func(s *CredentialStore) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

func NewCredentialStore(client redis.UniversalClient, opts ...Option) (*CredentialStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	store := &CredentialStore{
		redis:           client,
		prefix:          DefaultKeyPrefix,
		sessionKey:      DefaultSessionKey,
		accessTokenKey:  core.DefaultAccessTokenKey,
		refreshTokenKey: core.DefaultRefreshTokenKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *CredentialStore) Key() string {
	return s.prefix + ":" + s.sessionKey
}

func (s *CredentialStore) Load(ctx context.Context) (core.CredentialPair, bool, error) {
	values, err := s.redis.HMGet(ctx, s.Key(), s.accessTokenKey, s.refreshTokenKey).Result()
	if err != nil {
		return core.CredentialPair{}, false, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	pair := core.CredentialPair{
		AccessToken:  stringValue(values, 0),
		RefreshToken: stringValue(values, 1),
	}
	if pair.IsZero() {
		return core.CredentialPair{}, false, nil
	}
	return pair, true, nil
}

// Save replaces the hash atomically. An empty refresh token removes the
// refresh field.
func (s *CredentialStore) Save(ctx context.Context, pair core.CredentialPair) error {
	key := s.Key()
	fields := map[string]any{}
	if access := strings.TrimSpace(pair.AccessToken); access != "" {
		fields[s.accessTokenKey] = access
	}
	if refresh := strings.TrimSpace(pair.RefreshToken); refresh != "" {
		fields[s.refreshTokenKey] = refresh
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) == 0 {
			return nil
		}
		pipe.HSet(ctx, key, fields)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return nil
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.Key()).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return nil
}

func stringValue(values []any, index int) string {
	if index >= len(values) {
		return ""
	}
	value, _ := values[index].(string)
	return value
}
