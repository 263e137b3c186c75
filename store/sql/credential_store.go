package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-apiclient/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const DefaultSessionKey = "default"

// CredentialStore persists the access/refresh pair of one session as two
// rows keyed by the configured token keys.
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*sessionTokenRecord]

	sessionKey      string
	accessTokenKey  string
	refreshTokenKey string
	now             func() time.Time
}

var _ core.CredentialPersistence = (*CredentialStore)(nil)

type CredentialStoreOption func(*CredentialStore)

// WithSessionKey scopes the store to one session so several clients can share
// a table.
func WithSessionKey(key string) CredentialStoreOption {
	return func(s *CredentialStore) {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			s.sessionKey = trimmed
		}
	}
}

// WithTokenKeys names the rows holding the access and refresh tokens.
func WithTokenKeys(storage core.StorageConfig) CredentialStoreOption {
	return func(s *CredentialStore) {
		if key := strings.TrimSpace(storage.AccessTokenKey); key != "" {
			s.accessTokenKey = key
		}
		if key := strings.TrimSpace(storage.RefreshTokenKey); key != "" {
			s.refreshTokenKey = key
		}
	}
}

func WithClock(now func() time.Time) CredentialStoreOption {
	return func(s *CredentialStore) {
		if now != nil {
			s.now = now
		}
	}
}

func (s *CredentialStore) SessionKey() string {
	if s == nil {
		return ""
	}
	return s.sessionKey
}

func (s *CredentialStore) Load(ctx context.Context) (core.CredentialPair, bool, error) {
	if s == nil || s.repo == nil {
		return core.CredentialPair{}, false, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("session_key", "=", s.sessionKey),
		repository.OrderBy("token_key ASC"),
	)
	if err != nil {
		return core.CredentialPair{}, false, err
	}
	if len(records) == 0 {
		return core.CredentialPair{}, false, nil
	}

	pair := core.CredentialPair{}
	for _, record := range records {
		switch record.TokenKey {
		case s.accessTokenKey:
			pair.AccessToken = record.TokenValue
		case s.refreshTokenKey:
			pair.RefreshToken = record.TokenValue
		}
	}
	if pair.IsZero() {
		return core.CredentialPair{}, false, nil
	}
	return pair, true, nil
}

// Save replaces the stored pair in one transaction. An empty refresh token
// leaves no refresh row behind.
func (s *CredentialStore) Save(ctx context.Context, pair core.CredentialPair) error {
	if s == nil || s.repo == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	now := s.now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*sessionTokenRecord)(nil)).
			Where("session_key = ?", s.sessionKey).
			Exec(ctx); err != nil {
			return err
		}

		values := []struct {
			key   string
			value string
		}{
			{key: s.accessTokenKey, value: strings.TrimSpace(pair.AccessToken)},
			{key: s.refreshTokenKey, value: strings.TrimSpace(pair.RefreshToken)},
		}
		for _, entry := range values {
			if entry.value == "" {
				continue
			}
			record := newSessionTokenRecord(s.sessionKey, entry.key, entry.value, now)
			if _, err := s.repo.CreateTx(ctx, tx, record); err != nil {
				return fmt.Errorf("sqlstore: store %s: %w", entry.key, err)
			}
		}
		return nil
	})
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*sessionTokenRecord)(nil)).
		Where("session_key = ?", s.sessionKey).
		Exec(ctx)
	return err
}
