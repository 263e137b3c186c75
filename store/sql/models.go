package sqlstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// sessionTokenRecord holds one stored token value. A session owns one row per
// token key.
type sessionTokenRecord struct {
	bun.BaseModel `bun:"table:apiclient_session_tokens,alias:ast"`

	ID         string    `bun:"id,pk"`
	SessionKey string    `bun:"session_key,notnull"`
	TokenKey   string    `bun:"token_key,notnull"`
	TokenValue string    `bun:"token_value,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newSessionTokenRecord(sessionKey, tokenKey, value string, now time.Time) *sessionTokenRecord {
	return &sessionTokenRecord{
		ID:         uuid.NewString(),
		SessionKey: sessionKey,
		TokenKey:   tokenKey,
		TokenValue: value,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
