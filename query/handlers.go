package query

import (
	"context"

	"github.com/goliatone/go-apiclient/auth"
	"github.com/goliatone/go-apiclient/core"
)

type UserReader interface {
	CurrentUser(ctx context.Context) (auth.User, *core.APIError)
}

type SessionReader interface {
	Session() core.SessionState
}

type CurrentUserQuery struct {
	reader UserReader
}

func NewCurrentUserQuery(reader UserReader) *CurrentUserQuery {
	return &CurrentUserQuery{reader: reader}
}

func (q *CurrentUserQuery) Query(ctx context.Context, _ CurrentUserMessage) (auth.User, error) {
	if q == nil || q.reader == nil {
		return auth.User{}, queryDependencyError("query: user reader is required")
	}
	user, apiErr := q.reader.CurrentUser(ctx)
	if apiErr != nil {
		return auth.User{}, apiErr.ToServiceError()
	}
	return user, nil
}

// SessionStateQuery reports the coordinator state without any I/O.
type SessionStateQuery struct {
	reader SessionReader
}

func NewSessionStateQuery(reader SessionReader) *SessionStateQuery {
	return &SessionStateQuery{reader: reader}
}

func (q *SessionStateQuery) Query(_ context.Context, _ SessionStateMessage) (core.SessionState, error) {
	if q == nil || q.reader == nil {
		return core.SessionState{}, queryDependencyError("query: session reader is required")
	}
	return q.reader.Session(), nil
}
