package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// TransportAdapter executes a single HTTP exchange. Implementations must not
// retry on their own; replays are owned by the Client.
//
// Adapters should call the function returned by IssueNotifierFromContext once
// the request has been written. Queued replays are released one at a time and
// each waits for that signal, or for Do to return when it never comes.
type TransportAdapter interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// CredentialPersistence is the durable key-value store backing the credential
// pair. Load reports ok=false when nothing is stored.
type CredentialPersistence interface {
	Load(ctx context.Context) (CredentialPair, bool, error)
	Save(ctx context.Context, pair CredentialPair) error
	Clear(ctx context.Context) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// UnauthorizedHandler is invoked once per failed refresh cycle so the host can
// force a logout.
type UnauthorizedHandler func()

// ErrorObserver is invoked once for every reported call failure.
type ErrorObserver func(err APIError)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
