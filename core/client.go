package core

import (
	"context"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Client is the authenticated request coordinator. Build one per logged-in
// session at bootstrap and pass it to every caller.
type Client struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	transport       TransportAdapter
	persistence     CredentialPersistence
	onUnauthorized  UnauthorizedHandler
	onError         ErrorObserver
	now             func() time.Time
	requestID       func() string

	// mu guards the credential pair and the whole refresh state together.
	// generation changes whenever the pair is replaced or cleared.
	mu         sync.Mutex
	creds      CredentialPair
	generation uint64
	refreshing bool
	draining   bool
	waiters    []*refreshWaiter
	deferred   []*refreshWaiter

	// persistMu serializes persistence writes so stored order matches memory.
	persistMu sync.Mutex
}

type ClientDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	Transport       TransportAdapter
	Persistence     CredentialPersistence
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	builder := defaultClientBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := resolveLogging(builder)

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.persistence == nil {
		builder.persistence = NewMemoryCredentialPersistence()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	if builder.requestID == nil {
		builder.requestID = defaultClientBuilder(Config{}).requestID
	}
	if builder.transport == nil {
		return nil, mapBuildError(builder.errorMapper, badInputError("core: transport adapter is required"))
	}

	defaults := DefaultConfig()
	ctx := context.Background()
	loaded, err := builder.configProvider.Load(ctx, defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	client := &Client{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		transport:       builder.transport,
		persistence:     builder.persistence,
		onUnauthorized:  builder.onUnauthorized,
		onError:         builder.onError,
		now:             builder.now,
		requestID:       builder.requestID,
	}
	client.restoreCredentials(ctx)
	return client, nil
}

// resolveLogging lets an explicit logger win over the provider's named logger.
func resolveLogging(builder clientBuilder) (LoggerProvider, Logger) {
	if !builder.explicitLogger {
		return glog.Resolve("apiclient", builder.loggerProvider, nil)
	}
	provider, logger := glog.Resolve("apiclient", nil, builder.logger)
	if builder.loggerProvider != nil {
		provider = builder.loggerProvider
	}
	return provider, logger
}

func Setup(cfg Config, opts ...Option) (*Client, error) {
	return NewClient(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

func (c *Client) Dependencies() ClientDependencies {
	if c == nil {
		return ClientDependencies{}
	}
	return ClientDependencies{
		Logger:          c.logger,
		LoggerProvider:  c.loggerProvider,
		MetricsRecorder: c.metricsRecorder,
		ErrorMapper:     c.errorMapper,
		Transport:       c.transport,
		Persistence:     c.persistence,
	}
}

// Session reports the current credential and refresh state without I/O.
func (c *Client) Session() SessionState {
	if c == nil {
		return SessionState{}
	}
	c.mu.Lock()
	creds := c.creds
	refreshing := c.refreshing
	c.mu.Unlock()
	return SessionState{
		Authenticated:        creds.AccessToken != "",
		HasRefreshToken:      creds.RefreshToken != "",
		Refreshing:           refreshing,
		AccessTokenExpiresAt: AccessTokenExpiry(creds.AccessToken),
	}
}

type issueNotifierKey struct{}

// WithIssueNotifier attaches a callback transports invoke once the request has
// been written to the wire.
func WithIssueNotifier(ctx context.Context, notify func()) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if notify == nil {
		return ctx
	}
	return context.WithValue(ctx, issueNotifierKey{}, notify)
}

func IssueNotifierFromContext(ctx context.Context) func() {
	if ctx == nil {
		return nil
	}
	notify, _ := ctx.Value(issueNotifierKey{}).(func())
	return notify
}

func (c *Client) resolveMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return "GET"
	}
	return method
}
