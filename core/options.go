package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type clientBuilder struct {
	runtimeConfig   Config
	logger          Logger
	explicitLogger  bool
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	transport       TransportAdapter
	persistence     CredentialPersistence
	onUnauthorized  UnauthorizedHandler
	onError         ErrorObserver
	now             func() time.Time
	requestID       func() string
}

type Option func(*clientBuilder)

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
		b.explicitLogger = logger != nil
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *clientBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

func WithTransport(transport TransportAdapter) Option {
	return func(b *clientBuilder) {
		b.transport = transport
	}
}

// WithDefaultTransport sets the transport only when no other option did.
func WithDefaultTransport(transport TransportAdapter) Option {
	return func(b *clientBuilder) {
		if b.transport == nil {
			b.transport = transport
		}
	}
}

func WithCredentialPersistence(persistence CredentialPersistence) Option {
	return func(b *clientBuilder) {
		b.persistence = persistence
	}
}

func WithOnUnauthorized(handler UnauthorizedHandler) Option {
	return func(b *clientBuilder) {
		b.onUnauthorized = handler
	}
}

func WithOnError(observer ErrorObserver) Option {
	return func(b *clientBuilder) {
		b.onError = observer
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *clientBuilder) {
		b.now = now
	}
}

func WithRequestIDGenerator(generator func() string) Option {
	return func(b *clientBuilder) {
		b.requestID = generator
	}
}

func defaultClientBuilder(runtime Config) clientBuilder {
	return clientBuilder{
		runtimeConfig:   runtime,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             func() time.Time { return time.Now().UTC() },
		requestID:       uuid.NewString,
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticRawConfigLoader serves a fixed raw config map, mostly for tests and
// embedded defaults.
func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			layer[key] = strings.TrimSpace(value)
		}
	}
	setDuration := func(key string, value time.Duration) {
		if includeZero || value != 0 {
			layer[key] = value
		}
	}

	setString("service_name", cfg.ServiceName)
	setString("base_url", cfg.BaseURL)
	setString("refresh_path", cfg.RefreshPath)
	setString("user_agent", cfg.UserAgent)
	setDuration("request_timeout", cfg.RequestTimeout)
	setDuration("refresh_timeout", cfg.RefreshTimeout)
	setDuration("refresh_skew", cfg.RefreshSkew)
	if includeZero || cfg.MaxResponseBodyBytes != 0 {
		layer["max_response_body_bytes"] = cfg.MaxResponseBodyBytes
	}
	if includeZero || cfg.ProactiveRefresh {
		layer["proactive_refresh"] = cfg.ProactiveRefresh
	}

	storage := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Storage.AccessTokenKey) != "" {
		storage["access_token_key"] = strings.TrimSpace(cfg.Storage.AccessTokenKey)
	}
	if includeZero || strings.TrimSpace(cfg.Storage.RefreshTokenKey) != "" {
		storage["refresh_token_key"] = strings.TrimSpace(cfg.Storage.RefreshTokenKey)
	}
	if len(storage) > 0 {
		layer["storage"] = storage
	}
	return layer
}
