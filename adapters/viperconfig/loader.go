package viperconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-apiclient/core"
	"github.com/spf13/viper"
)

const DefaultEnvPrefix = "APICLIENT"

type valueKind int

const (
	kindString valueKind = iota
	kindDuration
	kindInt64
	kindBool
)

// keys lists every core.Config field by its mapstructure path.
var keys = []struct {
	path string
	kind valueKind
}{
	{"service_name", kindString},
	{"base_url", kindString},
	{"refresh_path", kindString},
	{"request_timeout", kindDuration},
	{"refresh_timeout", kindDuration},
	{"max_response_body_bytes", kindInt64},
	{"user_agent", kindString},
	{"proactive_refresh", kindBool},
	{"refresh_skew", kindDuration},
	{"storage.access_token_key", kindString},
	{"storage.refresh_token_key", kindString},
}

// Loader is a core.RawConfigLoader backed by viper. Values come from an
// optional config file and from environment variables such as
// APICLIENT_BASE_URL or APICLIENT_STORAGE_ACCESS_TOKEN_KEY; the environment
// wins.
type Loader struct {
	file        string
	name        string
	paths       []string
	configType  string
	envPrefix   string
	requireFile bool
}

type Option func(*Loader)

// WithConfigFile reads an explicit file. A missing file is an error.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.file = strings.TrimSpace(path)
		l.requireFile = l.file != ""
	}
}

// WithSearchPaths looks up name (without extension) in each path. Not finding
// it is not an error.
func WithSearchPaths(name string, paths ...string) Option {
	return func(l *Loader) {
		l.name = strings.TrimSpace(name)
		l.paths = append([]string(nil), paths...)
	}
}

func WithConfigType(configType string) Option {
	return func(l *Loader) {
		l.configType = strings.TrimSpace(configType)
	}
}

// WithEnvPrefix changes the env prefix. An empty prefix reads bare names.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = strings.TrimSpace(prefix)
	}
}

func NewLoader(opts ...Option) *Loader {
	loader := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(loader)
		}
	}
	return loader
}

// NewConfigProvider wraps the loader in the cfgx provider used by core.
func NewConfigProvider(opts ...Option) *core.CfgxConfigProvider {
	return core.NewCfgxConfigProvider(NewLoader(opts...))
}

func (l *Loader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil {
		return map[string]any{}, nil
	}
	v := viper.New()
	if l.envPrefix != "" {
		v.SetEnvPrefix(l.envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key.path); err != nil {
			return nil, fmt.Errorf("viperconfig: bind env %s: %w", key.path, err)
		}
	}

	if err := l.readFile(v); err != nil {
		return nil, err
	}

	raw := map[string]any{}
	for _, key := range keys {
		if !v.IsSet(key.path) {
			continue
		}
		value, err := readValue(v, key.path, key.kind)
		if err != nil {
			return nil, err
		}
		setPath(raw, key.path, value)
	}
	return raw, nil
}

func (l *Loader) readFile(v *viper.Viper) error {
	if l.configType != "" {
		v.SetConfigType(l.configType)
	}
	switch {
	case l.file != "":
		v.SetConfigFile(l.file)
	case l.name != "":
		v.SetConfigName(l.name)
		for _, path := range l.paths {
			v.AddConfigPath(path)
		}
	default:
		return nil
	}

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) && !l.requireFile {
		return nil
	}
	return fmt.Errorf("viperconfig: read config: %w", err)
}

func readValue(v *viper.Viper, path string, kind valueKind) (any, error) {
	switch kind {
	case kindDuration:
		// GetDuration accepts both "5s" strings and bare nanosecond counts.
		return v.GetDuration(path), nil
	case kindInt64:
		return v.GetInt64(path), nil
	case kindBool:
		return v.GetBool(path), nil
	case kindString:
		return strings.TrimSpace(v.GetString(path)), nil
	default:
		return nil, fmt.Errorf("viperconfig: unsupported key %s", path)
	}
}

func setPath(raw map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := raw
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
