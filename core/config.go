package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultRefreshPath          = "/api/v1/auth/refresh"
	DefaultRequestTimeout       = 30 * time.Second
	DefaultRefreshSkew          = 30 * time.Second
	DefaultAccessTokenKey       = "access_token"
	DefaultRefreshTokenKey      = "refresh_token"
	DefaultMaxResponseBodyBytes = 10 << 20
)

type StorageConfig struct {
	AccessTokenKey  string `koanf:"access_token_key" mapstructure:"access_token_key"`
	RefreshTokenKey string `koanf:"refresh_token_key" mapstructure:"refresh_token_key"`
}

type Config struct {
	ServiceName          string        `koanf:"service_name" mapstructure:"service_name"`
	BaseURL              string        `koanf:"base_url" mapstructure:"base_url"`
	RefreshPath          string        `koanf:"refresh_path" mapstructure:"refresh_path"`
	RequestTimeout       time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	RefreshTimeout       time.Duration `koanf:"refresh_timeout" mapstructure:"refresh_timeout"`
	MaxResponseBodyBytes int64         `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
	UserAgent            string        `koanf:"user_agent" mapstructure:"user_agent"`
	ProactiveRefresh     bool          `koanf:"proactive_refresh" mapstructure:"proactive_refresh"`
	RefreshSkew          time.Duration `koanf:"refresh_skew" mapstructure:"refresh_skew"`
	Storage              StorageConfig `koanf:"storage" mapstructure:"storage"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:          "apiclient",
		BaseURL:              "http://localhost:8000",
		RefreshPath:          DefaultRefreshPath,
		RequestTimeout:       DefaultRequestTimeout,
		MaxResponseBodyBytes: DefaultMaxResponseBodyBytes,
		RefreshSkew:          DefaultRefreshSkew,
		Storage: StorageConfig{
			AccessTokenKey:  DefaultAccessTokenKey,
			RefreshTokenKey: DefaultRefreshTokenKey,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	baseURL := strings.TrimSpace(c.BaseURL)
	if baseURL == "" {
		return fmt.Errorf("core: base_url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: base_url must be an absolute url")
	}
	if !strings.HasPrefix(strings.TrimSpace(c.RefreshPath), "/") {
		return fmt.Errorf("core: refresh_path must start with /")
	}
	if c.RequestTimeout < 0 || c.RefreshTimeout < 0 || c.RefreshSkew < 0 {
		return fmt.Errorf("core: timeouts must not be negative")
	}
	if c.MaxResponseBodyBytes < 0 {
		return fmt.Errorf("core: max_response_body_bytes must not be negative")
	}
	accessKey := strings.TrimSpace(c.Storage.AccessTokenKey)
	refreshKey := strings.TrimSpace(c.Storage.RefreshTokenKey)
	if accessKey == "" || refreshKey == "" {
		return fmt.Errorf("core: storage token keys are required")
	}
	if accessKey == refreshKey {
		return fmt.Errorf("core: storage token keys must be distinct")
	}
	return nil
}

func (c Config) refreshTimeout() time.Duration {
	if c.RefreshTimeout > 0 {
		return c.RefreshTimeout
	}
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return DefaultRequestTimeout
}

func (c Config) resolveURL(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
