package apiclient

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-apiclient/auth"
	"github.com/goliatone/go-apiclient/core"
	"github.com/goliatone/go-apiclient/ratelimit"
	"github.com/goliatone/go-apiclient/transport"
)

const defaultHTTPTimeout = 60 * time.Second

type Client = core.Client

type Config = core.Config

type StorageConfig = core.StorageConfig

type Option = core.Option

type Call = core.Call

type CallOption = core.CallOption

type Response = core.Response

type Result[T any] = core.Result[T]

type APIError = core.APIError

type FilePart = core.FilePart

type CredentialPair = core.CredentialPair

type CredentialPersistence = core.CredentialPersistence

type SessionState = core.SessionState

type UnauthorizedHandler = core.UnauthorizedHandler

type ErrorObserver = core.ErrorObserver

type User = auth.User

type AuthConfig = auth.Config

type AuthService = auth.Service

const (
	ErrorCodeNetwork        = core.ErrorCodeNetwork
	ErrorCodeHTTP           = core.ErrorCodeHTTP
	ErrorCodeSessionExpired = core.ErrorCodeSessionExpired
	ErrorCodeUpload         = core.ErrorCodeUpload
	ErrorCodeInvalidRequest = core.ErrorCodeInvalidRequest
	ErrorCodeDecode         = core.ErrorCodeDecode
)

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithMetricsRecorder       = core.WithMetricsRecorder
	WithErrorMapper           = core.WithErrorMapper
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithTransport             = core.WithTransport
	WithCredentialPersistence = core.WithCredentialPersistence
	WithOnUnauthorized        = core.WithOnUnauthorized
	WithOnError               = core.WithOnError
	WithClock                 = core.WithClock
	WithRequestIDGenerator    = core.WithRequestIDGenerator

	WithHeader         = core.WithHeader
	WithQuery          = core.WithQuery
	WithRequestID      = core.WithRequestID
	WithoutCredentials = core.WithoutCredentials
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// DefaultTransport is the REST adapter New installs when no transport option
// is given: a plain http.Client paced by the default outbound throttle.
func DefaultTransport() *transport.RESTAdapter {
	return transport.NewRESTAdapter(
		&http.Client{Timeout: defaultHTTPTimeout},
		transport.WithThrottle(ratelimit.NewDefault()),
	)
}

// New builds the coordinator. Build one per logged-in session at bootstrap
// and share it.
func New(cfg Config, opts ...Option) (*Client, error) {
	all := make([]Option, 0, len(opts)+1)
	all = append(all, opts...)
	all = append(all, core.WithDefaultTransport(DefaultTransport()))
	return core.NewClient(cfg, all...)
}

// Session pairs a coordinator with the sign-in flows driving it.
type Session struct {
	Client *Client
	Auth   *AuthService
}

// Setup builds the coordinator and its auth service in one step.
func Setup(cfg Config, authCfg AuthConfig, opts ...Option) (*Session, error) {
	client, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	service, err := auth.NewService(client, authCfg)
	if err != nil {
		return nil, err
	}
	return &Session{Client: client, Auth: service}, nil
}

func Decode[T any](resp Response) Result[T] {
	return core.Decode[T](resp)
}

func GetJSON[T any](ctx context.Context, c *Client, path string, opts ...CallOption) Result[T] {
	return core.GetJSON[T](ctx, c, path, opts...)
}

func DeleteJSON[T any](ctx context.Context, c *Client, path string, opts ...CallOption) Result[T] {
	return core.DeleteJSON[T](ctx, c, path, opts...)
}

func PostJSON[T any](ctx context.Context, c *Client, path string, body any, opts ...CallOption) Result[T] {
	return core.PostJSON[T](ctx, c, path, body, opts...)
}

func PutJSON[T any](ctx context.Context, c *Client, path string, body any, opts ...CallOption) Result[T] {
	return core.PutJSON[T](ctx, c, path, body, opts...)
}

func PatchJSON[T any](ctx context.Context, c *Client, path string, body any, opts ...CallOption) Result[T] {
	return core.PatchJSON[T](ctx, c, path, body, opts...)
}

func UploadJSON[T any](ctx context.Context, c *Client, path string, file FilePart, fields map[string]string, opts ...CallOption) Result[T] {
	return core.UploadJSON[T](ctx, c, path, file, fields, opts...)
}
