package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-apiclient/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	DefaultLoginPath     = "/api/v1/auth/login"
	DefaultLogoutPath    = "/api/v1/auth/logout"
	DefaultMePath        = "/api/v1/auth/me"
	DefaultAuthorizePath = "/authorize"
	DefaultPendingTTL    = 10 * time.Minute

	ProviderLocal = "local"
	ProviderOIDC  = "oidc"
)

var DefaultOIDCScopes = []string{"openid", "profile", "email"}

// Coordinator is the part of core.Client the session flows drive.
type Coordinator interface {
	Do(ctx context.Context, call core.Call) core.Response
	SetCredentials(ctx context.Context, accessToken, refreshToken string) error
	ClearCredentials(ctx context.Context) error
	AccessToken() string
	RefreshToken() string
	Refresh(ctx context.Context) *core.APIError
	Session() core.SessionState
}

var _ Coordinator = (*core.Client)(nil)

type OIDCConfig struct {
	Issuer        string
	AuthorizePath string
	ClientID      string
	RedirectURI   string
	Scopes        []string
}

type Config struct {
	LoginPath   string
	LogoutPath  string
	MePath      string
	DefaultRole Role
	PendingTTL  time.Duration
	StateStore  StateStore
	OIDC        OIDCConfig
	Logger      glog.Logger
	Now         func() time.Time
	Random      io.Reader
}

// Session is what a successful sign-in yields. The tokens themselves stay in
// the coordinator.
type Session struct {
	User      User
	Provider  string
	TokenType string
	ExpiresIn int
	ExpiresAt *time.Time
}

// AuthorizationRequest carries everything the host needs to redirect the user
// and later complete the code exchange.
type AuthorizationRequest struct {
	URL                 string
	State               string
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string
	RedirectURI         string
}

// OIDCCallback is the query the identity provider redirected back with.
type OIDCCallback struct {
	Code             string
	State            string
	CodeVerifier     string
	RedirectURI      string
	Error            string
	ErrorDescription string
}

type loginResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int             `json:"expires_in"`
	User         json.RawMessage `json:"user"`
}

// Service runs the sign-in, sign-out and current-user flows against the
// back-office API.
type Service struct {
	client Coordinator
	config Config
	logger glog.Logger
	states StateStore
}

func NewService(client Coordinator, cfg Config) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("auth: coordinator is required")
	}
	cfg.LoginPath = firstNonEmpty(cfg.LoginPath, DefaultLoginPath)
	cfg.LogoutPath = firstNonEmpty(cfg.LogoutPath, DefaultLogoutPath)
	cfg.MePath = firstNonEmpty(cfg.MePath, DefaultMePath)
	if strings.TrimSpace(string(cfg.DefaultRole)) == "" {
		cfg.DefaultRole = DefaultRole
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	cfg.OIDC.Issuer = strings.TrimSuffix(strings.TrimSpace(cfg.OIDC.Issuer), "/")
	cfg.OIDC.AuthorizePath = firstNonEmpty(cfg.OIDC.AuthorizePath, DefaultAuthorizePath)
	cfg.OIDC.ClientID = strings.TrimSpace(cfg.OIDC.ClientID)
	cfg.OIDC.RedirectURI = strings.TrimSpace(cfg.OIDC.RedirectURI)
	cfg.OIDC.Scopes = normalizeValues(cfg.OIDC.Scopes)
	if len(cfg.OIDC.Scopes) == 0 {
		cfg.OIDC.Scopes = append([]string(nil), DefaultOIDCScopes...)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Random == nil {
		cfg.Random = rand.Reader
	}
	if cfg.StateStore == nil {
		cfg.StateStore = NewMemoryStateStore(cfg.Now)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &Service{
		client: client,
		config: cfg,
		logger: logger,
		states: cfg.StateStore,
	}, nil
}

// Login signs in with local credentials and installs the returned pair.
func (s *Service) Login(ctx context.Context, username, password string) (Session, *core.APIError) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, core.NewInvalidRequestError("username and password are required", nil)
	}
	return s.signIn(ctx, ProviderLocal, map[string]any{
		"provider": ProviderLocal,
		"username": username,
		"password": password,
	})
}

// AuthorizationURL prepares a PKCE authorization request. The verifier is
// also kept in the state store so CompleteOIDC can find it.
func (s *Service) AuthorizationURL(ctx context.Context, state string, redirectURI string) (AuthorizationRequest, error) {
	if s.config.OIDC.Issuer == "" || s.config.OIDC.ClientID == "" {
		return AuthorizationRequest{}, fmt.Errorf("auth: oidc issuer and client id are required")
	}
	redirectURI = firstNonEmpty(redirectURI, s.config.OIDC.RedirectURI)
	if redirectURI == "" {
		return AuthorizationRequest{}, fmt.Errorf("auth: oidc redirect uri is required")
	}

	verifier, err := newCodeVerifier(s.config.Random)
	if err != nil {
		return AuthorizationRequest{}, err
	}
	state = strings.TrimSpace(state)
	if state == "" {
		if state, err = newState(s.config.Random); err != nil {
			return AuthorizationRequest{}, err
		}
	}
	challenge := CodeChallengeS256(verifier)

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", s.config.OIDC.ClientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("scope", strings.Join(s.config.OIDC.Scopes, " "))
	params.Set("state", state)
	params.Set("code_challenge", challenge)
	params.Set("code_challenge_method", CodeChallengeMethodS256)

	now := s.config.Now()
	if err := s.states.Save(ctx, AuthorizationState{
		State:        state,
		CodeVerifier: verifier,
		RedirectURI:  redirectURI,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.config.PendingTTL),
	}); err != nil {
		return AuthorizationRequest{}, fmt.Errorf("auth: save authorization state: %w", err)
	}

	return AuthorizationRequest{
		URL:                 s.config.OIDC.Issuer + s.config.OIDC.AuthorizePath + "?" + params.Encode(),
		State:               state,
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: CodeChallengeMethodS256,
		RedirectURI:         redirectURI,
	}, nil
}

// CompleteOIDC exchanges the authorization code through the API login
// endpoint and installs the returned pair.
func (s *Service) CompleteOIDC(ctx context.Context, callback OIDCCallback) (Session, *core.APIError) {
	if providerErr := strings.TrimSpace(callback.Error); providerErr != "" {
		return Session{}, &core.APIError{
			Status:  http.StatusUnauthorized,
			Message: firstNonEmpty(callback.ErrorDescription, providerErr),
			Code:    core.ErrorCodeInvalidRequest,
			Reason:  providerErr,
		}
	}
	code := strings.TrimSpace(callback.Code)
	if code == "" {
		return Session{}, core.NewInvalidRequestError("authorization code not found", nil)
	}

	pending := s.takePending(ctx, callback.State)
	verifier := firstNonEmpty(callback.CodeVerifier, pending.CodeVerifier)
	redirectURI := firstNonEmpty(callback.RedirectURI, pending.RedirectURI, s.config.OIDC.RedirectURI)

	return s.signIn(ctx, ProviderOIDC, map[string]any{
		"provider": ProviderOIDC,
		"code":     code,
		"metadata": map[string]string{
			"code_verifier": verifier,
			"redirect_uri":  redirectURI,
		},
	})
}

// Logout tells the API to revoke the refresh token and clears the local pair
// whatever the API answers.
func (s *Service) Logout(ctx context.Context, global bool) error {
	if s.client.AccessToken() != "" {
		body, err := json.Marshal(map[string]any{
			"refresh_token": s.client.RefreshToken(),
			"global_logout": global,
		})
		if err == nil {
			resp := s.client.Do(ctx, core.Call{
				Method: http.MethodPost,
				Path:   s.config.LogoutPath,
				Body:   body,
			})
			if resp.Error != nil {
				s.logger.Debug("logout request failed; clearing local session",
					"code", resp.Error.Code,
					"status_code", resp.Error.Status,
				)
			}
		}
	}
	if err := s.client.ClearCredentials(ctx); err != nil {
		return err
	}
	s.logger.Info("signed out", "global_logout", global)
	return nil
}

// CurrentUser loads the signed-in user. A rejected lookup clears the local
// pair; a transport failure leaves it in place.
func (s *Service) CurrentUser(ctx context.Context) (User, *core.APIError) {
	if s.client.AccessToken() == "" {
		return User{}, core.NewSessionExpiredError("not signed in")
	}
	resp := s.client.Do(ctx, core.Call{Method: http.MethodGet, Path: s.config.MePath})
	if resp.Error != nil {
		if !resp.Error.IsNetwork() {
			if err := s.client.ClearCredentials(ctx); err != nil {
				s.logger.Warn("clear credentials after rejected user lookup failed", "error", err)
			}
		}
		return User{}, resp.Error
	}
	if resp.NoContent {
		return User{}, &core.APIError{
			Status:  resp.StatusCode,
			Message: "current user response was empty",
			Code:    core.ErrorCodeDecode,
		}
	}
	return MapUser(resp.Body, s.config.DefaultRole, s.config.Now()), nil
}

// Refresh renews the access token through the coordinator's single-flight
// refresh.
func (s *Service) Refresh(ctx context.Context) *core.APIError {
	return s.client.Refresh(ctx)
}

func (s *Service) SessionState() core.SessionState {
	return s.client.Session()
}

func (s *Service) signIn(ctx context.Context, provider string, payload map[string]any) (Session, *core.APIError) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Session{}, core.NewInvalidRequestError("login body could not be encoded as JSON", err)
	}
	result := core.Decode[loginResponse](s.client.Do(ctx, core.Call{
		Method:    http.MethodPost,
		Path:      s.config.LoginPath,
		Body:      body,
		Anonymous: true,
	}))
	if result.Error != nil {
		s.logger.Warn("sign in failed", "provider", provider, "code", result.Error.Code, "status_code", result.Error.Status)
		return Session{}, result.Error
	}
	if strings.TrimSpace(result.Data.AccessToken) == "" {
		return Session{}, &core.APIError{
			Status:  result.StatusCode,
			Message: "login response is missing access_token",
			Code:    core.ErrorCodeDecode,
		}
	}

	if err := s.client.SetCredentials(ctx, result.Data.AccessToken, result.Data.RefreshToken); err != nil {
		s.logger.Warn("signed in but credentials were not persisted", "provider", provider, "error", err)
	}

	now := s.config.Now()
	session := Session{
		User:      MapUser(result.Data.User, s.config.DefaultRole, now),
		Provider:  provider,
		TokenType: firstNonEmpty(result.Data.TokenType, "bearer"),
		ExpiresIn: result.Data.ExpiresIn,
	}
	if result.Data.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(result.Data.ExpiresIn) * time.Second)
		session.ExpiresAt = &expiresAt
	} else {
		session.ExpiresAt = core.AccessTokenExpiry(result.Data.AccessToken)
	}
	s.logger.Info("signed in", "provider", provider, "user_id", session.User.ID, "perfil", string(session.User.Perfil))
	return session, nil
}

func (s *Service) takePending(ctx context.Context, state string) AuthorizationState {
	state = strings.TrimSpace(state)
	if state == "" {
		return AuthorizationState{}
	}
	record, err := s.states.Consume(ctx, state)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			s.logger.Warn("authorization state lookup failed", "error", err)
		}
		return AuthorizationState{}
	}
	return record
}
