package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-apiclient/core"
	"github.com/goliatone/go-apiclient/transport"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

type authBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  http.HandlerFunc
}

func (b *authBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	record := recordedRequest{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
	raw := new(bytes.Buffer)
	_, _ = raw.ReadFrom(r.Body)
	if raw.Len() > 0 {
		_ = json.Unmarshal(raw.Bytes(), &record.body)
	}
	b.mu.Lock()
	b.requests = append(b.requests, record)
	b.mu.Unlock()
	r.Body = http.NoBody
	b.handler(w, r)
}

func (b *authBackend) snapshot() []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]recordedRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestService(t *testing.T, handler http.HandlerFunc, cfg Config) (*Service, *core.Client, *authBackend) {
	t.Helper()
	backend := &authBackend{handler: handler}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	client, err := core.NewClient(core.Config{BaseURL: server.URL},
		core.WithTransport(transport.NewRESTAdapter(server.Client())),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	}
	service, err := NewService(client, cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, client, backend
}

const loginBody = `{
	"access_token": "T1",
	"refresh_token": "R1",
	"token_type": "bearer",
	"expires_in": 900,
	"user": {"id": 42, "email": "ana@example.com", "name": "Ana", "roles": ["ANALISTA", "ADMIN"]}
}`

func TestLogin_InstallsCredentialsAndMapsUser(t *testing.T) {
	service, client, backend := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, loginBody)
	}, Config{})

	session, apiErr := service.Login(context.Background(), "ana", "secret")
	if apiErr != nil {
		t.Fatalf("login: %v", apiErr)
	}
	if client.AccessToken() != "T1" || client.RefreshToken() != "R1" {
		t.Fatalf("expected credentials installed, got %q %q", client.AccessToken(), client.RefreshToken())
	}
	if session.User.ID != "42" || session.User.FullName != "Ana" || session.User.Perfil != RoleAnalista {
		t.Fatalf("unexpected user %+v", session.User)
	}
	if !session.User.IsActive || !session.User.HasRole(RoleAdmin) {
		t.Fatalf("expected active admin user, got %+v", session.User)
	}
	if session.ExpiresAt == nil || !session.ExpiresAt.Equal(time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}

	request := backend.snapshot()[0]
	if request.path != DefaultLoginPath || request.auth != "" {
		t.Fatalf("expected anonymous login call, got %+v", request)
	}
	if request.body["provider"] != ProviderLocal || request.body["username"] != "ana" || request.body["password"] != "secret" {
		t.Fatalf("unexpected login body %+v", request.body)
	}
}

func TestLogin_InvalidCredentialsNeverTriggerRefresh(t *testing.T) {
	service, client, backend := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid_credentials","attempts_remaining":4}`)
	}, Config{})
	if err := client.SetCredentials(context.Background(), "OLD", "ROLD"); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}

	_, apiErr := service.Login(context.Background(), "ana", "wrong")
	if apiErr == nil || apiErr.Code != core.ErrorCodeHTTP || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected http 401, got %+v", apiErr)
	}
	if apiErr.Message != "invalid_credentials" {
		t.Fatalf("expected server message, got %q", apiErr.Message)
	}
	if len(backend.snapshot()) != 1 {
		t.Fatalf("expected only the login call, got %d", len(backend.snapshot()))
	}
	if client.AccessToken() != "OLD" {
		t.Fatalf("expected previous credentials untouched")
	}
}

func TestLogin_RequiresUsernameAndPassword(t *testing.T) {
	service, _, backend := newTestService(t, func(http.ResponseWriter, *http.Request) {}, Config{})
	if _, apiErr := service.Login(context.Background(), " ", "x"); apiErr == nil || apiErr.Code != core.ErrorCodeInvalidRequest {
		t.Fatalf("expected invalid_request, got %+v", apiErr)
	}
	if len(backend.snapshot()) != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestLogin_MissingAccessTokenIsDecodeError(t *testing.T) {
	service, client, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"user":{"id":"1"}}`)
	}, Config{})

	if _, apiErr := service.Login(context.Background(), "ana", "secret"); apiErr == nil || apiErr.Code != core.ErrorCodeDecode {
		t.Fatalf("expected decode_error, got %+v", apiErr)
	}
	if client.Session().Authenticated {
		t.Fatalf("expected no credentials installed")
	}
}

func TestAuthorizationURL_UsesS256Challenge(t *testing.T) {
	service, _, _ := newTestService(t, func(http.ResponseWriter, *http.Request) {}, Config{
		Random: bytes.NewReader(bytes.Repeat([]byte{0xab}, 64)),
		OIDC: OIDCConfig{
			Issuer:      "https://sso.example.com/",
			ClientID:    "backoffice",
			RedirectURI: "https://app.example.com/auth/callback",
		},
	})

	req, err := service.AuthorizationURL(context.Background(), "", "")
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}
	if req.CodeVerifier != strings.Repeat("ab", 32) {
		t.Fatalf("expected hex verifier from 32 random bytes, got %q", req.CodeVerifier)
	}
	if req.State != strings.Repeat("ab", 16) {
		t.Fatalf("expected generated state, got %q", req.State)
	}

	parsed, err := url.Parse(req.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if parsed.Host != "sso.example.com" || parsed.Path != DefaultAuthorizePath {
		t.Fatalf("unexpected authorize endpoint %q", req.URL)
	}
	query := parsed.Query()
	if query.Get("code_challenge_method") != "S256" || query.Get("code_challenge") != CodeChallengeS256(req.CodeVerifier) {
		t.Fatalf("expected S256 challenge, got %v", query)
	}
	if query.Get("scope") != "openid profile email" || query.Get("response_type") != "code" {
		t.Fatalf("unexpected scope or response type %v", query)
	}
	if query.Get("client_id") != "backoffice" || query.Get("redirect_uri") != "https://app.example.com/auth/callback" {
		t.Fatalf("unexpected client params %v", query)
	}
}

func TestCodeChallengeS256_MatchesRFCVector(t *testing.T) {
	got := CodeChallengeS256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	if got != "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM" {
		t.Fatalf("unexpected challenge %q", got)
	}
}

func TestAuthorizationURL_RequiresOIDCConfig(t *testing.T) {
	service, _, _ := newTestService(t, func(http.ResponseWriter, *http.Request) {}, Config{})
	if _, err := service.AuthorizationURL(context.Background(), "s", "https://app/cb"); err == nil {
		t.Fatalf("expected missing issuer error")
	}
}

func TestCompleteOIDC_SendsPendingVerifier(t *testing.T) {
	service, client, backend := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, loginBody)
	}, Config{
		OIDC: OIDCConfig{Issuer: "https://sso.example.com", ClientID: "backoffice"},
	})

	req, err := service.AuthorizationURL(context.Background(), "state-1", "https://app.example.com/auth/callback")
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}

	session, apiErr := service.CompleteOIDC(context.Background(), OIDCCallback{Code: "code-1", State: "state-1"})
	if apiErr != nil {
		t.Fatalf("complete oidc: %v", apiErr)
	}
	if session.Provider != ProviderOIDC || client.AccessToken() != "T1" {
		t.Fatalf("expected oidc session installed, got %+v", session)
	}

	body := backend.snapshot()[0].body
	metadata, _ := body["metadata"].(map[string]any)
	if body["provider"] != ProviderOIDC || body["code"] != "code-1" {
		t.Fatalf("unexpected exchange body %+v", body)
	}
	if metadata["code_verifier"] != req.CodeVerifier || metadata["redirect_uri"] != "https://app.example.com/auth/callback" {
		t.Fatalf("unexpected exchange metadata %+v", metadata)
	}

	if _, apiErr := service.CompleteOIDC(context.Background(), OIDCCallback{Code: "code-2", State: "state-1"}); apiErr != nil {
		t.Fatalf("second exchange: %v", apiErr)
	}
	second := backend.snapshot()[1].body["metadata"].(map[string]any)
	if second["code_verifier"] != "" {
		t.Fatalf("expected pending verifier to be single use, got %v", second["code_verifier"])
	}
}

func TestCompleteOIDC_ProviderErrorAndMissingCode(t *testing.T) {
	service, _, backend := newTestService(t, func(http.ResponseWriter, *http.Request) {}, Config{})

	_, apiErr := service.CompleteOIDC(context.Background(), OIDCCallback{Error: "access_denied", ErrorDescription: "user cancelled"})
	if apiErr == nil || apiErr.Message != "user cancelled" || apiErr.Reason != "access_denied" {
		t.Fatalf("expected provider error, got %+v", apiErr)
	}
	_, apiErr = service.CompleteOIDC(context.Background(), OIDCCallback{})
	if apiErr == nil || apiErr.Code != core.ErrorCodeInvalidRequest {
		t.Fatalf("expected missing code error, got %+v", apiErr)
	}
	if len(backend.snapshot()) != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	service, client, backend := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"detail":"logout_error"}`)
	}, Config{})
	_ = client.SetCredentials(context.Background(), "T1", "R1")

	if err := service.Logout(context.Background(), false); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if client.Session().Authenticated {
		t.Fatalf("expected local credentials cleared")
	}

	request := backend.snapshot()[0]
	if request.path != DefaultLogoutPath || request.auth != "Bearer T1" {
		t.Fatalf("unexpected logout request %+v", request)
	}
	if request.body["refresh_token"] != "R1" || request.body["global_logout"] != false {
		t.Fatalf("unexpected logout body %+v", request.body)
	}
}

func TestLogout_WithoutSessionSkipsNetwork(t *testing.T) {
	service, _, backend := newTestService(t, func(http.ResponseWriter, *http.Request) {}, Config{})
	if err := service.Logout(context.Background(), true); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(backend.snapshot()) != 0 {
		t.Fatalf("expected no logout call without a session")
	}
}

func TestCurrentUser_DefaultsPerfil(t *testing.T) {
	service, client, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"7","email":"joao@example.com","name":""}`)
	}, Config{})

	if _, apiErr := service.CurrentUser(context.Background()); apiErr == nil || !apiErr.IsSessionExpired() {
		t.Fatalf("expected session_expired without credentials, got %+v", apiErr)
	}

	_ = client.SetCredentials(context.Background(), "T1", "R1")
	user, apiErr := service.CurrentUser(context.Background())
	if apiErr != nil {
		t.Fatalf("current user: %v", apiErr)
	}
	if user.ID != "7" || user.Perfil != RoleAgente || len(user.Roles) != 0 {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestCurrentUser_RejectedLookupClearsSession(t *testing.T) {
	service, client, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"message":"inactive user"}`)
	}, Config{})
	_ = client.SetCredentials(context.Background(), "T1", "R1")

	if _, apiErr := service.CurrentUser(context.Background()); apiErr == nil || apiErr.Status != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %+v", apiErr)
	}
	if client.Session().Authenticated {
		t.Fatalf("expected credentials cleared after rejected lookup")
	}
}

func TestMapUser_PayloadPerfilWithoutRoles(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	user := MapUser(json.RawMessage(`{"id":"1","perfil":"TESOURARIA","is_active":false,"created_at":"2025-01-02T03:04:05Z"}`), DefaultRole, now)
	if user.Perfil != RoleTesouraria || user.IsActive {
		t.Fatalf("unexpected user %+v", user)
	}
	if !user.CreatedAt.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)) || !user.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected timestamps %+v", user)
	}
}

func TestCompleteOIDC_ExpiredStateIsIgnored(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	service, _, backend := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, loginBody)
	}, Config{
		Now:        clock,
		PendingTTL: time.Minute,
		OIDC:       OIDCConfig{Issuer: "https://sso.example.com", ClientID: "backoffice", RedirectURI: "https://app/cb"},
	})

	if _, err := service.AuthorizationURL(context.Background(), "state-9", ""); err != nil {
		t.Fatalf("authorization url: %v", err)
	}
	now = now.Add(2 * time.Minute)

	if _, apiErr := service.CompleteOIDC(context.Background(), OIDCCallback{Code: "code-9", State: "state-9"}); apiErr != nil {
		t.Fatalf("complete oidc: %v", apiErr)
	}
	metadata := backend.snapshot()[0].body["metadata"].(map[string]any)
	if metadata["code_verifier"] != "" || metadata["redirect_uri"] != "https://app/cb" {
		t.Fatalf("expected expired state to be dropped, got %+v", metadata)
	}
}

func TestMemoryStateStore_ConsumeIsSingleUse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStateStore(func() time.Time { return now })
	ctx := context.Background()

	if err := store.Save(ctx, AuthorizationState{State: " "}); err == nil {
		t.Fatalf("expected blank state to be rejected")
	}
	if err := store.Save(ctx, AuthorizationState{State: "s1", CodeVerifier: "v1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, AuthorizationState{State: "old", ExpiresAt: now.Add(-time.Second)}); err != nil {
		t.Fatalf("save expired: %v", err)
	}

	record, err := store.Consume(ctx, "s1")
	if err != nil || record.CodeVerifier != "v1" {
		t.Fatalf("expected stored verifier, got %+v %v", record, err)
	}
	if !record.ExpiresAt.Equal(now.Add(DefaultPendingTTL)) {
		t.Fatalf("expected default ttl, got %s", record.ExpiresAt)
	}
	if _, err := store.Consume(ctx, "s1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected second consume to miss, got %v", err)
	}
	if _, err := store.Consume(ctx, "old"); !errors.Is(err, ErrStateExpired) {
		t.Fatalf("expected expired state, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected store to be empty, got %d", store.Len())
	}
}
