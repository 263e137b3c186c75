package gocommand

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-apiclient/auth"
	apicommand "github.com/goliatone/go-apiclient/command"
	"github.com/goliatone/go-apiclient/core"
	apiquery "github.com/goliatone/go-apiclient/query"
	"github.com/goliatone/go-apiclient/transport"
	"github.com/goliatone/go-command"
)

type okMessage struct{}

func (okMessage) Type() string { return "apiclient.test.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "apiclient.test.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "apiclient.test.dispatch" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	subscription, err := RegisterAndSubscribe(adapter, cmd)
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer subscription.Unsubscribe()
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestRegisterSessionHandlersDispatchesThroughService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case auth.DefaultLoginPath:
			_, _ = w.Write([]byte(`{"access_token":"acc-1","refresh_token":"ref-1","user":{"id":"u1","roles":["ADMIN"]}}`))
		case auth.DefaultMePath:
			if r.Header.Get("Authorization") != "Bearer acc-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"id":"u1","email":"ana@example.com","roles":["ADMIN"]}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	client, err := core.NewClient(core.Config{BaseURL: server.URL},
		core.WithTransport(transport.NewRESTAdapter(server.Client())),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	service, err := auth.NewService(client, auth.Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	handlers, err := RegisterSessionHandlers(NewRegistryAdapter(nil), service, client)
	if err != nil {
		t.Fatalf("register session handlers: %v", err)
	}
	defer handlers.Unsubscribe()

	ctx := context.Background()
	if err := Dispatch(ctx, apicommand.LoginMessage{Username: "ana", Password: "secret"}); err != nil {
		t.Fatalf("dispatch login: %v", err)
	}

	state, err := Query[apiquery.SessionStateMessage, core.SessionState](ctx, apiquery.SessionStateMessage{})
	if err != nil {
		t.Fatalf("query session state: %v", err)
	}
	if !state.Authenticated {
		t.Fatalf("expected access token after login, got %+v", state)
	}

	user, err := Query[apiquery.CurrentUserMessage, auth.User](ctx, apiquery.CurrentUserMessage{})
	if err != nil {
		t.Fatalf("query current user: %v", err)
	}
	if user.Email != "ana@example.com" || user.Perfil != auth.RoleAdmin {
		t.Fatalf("unexpected user %+v", user)
	}

	if err := Dispatch(ctx, apicommand.ClearCredentialsMessage{}); err != nil {
		t.Fatalf("dispatch clear: %v", err)
	}
	if client.Session().Authenticated {
		t.Fatalf("expected credentials to be cleared")
	}
}

func TestRegisterSessionHandlersRejectsInvalidMessages(t *testing.T) {
	client, err := core.NewClient(core.Config{BaseURL: "http://127.0.0.1:1"},
		core.WithTransport(transport.NewRESTAdapter(http.DefaultClient)),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	service, err := auth.NewService(client, auth.Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handlers, err := RegisterSessionHandlers(NewRegistryAdapter(nil), service, client)
	if err != nil {
		t.Fatalf("register session handlers: %v", err)
	}
	defer handlers.Unsubscribe()

	err = Dispatch(context.Background(), apicommand.LoginMessage{Username: " "})
	if err == nil {
		t.Fatalf("expected username validation error")
	}
}

func TestRegisterSessionHandlersRequiresDependencies(t *testing.T) {
	if _, err := RegisterSessionHandlers(NewRegistryAdapter(nil), nil, nil); err == nil {
		t.Fatalf("expected missing dependencies to fail")
	}
}
