package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-apiclient/auth"
	apicommand "github.com/goliatone/go-apiclient/command"
	"github.com/goliatone/go-apiclient/core"
	apiquery "github.com/goliatone/go-apiclient/query"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// SessionHandlers is the set of session commands and queries registered by
// RegisterSessionHandlers.
type SessionHandlers struct {
	subscriptions []commanddispatcher.Subscription
}

// Unsubscribe detaches every handler from the global dispatcher.
func (h *SessionHandlers) Unsubscribe() {
	if h == nil {
		return
	}
	for _, subscription := range h.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	h.subscriptions = nil
}

// RegisterSessionHandlers wires the login, logout, refresh and credential
// commands plus the current-user and session-state queries.
func RegisterSessionHandlers(
	adapter *RegistryAdapter,
	service *auth.Service,
	client *core.Client,
	runnerOpts ...runner.Option,
) (*SessionHandlers, error) {
	if service == nil || client == nil {
		return nil, fmt.Errorf("gocommand: session service and client are required")
	}
	handlers := &SessionHandlers{}
	register := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			handlers.Unsubscribe()
			return err
		}
		handlers.subscriptions = append(handlers.subscriptions, subscription)
		return nil
	}

	steps := []func() error{
		func() error {
			return register(RegisterAndSubscribe[apicommand.LoginMessage](adapter, apicommand.NewLoginCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[apicommand.CompleteOIDCMessage](adapter, apicommand.NewCompleteOIDCCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[apicommand.LogoutMessage](adapter, apicommand.NewLogoutCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[apicommand.RefreshMessage](adapter, apicommand.NewRefreshCommand(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[apicommand.SetCredentialsMessage](adapter, apicommand.NewSetCredentialsCommand(client), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribe[apicommand.ClearCredentialsMessage](adapter, apicommand.NewClearCredentialsCommand(client), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribeQuery[apiquery.CurrentUserMessage, auth.User](adapter, apiquery.NewCurrentUserQuery(service), runnerOpts...))
		},
		func() error {
			return register(RegisterAndSubscribeQuery[apiquery.SessionStateMessage, core.SessionState](adapter, apiquery.NewSessionStateQuery(client), runnerOpts...))
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return handlers, nil
}
