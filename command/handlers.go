package command

import (
	"context"

	"github.com/goliatone/go-apiclient/auth"
	"github.com/goliatone/go-apiclient/core"
	gocmd "github.com/goliatone/go-command"
)

type SessionService interface {
	Login(ctx context.Context, username, password string) (auth.Session, *core.APIError)
	CompleteOIDC(ctx context.Context, callback auth.OIDCCallback) (auth.Session, *core.APIError)
	Logout(ctx context.Context, global bool) error
	Refresh(ctx context.Context) *core.APIError
}

type CredentialWriter interface {
	SetCredentials(ctx context.Context, accessToken, refreshToken string) error
	ClearCredentials(ctx context.Context) error
}

type LoginCommand struct {
	service SessionService
}

func NewLoginCommand(service SessionService) *LoginCommand {
	return &LoginCommand{service: service}
}

func (c *LoginCommand) Execute(ctx context.Context, msg LoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	session, apiErr := c.service.Login(ctx, msg.Username, msg.Password)
	if apiErr != nil {
		return callError(apiErr)
	}
	storeResult(ctx, session)
	return nil
}

type CompleteOIDCCommand struct {
	service SessionService
}

func NewCompleteOIDCCommand(service SessionService) *CompleteOIDCCommand {
	return &CompleteOIDCCommand{service: service}
}

func (c *CompleteOIDCCommand) Execute(ctx context.Context, msg CompleteOIDCMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	session, apiErr := c.service.CompleteOIDC(ctx, msg.Callback)
	if apiErr != nil {
		return callError(apiErr)
	}
	storeResult(ctx, session)
	return nil
}

type LogoutCommand struct {
	service SessionService
}

func NewLogoutCommand(service SessionService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, msg LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.Logout(ctx, msg.Global)
}

type RefreshCommand struct {
	service SessionService
}

func NewRefreshCommand(service SessionService) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, _ RefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return callError(c.service.Refresh(ctx))
}

type SetCredentialsCommand struct {
	writer CredentialWriter
}

func NewSetCredentialsCommand(writer CredentialWriter) *SetCredentialsCommand {
	return &SetCredentialsCommand{writer: writer}
}

func (c *SetCredentialsCommand) Execute(ctx context.Context, msg SetCredentialsMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: credential writer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.writer.SetCredentials(ctx, msg.AccessToken, msg.RefreshToken)
}

type ClearCredentialsCommand struct {
	writer CredentialWriter
}

func NewClearCredentialsCommand(writer CredentialWriter) *ClearCredentialsCommand {
	return &ClearCredentialsCommand{writer: writer}
}

func (c *ClearCredentialsCommand) Execute(ctx context.Context, _ ClearCredentialsMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: credential writer is required")
	}
	return c.writer.ClearCredentials(ctx)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
