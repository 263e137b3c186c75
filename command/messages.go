package command

import (
	"strings"

	"github.com/goliatone/go-apiclient/auth"
)

const (
	TypeLogin            = "apiclient.command.login"
	TypeCompleteOIDC     = "apiclient.command.oidc.complete"
	TypeLogout           = "apiclient.command.logout"
	TypeRefresh          = "apiclient.command.refresh"
	TypeSetCredentials   = "apiclient.command.credentials.set"
	TypeClearCredentials = "apiclient.command.credentials.clear"
)

type LoginMessage struct {
	Username string
	Password string
}

func (LoginMessage) Type() string { return TypeLogin }

func (m LoginMessage) Validate() error {
	if strings.TrimSpace(m.Username) == "" {
		return commandValidationError("username", "username is required")
	}
	if m.Password == "" {
		return commandValidationError("password", "password is required")
	}
	return nil
}

type CompleteOIDCMessage struct {
	Callback auth.OIDCCallback
}

func (CompleteOIDCMessage) Type() string { return TypeCompleteOIDC }

func (m CompleteOIDCMessage) Validate() error {
	if strings.TrimSpace(m.Callback.Error) != "" {
		return nil
	}
	if strings.TrimSpace(m.Callback.Code) == "" {
		return commandValidationError("code", "authorization code is required")
	}
	return nil
}

type LogoutMessage struct {
	Global bool
}

func (LogoutMessage) Type() string { return TypeLogout }

func (LogoutMessage) Validate() error { return nil }

type RefreshMessage struct{}

func (RefreshMessage) Type() string { return TypeRefresh }

func (RefreshMessage) Validate() error { return nil }

type SetCredentialsMessage struct {
	AccessToken  string
	RefreshToken string
}

func (SetCredentialsMessage) Type() string { return TypeSetCredentials }

func (m SetCredentialsMessage) Validate() error {
	if strings.TrimSpace(m.AccessToken) == "" {
		return commandValidationError("access_token", "access token is required")
	}
	return nil
}

type ClearCredentialsMessage struct{}

func (ClearCredentialsMessage) Type() string { return TypeClearCredentials }

func (ClearCredentialsMessage) Validate() error { return nil }
