package apiclient

import (
	"fmt"

	apicommand "github.com/goliatone/go-apiclient/command"
	apiquery "github.com/goliatone/go-apiclient/query"
)

// CommandQueryService is the sign-in side of the facade, usually *AuthService.
type CommandQueryService interface {
	apicommand.SessionService
	apiquery.UserReader
}

// CredentialService is the coordinator side of the facade, usually *Client.
type CredentialService interface {
	apicommand.CredentialWriter
	apiquery.SessionReader
}

type Commands struct {
	Login            *apicommand.LoginCommand
	CompleteOIDC     *apicommand.CompleteOIDCCommand
	Logout           *apicommand.LogoutCommand
	Refresh          *apicommand.RefreshCommand
	SetCredentials   *apicommand.SetCredentialsCommand
	ClearCredentials *apicommand.ClearCredentialsCommand
}

type Queries struct {
	CurrentUser  *apiquery.CurrentUserQuery
	SessionState *apiquery.SessionStateQuery
}

type Facade struct {
	service     CommandQueryService
	credentials CredentialService
	commands    Commands
	queries     Queries
}

func NewFacade(service CommandQueryService, credentials CredentialService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("apiclient: session service is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("apiclient: credential service is required")
	}

	facade := &Facade{service: service, credentials: credentials}
	facade.commands = Commands{
		Login:            apicommand.NewLoginCommand(service),
		CompleteOIDC:     apicommand.NewCompleteOIDCCommand(service),
		Logout:           apicommand.NewLogoutCommand(service),
		Refresh:          apicommand.NewRefreshCommand(service),
		SetCredentials:   apicommand.NewSetCredentialsCommand(credentials),
		ClearCredentials: apicommand.NewClearCredentialsCommand(credentials),
	}
	facade.queries = Queries{
		CurrentUser:  apiquery.NewCurrentUserQuery(service),
		SessionState: apiquery.NewSessionStateQuery(credentials),
	}
	return facade, nil
}

// Facade wires the session's auth service and coordinator into the command
// and query handlers.
func (s *Session) Facade() (*Facade, error) {
	if s == nil || s.Auth == nil || s.Client == nil {
		return nil, fmt.Errorf("apiclient: session is not configured")
	}
	return NewFacade(s.Auth, s.Client)
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
