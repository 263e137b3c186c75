package command

import (
	"github.com/goliatone/go-apiclient/auth"
	"github.com/goliatone/go-apiclient/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[LoginMessage]            = (*LoginCommand)(nil)
	_ gocmd.Commander[CompleteOIDCMessage]     = (*CompleteOIDCCommand)(nil)
	_ gocmd.Commander[LogoutMessage]           = (*LogoutCommand)(nil)
	_ gocmd.Commander[RefreshMessage]          = (*RefreshCommand)(nil)
	_ gocmd.Commander[SetCredentialsMessage]   = (*SetCredentialsCommand)(nil)
	_ gocmd.Commander[ClearCredentialsMessage] = (*ClearCredentialsCommand)(nil)

	_ SessionService   = (*auth.Service)(nil)
	_ CredentialWriter = (*core.Client)(nil)
)
