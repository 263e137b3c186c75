package query

import (
	"github.com/goliatone/go-apiclient/auth"
	"github.com/goliatone/go-apiclient/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[CurrentUserMessage, auth.User]          = (*CurrentUserQuery)(nil)
	_ gocmd.Querier[SessionStateMessage, core.SessionState] = (*SessionStateQuery)(nil)

	_ UserReader    = (*auth.Service)(nil)
	_ SessionReader = (*core.Client)(nil)
)
