package query

const (
	TypeCurrentUser  = "apiclient.query.current_user"
	TypeSessionState = "apiclient.query.session_state"
)

type CurrentUserMessage struct{}

func (CurrentUserMessage) Type() string { return TypeCurrentUser }

type SessionStateMessage struct{}

func (SessionStateMessage) Type() string { return TypeSessionState }
