package core

import (
	"net/http"
	"strings"
	"time"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"
	HeaderRequestID     = "X-Request-ID"
	HeaderUserAgent     = "User-Agent"

	ContentTypeJSON = "application/json"
)

// CredentialPair is the access/refresh token pair owned by a Client.
type CredentialPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (p CredentialPair) IsZero() bool {
	return strings.TrimSpace(p.AccessToken) == "" && strings.TrimSpace(p.RefreshToken) == ""
}

func (p CredentialPair) normalized() CredentialPair {
	return CredentialPair{
		AccessToken:  strings.TrimSpace(p.AccessToken),
		RefreshToken: strings.TrimSpace(p.RefreshToken),
	}
}

// Call describes one outbound request. A Call is copied on dispatch and is
// never mutated afterwards, so a replay sends exactly the same request.
// Anonymous calls carry no bearer token and a 401 is returned as is.
type Call struct {
	Method      string
	Path        string
	Query       map[string]string
	Headers     map[string]string
	Body        []byte
	ContentType string
	Multipart   bool
	RequestID   string
	Anonymous   bool
}

func (c Call) clone() Call {
	out := c
	out.Query = cloneStringMap(c.Query)
	out.Headers = cloneStringMap(c.Headers)
	if c.Body != nil {
		out.Body = append([]byte(nil), c.Body...)
	}
	return out
}

// Response is the raw outcome of a dispatched call. Error is nil on success.
type Response struct {
	StatusCode  int
	Headers     map[string]string
	Body        []byte
	ContentType string
	NoContent   bool
	Replayed    bool
	Error       *APIError
}

func (r Response) OK() bool {
	return r.Error == nil
}

// Result is the typed form of a Response produced by Decode.
type Result[T any] struct {
	Data       T
	NoContent  bool
	StatusCode int
	Error      *APIError
}

func (r Result[T]) OK() bool {
	return r.Error == nil
}

// FilePart is the file attached to an upload call.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string
	Content     []byte
}

// SessionState is a point-in-time view of the credential and refresh state.
type SessionState struct {
	Authenticated        bool
	HasRefreshToken      bool
	Refreshing           bool
	AccessTokenExpiresAt *time.Time
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

func isSuccessStatus(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

func headerValue(headers map[string]string, name string) string {
	if len(headers) == 0 {
		return ""
	}
	if value, ok := headers[name]; ok {
		return value
	}
	canonical := http.CanonicalHeaderKey(name)
	if value, ok := headers[canonical]; ok {
		return value
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

func cloneStringMap(input map[string]string) map[string]string {
	if len(input) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
