package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorCodeNetwork        = "network_error"
	ErrorCodeHTTP           = "http_error"
	ErrorCodeSessionExpired = "session_expired"
	ErrorCodeUpload         = "upload_error"
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeDecode         = "decode_error"
)

const (
	ClientErrorBadInput        = "APICLIENT_BAD_INPUT"
	ClientErrorSessionExpired  = "APICLIENT_SESSION_EXPIRED"
	ClientErrorForbidden       = "APICLIENT_FORBIDDEN"
	ClientErrorNotFound        = "APICLIENT_NOT_FOUND"
	ClientErrorConflict        = "APICLIENT_CONFLICT"
	ClientErrorRateLimited     = "APICLIENT_RATE_LIMITED"
	ClientErrorExternalFailure = "APICLIENT_EXTERNAL_FAILURE"
	ClientErrorPersistence     = "APICLIENT_PERSISTENCE_FAILURE"
	ClientErrorInternal        = "APICLIENT_INTERNAL_ERROR"
)

const sessionExpiredMessage = "Session expired. Please sign in again."

// APIError is the value returned for every failed call. It never escapes as a
// panic and callers branch on it explicitly.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	if code == "" {
		code = ErrorCodeHTTP
	}
	return fmt.Sprintf("apiclient: %s (status %d): %s", code, e.Status, strings.TrimSpace(e.Message))
}

func (e *APIError) IsSessionExpired() bool {
	return e != nil && e.Code == ErrorCodeSessionExpired
}

func (e *APIError) IsNetwork() bool {
	return e != nil && (e.Code == ErrorCodeNetwork || e.Code == ErrorCodeUpload)
}

// ToServiceError maps the call failure into the go-errors envelope used by the
// rest of the stack.
func (e *APIError) ToServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	category, textCode := apiErrorCategory(e)
	code := e.Status
	if code == 0 {
		code = http.StatusBadGateway
	}
	metadata := map[string]any{
		"code":   e.Code,
		"status": e.Status,
	}
	if strings.TrimSpace(e.Reason) != "" {
		metadata["reason"] = e.Reason
	}
	if e.Details != nil {
		metadata["details"] = e.Details
	}
	return goerrors.New(e.Error(), category).
		WithCode(code).
		WithTextCode(textCode).
		WithMetadata(metadata)
}

func apiErrorCategory(e *APIError) (goerrors.Category, string) {
	switch e.Code {
	case ErrorCodeNetwork, ErrorCodeUpload:
		return goerrors.CategoryExternal, ClientErrorExternalFailure
	case ErrorCodeSessionExpired:
		return goerrors.CategoryAuth, ClientErrorSessionExpired
	case ErrorCodeInvalidRequest:
		return goerrors.CategoryBadInput, ClientErrorBadInput
	case ErrorCodeDecode:
		return goerrors.CategoryOperation, ClientErrorExternalFailure
	}
	switch {
	case e.Status == http.StatusUnauthorized:
		return goerrors.CategoryAuth, ClientErrorSessionExpired
	case e.Status == http.StatusForbidden:
		return goerrors.CategoryAuthz, ClientErrorForbidden
	case e.Status == http.StatusNotFound:
		return goerrors.CategoryNotFound, ClientErrorNotFound
	case e.Status == http.StatusConflict:
		return goerrors.CategoryConflict, ClientErrorConflict
	case e.Status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit, ClientErrorRateLimited
	case e.Status == http.StatusUnprocessableEntity:
		return goerrors.CategoryValidation, ClientErrorBadInput
	case e.Status >= 400 && e.Status < 500:
		return goerrors.CategoryBadInput, ClientErrorBadInput
	default:
		return goerrors.CategoryExternal, ClientErrorExternalFailure
	}
}

// NewSessionExpiredError builds the terminal "sign in again" failure.
func NewSessionExpiredError(reason string) *APIError {
	return sessionExpiredError(reason)
}

// NewInvalidRequestError builds a local failure for a call that could not be
// constructed. It is never reported to the error observer.
func NewInvalidRequestError(message string, err error) *APIError {
	return invalidRequestError(message, err)
}

func sessionExpiredError(reason string) *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Message: sessionExpiredMessage,
		Code:    ErrorCodeSessionExpired,
		Reason:  strings.TrimSpace(reason),
	}
}

func networkError(code string, err error) *APIError {
	message := "connection error"
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		message = err.Error()
	}
	return &APIError{
		Status:  0,
		Message: message,
		Code:    code,
	}
}

func invalidRequestError(message string, err error) *APIError {
	out := &APIError{
		Status:  0,
		Message: strings.TrimSpace(message),
		Code:    ErrorCodeInvalidRequest,
	}
	if err != nil {
		out.Details = err.Error()
	}
	return out
}

// httpErrorFromResponse extracts a best-effort message from a JSON or text
// body. Lookup order is message, error, detail, raw text, status text.
func httpErrorFromResponse(status int, contentType string, body []byte) *APIError {
	out := &APIError{
		Status: status,
		Code:   ErrorCodeHTTP,
	}
	trimmed := strings.TrimSpace(string(body))
	if isJSONContent(contentType, body) {
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err == nil {
			out.Message = firstNonEmpty(
				stringField(payload, "message"),
				stringField(payload, "error"),
				stringField(payload, "detail"),
			)
			out.Reason = firstNonEmpty(
				stringField(payload, "code"),
				stringField(payload, "error"),
			)
			if details, ok := payload["details"]; ok && details != nil {
				out.Details = details
			} else if detail, ok := payload["detail"]; ok && detail != nil {
				if _, isString := detail.(string); !isString {
					out.Details = detail
				}
			}
		}
	} else if trimmed != "" && len(trimmed) <= 512 {
		out.Message = trimmed
	}
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}
	if out.Message == "" {
		out.Message = fmt.Sprintf("request failed with status %d", status)
	}
	return out
}

func stringField(payload map[string]any, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		return ""
	}
}

func isJSONContent(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	if strings.TrimSpace(contentType) != "" {
		return false
	}
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

func clientError(message string, category goerrors.Category, code int, textCode string) *goerrors.Error {
	return goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
}

func clientWrapError(source error, category goerrors.Category, message string, code int, textCode string) *goerrors.Error {
	if source == nil {
		return clientError(message, category, code, textCode)
	}
	return goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
}

func badInputError(message string) *goerrors.Error {
	return clientError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ClientErrorBadInput)
}

func persistenceError(source error, message string) *goerrors.Error {
	return clientWrapError(source, goerrors.CategoryInternal, message, http.StatusInternalServerError, ClientErrorPersistence)
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureClientErrorEnvelope(richErr)
	}
	var apiErr *APIError
	if goerrors.As(err, &apiErr) {
		return apiErr.ToServiceError()
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must"):
		return badInputError(err.Error())
	}
	return ensureClientErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureClientErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = clientHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultClientTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultClientTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ClientErrorBadInput
	case goerrors.CategoryNotFound:
		return ClientErrorNotFound
	case goerrors.CategoryAuth:
		return ClientErrorSessionExpired
	case goerrors.CategoryAuthz:
		return ClientErrorForbidden
	case goerrors.CategoryConflict:
		return ClientErrorConflict
	case goerrors.CategoryRateLimit:
		return ClientErrorRateLimited
	case goerrors.CategoryExternal:
		return ClientErrorExternalFailure
	default:
		return ClientErrorInternal
	}
}

func clientHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
