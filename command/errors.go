package command

import (
	"net/http"

	"github.com/goliatone/go-apiclient/core"
	goerrors "github.com/goliatone/go-errors"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ClientErrorInternal)
}

func commandValidationError(field string, message string) error {
	return goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ClientErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

// callError converts a failed call into the go-errors envelope. A nil
// APIError yields a nil error.
func callError(apiErr *core.APIError) error {
	if apiErr == nil {
		return nil
	}
	return apiErr.ToServiceError()
}
