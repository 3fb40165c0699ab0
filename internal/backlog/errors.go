package backlog

import (
	"errors"
	"fmt"

	"github.com/backlogdeck/bld/internal/models"
)

// Error is a classified failure from the remote service or its
// preconditions (config, host permission). The Code drives the
// degradation policy in the engine.
type Error struct {
	Code    models.ErrorCode
	Message string
	Status  int // HTTP status when applicable, 0 otherwise
}

func (e *Error) Error() string {
	if e.Status != 0 && e.Message == "" {
		return fmt.Sprintf("backlog API error %d", e.Status)
	}
	return e.Message
}

// NewError builds a classified error.
func NewError(code models.ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Classify maps any error to an ErrorCode. Unclassified errors
// (timeouts, DNS failures, decode errors) count as network errors.
func Classify(err error) models.ErrorCode {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return models.ErrorNetworkError
}
