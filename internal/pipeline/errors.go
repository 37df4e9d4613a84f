package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorType int

const (
	ErrTypeBusy ErrorType = iota
	ErrTypeNotReady
	ErrTypeNotFound
	ErrTypeCollaborator
	ErrTypeValidation
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeBusy:
		return "Busy"
	case ErrTypeNotReady:
		return "NotReady"
	case ErrTypeNotFound:
		return "NotFound"
	case ErrTypeCollaborator:
		return "Collaborator"
	case ErrTypeValidation:
		return "Validation"
	default:
		return "Unknown"
	}
}

// NarrationError is the error type returned by the orchestrator.
type NarrationError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

var (
	ErrBusy            = NewError(ErrTypeBusy, "pipeline is busy")
	ErrNotReady        = NewError(ErrTypeNotReady, "pipeline is not ready to render")
	ErrCaptionNotFound = NewError(ErrTypeNotFound, "caption not found")
)

func NewError(errorType ErrorType, message string) *NarrationError {
	return &NarrationError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *NarrationError {
	err := NewError(errorType, message)
	err.Cause = cause
	return err
}

func (e *NarrationError) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Type, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *NarrationError) Unwrap() error {
	return e.Cause
}

// Is matches any NarrationError of the same type, so errors.Is(err, ErrBusy)
// works for wrapped and freshly built errors alike.
func (e *NarrationError) Is(target error) bool {
	t, ok := target.(*NarrationError)
	return ok && t.Type == e.Type
}

func (e *NarrationError) WithContext(key string, value any) *NarrationError {
	e.Context[key] = value
	return e
}

func IsErrorType(err error, errorType ErrorType) bool {
	var nErr *NarrationError
	if errors.As(err, &nErr) {
		return nErr.Type == errorType
	}
	return false
}

func collaboratorError(stage Stage, err error) *NarrationError {
	return NewErrorWithCause(ErrTypeCollaborator, fmt.Sprintf("%s failed", stage.Label()), err).
		WithContext("stage", string(stage))
}
