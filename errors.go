package chat2png

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRenderBackend is matched by every error a backend fails with.
var ErrRenderBackend = errors.New("chat2png: render backend failed")

// Violation is one failed validation rule. Field is the JSON path of the
// offending value, e.g. "messages[0].color".
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidInputError reports a request that failed validation. No layout
// work is done for such a request.
type InvalidInputError struct {
	Violations []Violation
}

func (e *InvalidInputError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return "chat2png: invalid input: " + strings.Join(parts, "; ")
}

// BackendError wraps an unrecoverable failure of the named backend.
type BackendError struct {
	Backend RenderMethod
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("chat2png: %s backend: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() []error { return []error{ErrRenderBackend, e.Err} }

func backendError(method RenderMethod, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Backend: method, Err: err}
}
