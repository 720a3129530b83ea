package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

// ErrNoData is returned when a successful response lacks the expected data key.
var ErrNoData = errors.New("boardsync: response has no data")

// StatusError carries the raw HTTP outcome behind a typed board error.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("boardsync: %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// errorMessage picks the user-facing text of a failed response: the first
// detail if present, then the error field, then the message.
func errorMessage(env envelope, status int) string {
	if len(env.Details) > 0 {
		var s string
		if json.Unmarshal(env.Details[0], &s) == nil {
			return s
		}
		return string(env.Details[0])
	}
	if env.Error != "" {
		return env.Error
	}
	if env.Message != "" {
		return env.Message
	}
	return http.StatusText(status)
}

// statusError maps an HTTP failure onto the board error kinds.
func statusError(op string, se *StatusError) error {
	switch se.Status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &board.ValidationError{Op: op, Reason: se.Message, Err: se}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &board.AuthorizationError{Op: op, Reason: se.Message}
	case http.StatusNotFound, http.StatusConflict, http.StatusPreconditionFailed:
		return &board.ConflictError{Op: op, Resource: se.Path, Reason: se.Message}
	}
	return &board.NetworkError{Op: op, Err: se}
}
