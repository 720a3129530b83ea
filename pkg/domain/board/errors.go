package board

import (
	"errors"
	"fmt"
)

// Error kinds. Every typed error below reports Is(kind) for its kind so
// callers can branch with errors.Is without knowing the concrete type.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNetwork      = errors.New("network failure")
	ErrConflict     = errors.New("state changed on the server")
	ErrUnauthorized = errors.New("not authorized")
)

// Lookup errors.
var (
	// ErrTaskNotFound indicates the task is not in the local cache.
	ErrTaskNotFound = errors.New("task not found")

	// ErrStageNotFound indicates the stage is not part of the project's pipeline.
	ErrStageNotFound = errors.New("stage not found")

	// ErrProjectNotLoaded indicates no stage pipeline has been loaded for the project.
	ErrProjectNotLoaded = errors.New("project not loaded")
)

// ValidationError rejects an operation before any network call is made.
type ValidationError struct {
	Op     string
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := e.Op + ": " + e.Reason
	if e.Field != "" {
		msg = e.Op + ": " + e.Field + ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
func (e *ValidationError) Unwrap() error        { return e.Err }

// NetworkError is a failed remote call (timeout, connectivity, server fault).
// It is safe to retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return e.Op + ": network failure"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }
func (e *NetworkError) Unwrap() error        { return e.Err }

// ConflictError means the server rejected a mutation because its state moved
// underneath the client. The client must refetch rather than retry.
type ConflictError struct {
	Op       string
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.Resource == "" {
		return e.Op + ": conflict: " + e.Reason
	}
	return e.Op + ": conflict on " + e.Resource + ": " + e.Reason
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// AuthorizationError means the acting user's role does not allow the action.
type AuthorizationError struct {
	Op     string
	UserID string
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.UserID == "" {
		return e.Op + ": not authorized: " + e.Reason
	}
	return e.Op + ": user " + e.UserID + " not authorized: " + e.Reason
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrUnauthorized }

// BoardUnavailableError is fatal: the initial stage/task snapshot of a
// project could not be loaded, so no board can be shown.
type BoardUnavailableError struct {
	ProjectID string
	Err       error
}

func (e *BoardUnavailableError) Error() string {
	return fmt.Sprintf("board for project %s unavailable: %v", e.ProjectID, e.Err)
}

func (e *BoardUnavailableError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same request may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
