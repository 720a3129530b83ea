package cli

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: 1,
	}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) && cliErr.ExitCode != 0 {
		return cliErr.ExitCode
	}
	return 1
}

// MapError converts known board errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	var unavailable *board.BoardUnavailableError
	if errors.As(err, &unavailable) {
		return NewCLIError(
			fmt.Sprintf("board %s could not be loaded", unavailable.ProjectID),
			"Check api_url with 'boardsync config show' and that the project id is correct",
			err,
		)
	}

	var authErr *board.AuthorizationError
	if errors.As(err, &authErr) && authErr.UserID != "" {
		return NewCLIError(fmt.Sprintf("user %s is not allowed to do this", authErr.UserID),
			"Only the uploader, the project owner or a manager may do this", err)
	}

	switch {
	case errors.Is(err, board.ErrTaskNotFound):
		return NewCLIError("task not found", "Run 'boardsync task list' to see the tasks of the board", err)
	case errors.Is(err, board.ErrStageNotFound):
		return NewCLIError("stage not found", "Run 'boardsync stages list' to see the stage ids", err)
	case errors.Is(err, board.ErrProjectNotLoaded):
		return NewCLIError("project not loaded", "Pass --project <id>", err)
	case errors.Is(err, board.ErrValidation):
		return &CLIError{Message: "invalid request", Hint: "Nothing was sent to the server", Err: err, ExitCode: 2}
	case errors.Is(err, board.ErrUnauthorized):
		return NewCLIError("not authorized", "Set a valid token with BOARDSYNC_TOKEN or in config.yaml", err)
	case errors.Is(err, board.ErrConflict):
		return NewCLIError("the server state changed", "The board was refreshed; review it and retry", err)
	case errors.Is(err, board.ErrNetwork):
		return NewCLIError("server unreachable", "Local changes were rolled back; retry when the server is reachable", err)
	}

	return err
}
