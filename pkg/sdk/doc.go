// Package sdk is the HTTP client for the task board REST API.
//
// Usage:
//
//	c := sdk.NewClient("https://board.example.com/api", sdk.WithToken(token))
//	tasks, err := c.ListTasks(ctx, projectID)
//
// Every call returns the typed errors of package board: a 400 or 422 becomes
// *board.ValidationError, 401/403 *board.AuthorizationError, 404/409/412
// *board.ConflictError, and transport failures, 5xx responses and timeouts
// *board.NetworkError. Reads are retried with exponential backoff; writes are
// sent once.
package sdk
