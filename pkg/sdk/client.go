package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/boardsync/pkg/application"
	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
	"golang.org/x/oauth2"
)

const maxResponseBytes = 16 << 20

var _ application.Backend = (*Client)(nil)

// Client is a typed Go client for the task board REST API.
type Client struct {
	baseURL  string
	http     *http.Client
	retryCfg retry.Config
	timeout  time.Duration
	logger   *slog.Logger
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.timeout <= 0 {
		o.timeout = defaultOptions().timeout
	}
	if o.maxAttempts < 1 {
		o.maxAttempts = 1
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    authorized(o.httpClient, o.token),
		timeout: o.timeout,
		logger:  o.logger,
		retryCfg: retry.Config{
			MaxAttempts:   o.maxAttempts,
			InitialDelay:  o.initialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// authorized wraps base so every request carries the bearer token.
func authorized(base *http.Client, token string) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if token == "" {
		return base
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   transport,
		},
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}
}

// envelope is the response wrapper every endpoint uses.
type envelope struct {
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Details []json.RawMessage `json:"details"`
}

// request describes one API call. body is rebuilt for every attempt.
type request struct {
	op     string
	method string
	path   string
	body   bodyFunc
}

// do runs req under the per-call timeout. Reads are retried while the
// failure is retryable.
func (c *Client) do(ctx context.Context, req request) (envelope, error) {
	t := timeout.New[envelope](timeout.Config{DefaultTimeout: c.timeout})
	env, err := t.Execute(ctx, c.timeout, func(ctx context.Context) (envelope, error) {
		if req.method == http.MethodGet {
			return c.sendWithRetry(ctx, req)
		}
		return c.send(ctx, req)
	})
	if err != nil {
		return envelope{}, asBoardError(req.op, err)
	}
	return env, nil
}

func (c *Client) sendWithRetry(ctx context.Context, req request) (envelope, error) {
	var last error
	r := retry.New[envelope](c.retryCfg)
	env, err := r.Do(ctx, func(ctx context.Context) (envelope, error) {
		env, err := c.send(ctx, req)
		last = err
		if err != nil && !board.Retryable(err) {
			// stop retrying; last carries the failure
			return env, nil
		}
		return env, err
	})
	if last != nil {
		return envelope{}, last
	}
	if err != nil {
		return envelope{}, err
	}
	return env, nil
}

func (c *Client) send(ctx context.Context, req request) (envelope, error) {
	var body io.Reader
	var contentType string
	if req.body != nil {
		b, ct, err := req.body()
		if err != nil {
			return envelope{}, asBoardError(req.op, err)
		}
		body, contentType = b, ct
	}

	hreq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return envelope{}, &board.NetworkError{Op: req.op, Err: err}
	}
	hreq.Header.Set("Accept", "application/json")
	if contentType != "" {
		hreq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		return envelope{}, &board.NetworkError{Op: req.op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return envelope{}, &board.NetworkError{Op: req.op, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("api call", "method", req.method, "path", req.path, "status", resp.StatusCode)

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if jerr := json.Unmarshal(raw, &env); jerr != nil && resp.StatusCode < 300 {
			return envelope{}, &board.NetworkError{Op: req.op, Err: fmt.Errorf("decode response: %w", jerr)}
		}
	}
	if resp.StatusCode >= 300 {
		return envelope{}, statusError(req.op, &StatusError{
			Method:  req.method,
			Path:    req.path,
			Status:  resp.StatusCode,
			Message: errorMessage(env, resp.StatusCode),
		})
	}
	return env, nil
}

// asBoardError keeps typed board errors and files anything else (timeouts,
// cancellation, encoding failures) as a network error.
func asBoardError(op string, err error) error {
	for _, kind := range []error{board.ErrValidation, board.ErrNetwork, board.ErrConflict, board.ErrUnauthorized} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return &board.NetworkError{Op: op, Err: err}
}

func path(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// --- Project ---

// GetProjectConfig returns the stage pipeline of a project.
func (c *Client) GetProjectConfig(ctx context.Context, projectID string) (board.ProjectConfig, error) {
	const op = "get project config"
	env, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/project/getProjectConfig" + path(projectID)})
	if err != nil {
		return board.ProjectConfig{}, err
	}
	cfg, ok, err := dataField[board.ProjectConfig](env, "projectConfig")
	if err != nil {
		return board.ProjectConfig{}, &board.NetworkError{Op: op, Err: err}
	}
	if !ok {
		return board.ProjectConfig{}, &board.NetworkError{Op: op, Err: ErrNoData}
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = projectID
	}
	return cfg, nil
}

// UpdateStages replaces the whole stage list of a project. An empty config is
// returned when the server acknowledges without echoing the pipeline.
func (c *Client) UpdateStages(ctx context.Context, projectID string, stages []board.Stage) (board.ProjectConfig, error) {
	const op = "update stages"
	payload := board.ProjectConfig{ProjectID: projectID, Stages: stages}
	env, err := c.do(ctx, request{op: op, method: http.MethodPut, path: "/project/updateTaskStages", body: jsonBody(payload)})
	if err != nil {
		return board.ProjectConfig{}, err
	}
	cfg, _, err := dataField[board.ProjectConfig](env, "projectConfig")
	if err != nil {
		return board.ProjectConfig{}, &board.NetworkError{Op: op, Err: err}
	}
	return cfg, nil
}

// GetProject returns a project with its members.
func (c *Client) GetProject(ctx context.Context, projectID string) (board.Project, error) {
	const op = "get project"
	env, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/project/getProject" + path(projectID)})
	if err != nil {
		return board.Project{}, err
	}
	p, ok, err := dataField[board.Project](env, "project")
	if err != nil {
		return board.Project{}, &board.NetworkError{Op: op, Err: err}
	}
	if !ok {
		return board.Project{}, &board.NetworkError{Op: op, Err: ErrNoData}
	}
	return p, nil
}

// --- Tasks ---

// ListTasks returns every task of a project.
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]board.Task, error) {
	const op = "list tasks"
	env, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/task/getTasks" + path(projectID)})
	if err != nil {
		return nil, err
	}
	tasks, _, err := dataField[[]board.Task](env, "tasks")
	if err != nil {
		return nil, &board.NetworkError{Op: op, Err: err}
	}
	return tasks, nil
}

// GetTask returns the detail view of a task, comments included.
func (c *Client) GetTask(ctx context.Context, taskID string) (board.Task, error) {
	const op = "get task"
	env, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/task/getTask" + path(taskID)})
	if err != nil {
		return board.Task{}, err
	}
	t, ok, err := dataField[board.Task](env, "task")
	if err != nil {
		return board.Task{}, &board.NetworkError{Op: op, Err: err}
	}
	if !ok {
		return board.Task{}, &board.NetworkError{Op: op, Err: ErrNoData}
	}
	return t, nil
}

// TaskActivity returns the audit timeline of a task.
func (c *Client) TaskActivity(ctx context.Context, taskID string) ([]board.TaskActivity, error) {
	const op = "task activity"
	env, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/task/getTaskActivity" + path(taskID)})
	if err != nil {
		return nil, err
	}
	entries, _, err := dataField[[]board.TaskActivity](env, "taskActivity")
	if err != nil {
		return nil, &board.NetworkError{Op: op, Err: err}
	}
	return entries, nil
}

// CreateTask creates a task. Files in the input are uploaded with it.
func (c *Client) CreateTask(ctx context.Context, in board.TaskInput) (board.Task, error) {
	return c.writeTask(ctx, "create task", http.MethodPost, "/task/createTask", in)
}

// EditTask updates a task, uploading in.Files and removing in.DeleteFileNames.
func (c *Client) EditTask(ctx context.Context, in board.TaskInput) (board.Task, error) {
	return c.writeTask(ctx, "edit task", http.MethodPut, "/task/editTask", in)
}

func (c *Client) writeTask(ctx context.Context, op, method, p string, in board.TaskInput) (board.Task, error) {
	env, err := c.do(ctx, request{op: op, method: method, path: p, body: multipartBody(taskFields(in), in.Files, in.DeleteFileNames)})
	if err != nil {
		return board.Task{}, err
	}
	t, _, err := dataField[board.Task](env, "task")
	if err != nil {
		return board.Task{}, &board.NetworkError{Op: op, Err: err}
	}
	return t, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	_, err := c.do(ctx, request{op: "delete task", method: http.MethodDelete, path: "/task/deleteTask" + path(taskID)})
	return err
}

// UpdateTaskStage moves a task to stageID. The returned task is empty when
// the server does not echo it.
func (c *Client) UpdateTaskStage(ctx context.Context, taskID, stageID string) (board.Task, error) {
	const op = "update task status"
	body := jsonBody(map[string]string{"id": taskID, "status": stageID})
	env, err := c.do(ctx, request{op: op, method: http.MethodPut, path: "/task/updateTaskStatus", body: body})
	if err != nil {
		return board.Task{}, err
	}
	t, _, err := dataField[board.Task](env, "task")
	if err != nil {
		return board.Task{}, &board.NetworkError{Op: op, Err: err}
	}
	return t, nil
}

// AddComment posts a comment on a task.
func (c *Client) AddComment(ctx context.Context, taskID, text string) error {
	body := jsonBody(map[string]string{"taskId": taskID, "text": text})
	_, err := c.do(ctx, request{op: "add comment", method: http.MethodPut, path: "/task/addComment", body: body})
	return err
}

// SaveAttachments uploads files and deletes the named attachments in one
// request, returning the task's canonical attachment list. When the response
// carries no list the task is fetched again.
func (c *Client) SaveAttachments(ctx context.Context, taskID string, files []board.PendingFile, deleted []string) ([]board.Attachment, error) {
	const op = "save attachments"
	body := multipartBody([]formField{{"taskId", taskID}}, files, deleted)
	env, err := c.do(ctx, request{op: op, method: http.MethodPut, path: "/task/saveAttachments", body: body})
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"attachments", "task.attachments"} {
		atts, ok, err := dataField[[]board.Attachment](env, key)
		if err != nil {
			return nil, &board.NetworkError{Op: op, Err: err}
		}
		if ok {
			return atts, nil
		}
	}
	t, err := c.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return t.Attachments, nil
}

// --- Notifications ---

// ListNotifications returns the acting user's notifications.
func (c *Client) ListNotifications(ctx context.Context) ([]board.Notification, error) {
	const op = "list notifications"
	env, err := c.do(ctx, request{op: op, method: http.MethodGet, path: "/notifications"})
	if err != nil {
		return nil, err
	}
	list, _, err := dataField[[]board.Notification](env, "notifications")
	if err != nil {
		return nil, &board.NetworkError{Op: op, Err: err}
	}
	return list, nil
}

// MarkNotificationsRead marks every notification of the acting user read.
func (c *Client) MarkNotificationsRead(ctx context.Context) error {
	_, err := c.do(ctx, request{op: "mark notifications read", method: http.MethodPut, path: "/notifications/mark-read"})
	return err
}
