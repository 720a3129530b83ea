package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

// Backend is the server port. Implementations return the typed errors of
// package board; anything else is treated as a network failure.
type Backend interface {
	GetProjectConfig(ctx context.Context, projectID string) (board.ProjectConfig, error)
	UpdateStages(ctx context.Context, projectID string, stages []board.Stage) (board.ProjectConfig, error)
	GetProject(ctx context.Context, projectID string) (board.Project, error)

	ListTasks(ctx context.Context, projectID string) ([]board.Task, error)
	GetTask(ctx context.Context, taskID string) (board.Task, error)
	TaskActivity(ctx context.Context, taskID string) ([]board.TaskActivity, error)
	CreateTask(ctx context.Context, in board.TaskInput) (board.Task, error)
	EditTask(ctx context.Context, in board.TaskInput) (board.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	UpdateTaskStage(ctx context.Context, taskID, stageID string) (board.Task, error)
	AddComment(ctx context.Context, taskID, text string) error
	SaveAttachments(ctx context.Context, taskID string, files []board.PendingFile, deleted []string) ([]board.Attachment, error)

	ListNotifications(ctx context.Context) ([]board.Notification, error)
	MarkNotificationsRead(ctx context.Context) error
}

// Session identifies the acting user.
type Session interface {
	UserID() string
}

// StaticSession is a Session with a fixed user id.
type StaticSession string

func (s StaticSession) UserID() string { return string(s) }

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a user-facing outcome of an operation.
type Notice struct {
	ID        string
	Level     NoticeLevel
	Operation string
	Message   string
	Err       error
	At        time.Time
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if n.Level == NoticeError {
		logger.Error(n.Message, "op", n.Operation, "error", n.Err)
		return
	}
	logger.Info(n.Message, "op", n.Operation)
}

// NoticeLog keeps the most recent notices for display.
type NoticeLog struct {
	mu      sync.Mutex
	limit   int
	notices []Notice
}

func NewNoticeLog(limit int) *NoticeLog {
	if limit <= 0 {
		limit = 20
	}
	return &NoticeLog{limit: limit}
}

func (l *NoticeLog) Notify(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
	if len(l.notices) > l.limit {
		l.notices = l.notices[len(l.notices)-l.limit:]
	}
}

// Recent returns the retained notices, oldest first.
func (l *NoticeLog) Recent() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.notices...)
}

// Last returns the newest notice.
func (l *NoticeLog) Last() (Notice, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.notices) == 0 {
		return Notice{}, false
	}
	return l.notices[len(l.notices)-1], true
}

// MultiNotifier fans notices out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(n Notice) {
	for _, x := range m {
		if x != nil {
			x.Notify(n)
		}
	}
}
