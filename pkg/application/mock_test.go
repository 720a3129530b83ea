package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/felixgeelhaar/boardsync/pkg/application"
	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

var errUnreachable = errors.New("dial tcp: connection refused")

type saveCall struct {
	TaskID  string
	Files   []board.PendingFile
	Deleted []string
}

// MockBackend is an in-memory server. Hook fields override single calls.
type MockBackend struct {
	mu sync.Mutex

	Config        map[string]board.ProjectConfig
	Tasks         map[string][]board.Task
	Project       board.Project
	Notifications []board.Notification
	Activity      []board.TaskActivity

	ListErr   error
	ConfigErr error
	StagesErr error
	SaveErr   error
	MarkErr   error

	MoveHook    func(ctx context.Context, taskID, stageID string) (board.Task, error)
	StagesHook  func(ctx context.Context, projectID string, stages []board.Stage) (board.ProjectConfig, error)
	CommentHook func(taskID, text string) error
	GetTaskHook func(taskID string) (board.Task, error)

	Calls         []string
	SaveCalls     []saveCall
	StagesUpdates [][]board.Stage
}

func (m *MockBackend) record(call string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
}

func (m *MockBackend) CallCount(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == call {
			n++
		}
	}
	return n
}

func (m *MockBackend) GetProjectConfig(ctx context.Context, projectID string) (board.ProjectConfig, error) {
	m.record("GetProjectConfig")
	if m.ConfigErr != nil {
		return board.ProjectConfig{}, m.ConfigErr
	}
	return m.Config[projectID], nil
}

func (m *MockBackend) UpdateStages(ctx context.Context, projectID string, stages []board.Stage) (board.ProjectConfig, error) {
	m.record("UpdateStages")
	m.mu.Lock()
	m.StagesUpdates = append(m.StagesUpdates, append([]board.Stage(nil), stages...))
	m.mu.Unlock()
	if m.StagesHook != nil {
		return m.StagesHook(ctx, projectID, stages)
	}
	if m.StagesErr != nil {
		return board.ProjectConfig{}, m.StagesErr
	}
	cfg := board.ProjectConfig{ProjectID: projectID, Stages: stages}
	m.Config[projectID] = cfg
	return cfg, nil
}

func (m *MockBackend) GetProject(ctx context.Context, projectID string) (board.Project, error) {
	m.record("GetProject")
	return m.Project, nil
}

func (m *MockBackend) ListTasks(ctx context.Context, projectID string) ([]board.Task, error) {
	m.record("ListTasks")
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]board.Task, 0, len(m.Tasks[projectID]))
	for _, t := range m.Tasks[projectID] {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (m *MockBackend) GetTask(ctx context.Context, taskID string) (board.Task, error) {
	m.record("GetTask")
	if m.GetTaskHook != nil {
		return m.GetTaskHook(taskID)
	}
	for _, tasks := range m.Tasks {
		for _, t := range tasks {
			if t.ID == taskID {
				return t.Clone(), nil
			}
		}
	}
	return board.Task{}, &board.ConflictError{Op: "get task", Resource: taskID, Reason: "not found"}
}

func (m *MockBackend) TaskActivity(ctx context.Context, taskID string) ([]board.TaskActivity, error) {
	m.record("TaskActivity")
	return m.Activity, nil
}

func (m *MockBackend) CreateTask(ctx context.Context, in board.TaskInput) (board.Task, error) {
	m.record("CreateTask")
	return board.Task{ID: "new-task", ProjectID: in.ProjectID, Title: in.Title, StageID: in.StageID, Priority: in.Priority}, nil
}

func (m *MockBackend) EditTask(ctx context.Context, in board.TaskInput) (board.Task, error) {
	m.record("EditTask")
	return board.Task{ID: in.ID, ProjectID: in.ProjectID, Title: in.Title, StageID: in.StageID}, nil
}

func (m *MockBackend) DeleteTask(ctx context.Context, taskID string) error {
	m.record("DeleteTask")
	return nil
}

func (m *MockBackend) UpdateTaskStage(ctx context.Context, taskID, stageID string) (board.Task, error) {
	m.record("UpdateTaskStage")
	if m.MoveHook != nil {
		return m.MoveHook(ctx, taskID, stageID)
	}
	return m.echo(taskID, stageID), nil
}

// echo returns the stored task as the server would after a stage change.
func (m *MockBackend) echo(taskID, stageID string) board.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tasks := range m.Tasks {
		for _, t := range tasks {
			if t.ID == taskID {
				out := t.Clone()
				out.StageID = stageID
				return out
			}
		}
	}
	return board.Task{ID: taskID, ProjectID: "p1", StageID: stageID}
}

func (m *MockBackend) AddComment(ctx context.Context, taskID, text string) error {
	m.record("AddComment")
	if m.CommentHook != nil {
		return m.CommentHook(taskID, text)
	}
	return nil
}

func (m *MockBackend) SaveAttachments(ctx context.Context, taskID string, files []board.PendingFile, deleted []string) ([]board.Attachment, error) {
	m.record("SaveAttachments")
	m.mu.Lock()
	m.SaveCalls = append(m.SaveCalls, saveCall{TaskID: taskID, Files: files, Deleted: deleted})
	m.mu.Unlock()
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	gone := make(map[string]bool)
	for _, d := range deleted {
		gone[d] = true
	}
	var out []board.Attachment
	for _, t := range m.Tasks["p1"] {
		if t.ID != taskID {
			continue
		}
		for _, a := range t.Attachments {
			if !gone[a.DeletionKey()] {
				out = append(out, a)
			}
		}
	}
	for _, f := range files {
		out = append(out, board.Attachment{FileName: "srv-" + f.Name, OriginalName: f.Name, SizeBytes: f.SizeBytes, UploadedBy: "me"})
	}
	return out, nil
}

func (m *MockBackend) ListNotifications(ctx context.Context) ([]board.Notification, error) {
	m.record("ListNotifications")
	return append([]board.Notification(nil), m.Notifications...), nil
}

func (m *MockBackend) MarkNotificationsRead(ctx context.Context) error {
	m.record("MarkNotificationsRead")
	return m.MarkErr
}

// fixture wires the services against one project with stages
// Todo, Doing, Done and two tasks in Todo.
type fixture struct {
	backend     *MockBackend
	store       *storage.BoardStore
	registry    *storage.StageRegistry
	notices     *application.NoticeLog
	pipeline    *application.Pipeline
	stages      *application.StageService
	tasks       *application.TaskService
	members     *application.MembershipService
	attachments *application.AttachmentService
	feed        *application.NotificationFeed
	merger      *application.EventMerger
}

func defaultStages() []board.Stage {
	return []board.Stage{
		{ID: "todo", Name: "Todo", Order: 1, IsActive: true, IsEditable: true},
		{ID: "doing", Name: "Doing", Order: 2, IsActive: true, IsEditable: true},
		{ID: "done", Name: "Done", Order: 3, IsActive: true, IsEditable: true},
	}
}

func newFixture() *fixture {
	backend := &MockBackend{
		Config: map[string]board.ProjectConfig{"p1": {ProjectID: "p1", Stages: defaultStages()}},
		Tasks: map[string][]board.Task{"p1": {
			{ID: "t1", ProjectID: "p1", Title: "Login", StageID: "todo", Comments: []board.Comment{{ID: "c1", Text: "first"}}},
			{ID: "t2", ProjectID: "p1", Title: "Signup", StageID: "todo", Attachments: []board.Attachment{
				{FileName: "f-mine.png", OriginalName: "mine.png", UploadedBy: "me"},
				{FileName: "f-theirs.png", OriginalName: "theirs.png", UploadedBy: "other"},
			}},
		}},
		Project: board.Project{ID: "p1", Members: []board.ProjectMember{
			{User: board.UserRef{ID: "boss"}, Role: board.RoleOwner},
			{User: board.UserRef{ID: "me"}, Role: board.RoleDeveloper},
			{User: board.UserRef{ID: "other"}, Role: board.RoleDeveloper},
		}},
	}
	f := &fixture{
		backend:  backend,
		store:    storage.NewBoardStore(),
		registry: storage.NewStageRegistry(),
		notices:  application.NewNoticeLog(50),
	}
	session := application.StaticSession("me")
	f.pipeline = application.NewPipeline(f.notices, nil)
	f.stages = application.NewStageService(backend, f.registry, f.pipeline, nil)
	f.members = application.NewMembershipService(backend, session, nil)
	f.tasks = application.NewTaskService(backend, f.store, f.stages, f.registry, f.members, f.pipeline, nil)
	f.attachments = application.NewAttachmentService(backend, f.store, f.pipeline, session, f.members, 0, nil)
	f.feed = application.NewNotificationFeed(backend, f.pipeline, nil)
	f.merger = application.NewEventMerger(f.store, f.attachments, f.feed, nil)
	return f
}

func (f *fixture) load(t *testing.T) {
	t.Helper()
	if _, err := f.tasks.LoadBoard(context.Background(), "p1"); err != nil {
		t.Fatalf("LoadBoard: %v", err)
	}
	if _, err := f.members.Load(context.Background(), "p1"); err != nil {
		t.Fatalf("members: %v", err)
	}
}

func (f *fixture) errorNotices() int {
	n := 0
	for _, x := range f.notices.Recent() {
		if x.Level == application.NoticeError {
			n++
		}
	}
	return n
}
