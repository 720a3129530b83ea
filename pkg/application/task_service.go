package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

// Column is one active stage with the tasks currently in it.
type Column struct {
	Stage board.Stage
	Tasks []board.Task
}

// TaskService loads boards and runs task mutations through the pipeline.
type TaskService struct {
	backend  Backend
	store    *storage.BoardStore
	stages   *StageService
	registry *storage.StageRegistry
	members  *MembershipService
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewTaskService wires the task operations. members may be nil, in which case
// assignees are left for the server to check.
func NewTaskService(backend Backend, store *storage.BoardStore, stages *StageService, registry *storage.StageRegistry, members *MembershipService, pipeline *Pipeline, logger *slog.Logger) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{
		backend:  backend,
		store:    store,
		stages:   stages,
		registry: registry,
		members:  members,
		pipeline: pipeline,
		logger:   logger,
	}
}

func moveKey(taskID string) string { return "task/" + taskID + "/stage" }

// LoadBoard fetches the stage pipeline and task set of a project. Any failure
// is fatal for the board and returned as *board.BoardUnavailableError.
func (s *TaskService) LoadBoard(ctx context.Context, projectID string) ([]Column, error) {
	if err := s.Refresh(ctx, projectID); err != nil {
		return nil, &board.BoardUnavailableError{ProjectID: projectID, Err: err}
	}
	return s.Columns(projectID, board.TaskFilter{})
}

// Refresh replaces the cached stages and tasks of a project with a fresh
// server snapshot. Tasks with a stage move still in flight keep their local
// stage until that move settles.
func (s *TaskService) Refresh(ctx context.Context, projectID string) error {
	if _, err := s.stages.Load(ctx, projectID); err != nil {
		return err
	}
	tasks, err := s.backend.ListTasks(ctx, projectID)
	if err != nil {
		return classify("load tasks", err)
	}
	for i := range tasks {
		s.keepPendingStage(&tasks[i])
	}
	s.store.LoadProject(projectID, tasks)
	s.logger.Debug("board refreshed", "project", projectID, "tasks", len(tasks))
	return nil
}

func (s *TaskService) keepPendingStage(t *board.Task) {
	if s.pipeline.InFlight(moveKey(t.ID)) == 0 {
		return
	}
	if local, ok := s.store.Get(t.ID); ok {
		t.StageID = local.StageID
	}
}

// Columns derives the board view: one column per active stage in order.
func (s *TaskService) Columns(projectID string, f board.TaskFilter) ([]Column, error) {
	stages, err := s.registry.Stages(projectID)
	if err != nil {
		return nil, err
	}
	active := board.ActiveStages(stages)
	cols := make([]Column, 0, len(active))
	for _, st := range active {
		f.StageID = st.ID
		cols = append(cols, Column{Stage: st, Tasks: s.store.Filter(projectID, f)})
	}
	return cols, nil
}

// MoveTask moves a task to another stage optimistically. Moving to the stage
// the task is already in does nothing.
func (s *TaskService) MoveTask(ctx context.Context, taskID, stageID string) (board.Task, error) {
	const op = "move task"
	task, ok := s.store.Get(taskID)
	if !ok {
		return board.Task{}, fmt.Errorf("%s: %w: %s", op, board.ErrTaskNotFound, taskID)
	}
	if task.StageID == stageID {
		return task, nil
	}

	validate := func() error {
		stage, err := s.registry.Lookup(task.ProjectID, stageID)
		if err != nil {
			return &board.ValidationError{Op: op, Field: "stage", Reason: "unknown stage " + stageID, Err: err}
		}
		if !stage.IsActive {
			return &board.ValidationError{Op: op, Field: "stage", Reason: fmt.Sprintf("stage %q is inactive", stage.Name)}
		}
		return nil
	}

	return Execute(ctx, s.pipeline, Mutation[board.Task]{
		Op:       op,
		Key:      moveKey(taskID),
		Validate: validate,
		Snapshot: func() func() {
			prev, _ := s.store.Get(taskID)
			return func() { _, _ = s.store.SetStage(taskID, prev.StageID) }
		},
		Apply: func() { _, _ = s.store.SetStage(taskID, stageID) },
		Remote: func(ctx context.Context) (board.Task, error) {
			return s.backend.UpdateTaskStage(ctx, taskID, stageID)
		},
		Reconcile: func(t board.Task) {
			if t.ID == "" {
				_, _ = s.store.SetStage(taskID, stageID)
				return
			}
			s.upsertIfIdentified(t, task.ProjectID)
		},
		Refresh: func(ctx context.Context) error { return s.Refresh(ctx, task.ProjectID) },
		Success: "Task status updated",
	})
}

// CreateTask creates a task. It appears on the board only once confirmed.
func (s *TaskService) CreateTask(ctx context.Context, in board.TaskInput) (board.Task, error) {
	const op = "create task"
	return Execute(ctx, s.pipeline, Mutation[board.Task]{
		Op:        op,
		Validate:  func() error { return s.validateInput(op, in) },
		Remote:    func(ctx context.Context) (board.Task, error) { return s.backend.CreateTask(ctx, in) },
		Reconcile: func(t board.Task) { s.upsertIfIdentified(t, in.ProjectID) },
		Refresh:   func(ctx context.Context) error { return s.Refresh(ctx, in.ProjectID) },
		Success:   "Task created",
	})
}

// EditTask updates task fields and applies the confirmed result.
func (s *TaskService) EditTask(ctx context.Context, in board.TaskInput) (board.Task, error) {
	const op = "edit task"
	validate := func() error {
		if in.ID == "" {
			return &board.ValidationError{Op: op, Field: "id", Reason: "required"}
		}
		if _, ok := s.store.Get(in.ID); !ok {
			return &board.ValidationError{Op: op, Field: "id", Reason: "task not loaded", Err: board.ErrTaskNotFound}
		}
		return s.validateInput(op, in)
	}
	return Execute(ctx, s.pipeline, Mutation[board.Task]{
		Op:        op,
		Validate:  validate,
		Remote:    func(ctx context.Context) (board.Task, error) { return s.backend.EditTask(ctx, in) },
		Reconcile: func(t board.Task) { s.upsertIfIdentified(t, in.ProjectID) },
		Refresh:   func(ctx context.Context) error { return s.Refresh(ctx, in.ProjectID) },
		Success:   "Task updated",
	})
}

// DeleteTask removes a task once the server confirms.
func (s *TaskService) DeleteTask(ctx context.Context, taskID string) error {
	const op = "delete task"
	task, ok := s.store.Get(taskID)
	if !ok {
		return fmt.Errorf("%s: %w: %s", op, board.ErrTaskNotFound, taskID)
	}
	_, err := Execute(ctx, s.pipeline, Mutation[struct{}]{
		Op: op,
		Remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.DeleteTask(ctx, taskID)
		},
		Reconcile: func(struct{}) { s.store.Remove(taskID) },
		Refresh:   func(ctx context.Context) error { return s.Refresh(ctx, task.ProjectID) },
		Success:   "Task deleted",
	})
	return err
}

// OpenTask fetches the detail view of a task and merges it into the cache.
// Comments already delivered by the push channel are kept.
func (s *TaskService) OpenTask(ctx context.Context, taskID string) (board.Task, error) {
	t, err := s.backend.GetTask(ctx, taskID)
	if err != nil {
		return board.Task{}, classify("open task", err)
	}
	s.keepPendingStage(&t)
	s.upsertKeepingComments(t)
	got, _ := s.store.Get(taskID)
	return got, nil
}

// AddComment posts a comment. The comment itself arrives through the push
// channel or the follow-up fetch, whichever comes first; both are deduplicated
// by id.
func (s *TaskService) AddComment(ctx context.Context, taskID, text string) error {
	const op = "add comment"
	text = strings.TrimSpace(text)
	_, err := Execute(ctx, s.pipeline, Mutation[struct{}]{
		Op: op,
		Validate: func() error {
			if text == "" {
				return &board.ValidationError{Op: op, Field: "text", Reason: "must not be empty"}
			}
			if _, ok := s.store.Get(taskID); !ok {
				return &board.ValidationError{Op: op, Field: "task", Reason: "task not loaded", Err: board.ErrTaskNotFound}
			}
			return nil
		},
		Remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.AddComment(ctx, taskID, text)
		},
		Success: "Comment added",
	})
	if err != nil {
		return err
	}
	if fresh, ferr := s.backend.GetTask(ctx, taskID); ferr != nil {
		s.logger.Warn("fetch after comment failed", "task", taskID, "error", ferr)
	} else if _, merr := s.store.MergeComments(taskID, fresh.Comments...); merr != nil {
		s.logger.Warn("merge comments failed", "task", taskID, "error", merr)
	}
	return nil
}

// Activity returns the audit timeline of a task.
func (s *TaskService) Activity(ctx context.Context, taskID string) ([]board.TaskActivity, error) {
	entries, err := s.backend.TaskActivity(ctx, taskID)
	if err != nil {
		return nil, classify("task activity", err)
	}
	return entries, nil
}

// Task returns the cached task.
func (s *TaskService) Task(taskID string) (board.Task, bool) {
	return s.store.Get(taskID)
}

func (s *TaskService) upsertKeepingComments(t board.Task) {
	if local, ok := s.store.Get(t.ID); ok {
		t.Comments, _ = board.MergeByIdentity(t.Comments, local.Comments...)
	}
	if err := s.store.Upsert(t); err != nil {
		s.logger.Warn("upsert task failed", "task", t.ID, "error", err)
	}
}

func (s *TaskService) upsertIfIdentified(t board.Task, projectID string) {
	if t.ID == "" {
		s.logger.Debug("server returned no task body", "project", projectID)
		return
	}
	if t.ProjectID == "" {
		t.ProjectID = projectID
	}
	s.upsertKeepingComments(t)
}

func (s *TaskService) validateInput(op string, in board.TaskInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return &board.ValidationError{Op: op, Field: "title", Reason: "must not be empty"}
	}
	if in.ProjectID == "" {
		return &board.ValidationError{Op: op, Field: "projectId", Reason: "required"}
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return &board.ValidationError{Op: op, Field: "priority", Reason: fmt.Sprintf("unknown priority %q", in.Priority)}
	}
	if in.StageID != "" {
		if _, err := s.registry.Lookup(in.ProjectID, in.StageID); err != nil {
			return &board.ValidationError{Op: op, Field: "status", Reason: "unknown stage " + in.StageID, Err: err}
		}
	}
	return s.checkAssignee(op, in)
}

// checkAssignee rejects assignees outside the project's assignable members.
// It only applies once the member list is loaded, and an unchanged assignee
// of an existing task is always accepted.
func (s *TaskService) checkAssignee(op string, in board.TaskInput) error {
	if in.AssigneeID == "" || s.members == nil || len(s.members.Members(in.ProjectID)) == 0 {
		return nil
	}
	if cur, ok := s.store.Get(in.ID); ok && in.ID != "" && cur.Assignee != nil && cur.Assignee.ID == in.AssigneeID {
		return nil
	}
	for _, u := range s.members.AssignableMembers(in.ProjectID) {
		if u.ID == in.AssigneeID {
			return nil
		}
	}
	return &board.ValidationError{Op: op, Field: "assignee", Reason: fmt.Sprintf("user %s cannot be assigned in this project", in.AssigneeID)}
}
