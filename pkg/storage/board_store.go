package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

type taskEntry struct {
	task board.Task
	seq  int
}

// BoardStore is the normalized in-memory cache of tasks: exactly one record per
// task id. Stage columns are derived on every read rather than stored, so a
// stage move is a single write. Reads return copies.
type BoardStore struct {
	mu    sync.RWMutex
	tasks map[string]*taskEntry
	seq   int
	obs   observers
}

func NewBoardStore() *BoardStore {
	return &BoardStore{tasks: make(map[string]*taskEntry)}
}

// Subscribe registers fn for every committed change. fn runs after the store
// lock is released and may read from the store.
func (s *BoardStore) Subscribe(fn func(Change)) (unsubscribe func()) {
	return s.obs.subscribe(fn)
}

// LoadProject replaces the cached task set of projectID with tasks, in the
// given order.
func (s *BoardStore) LoadProject(projectID string, tasks []board.Task) {
	s.mu.Lock()
	for id, e := range s.tasks {
		if e.task.ProjectID == projectID {
			delete(s.tasks, id)
		}
	}
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		c := t.Clone()
		if c.ProjectID == "" {
			c.ProjectID = projectID
		}
		s.seq++
		s.tasks[c.ID] = &taskEntry{task: c, seq: s.seq}
	}
	s.mu.Unlock()

	s.obs.notify(Change{Kind: ChangeLoaded, ProjectID: projectID})
}

// Upsert stores the canonical version of a task. Existing tasks keep their
// position.
func (s *BoardStore) Upsert(t board.Task) error {
	if t.ID == "" {
		return fmt.Errorf("upsert task: empty id")
	}
	s.mu.Lock()
	if e, ok := s.tasks[t.ID]; ok {
		e.task = t.Clone()
	} else {
		s.seq++
		s.tasks[t.ID] = &taskEntry{task: t.Clone(), seq: s.seq}
	}
	s.mu.Unlock()

	s.obs.notify(Change{Kind: ChangeUpserted, ProjectID: t.ProjectID, TaskID: t.ID})
	return nil
}

// Remove drops a task. It reports whether the task was cached.
func (s *BoardStore) Remove(taskID string) bool {
	s.mu.Lock()
	e, ok := s.tasks[taskID]
	if ok {
		delete(s.tasks, taskID)
	}
	s.mu.Unlock()

	if ok {
		s.obs.notify(Change{Kind: ChangeRemoved, ProjectID: e.task.ProjectID, TaskID: taskID})
	}
	return ok
}

func (s *BoardStore) Get(taskID string) (board.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tasks[taskID]
	if !ok {
		return board.Task{}, false
	}
	return e.task.Clone(), true
}

// Tasks returns the cached tasks of a project in load order.
func (s *BoardStore) Tasks(projectID string) []board.Task {
	return s.collect(func(t board.Task) bool { return t.ProjectID == projectID })
}

// TasksByStage returns the tasks whose stage reference is stageID.
func (s *BoardStore) TasksByStage(stageID string) []board.Task {
	return s.collect(func(t board.Task) bool { return t.StageID == stageID })
}

// Filter returns the tasks of projectID that pass f.
func (s *BoardStore) Filter(projectID string, f board.TaskFilter) []board.Task {
	return s.collect(func(t board.Task) bool { return t.ProjectID == projectID && f.Match(t) })
}

func (s *BoardStore) collect(keep func(board.Task) bool) []board.Task {
	s.mu.RLock()
	entries := make([]*taskEntry, 0, len(s.tasks))
	for _, e := range s.tasks {
		if keep(e.task) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]board.Task, len(entries))
	for i, e := range entries {
		out[i] = e.task.Clone()
	}
	s.mu.RUnlock()
	return out
}

// SetStage points a task at stageID and returns the previous stage id.
func (s *BoardStore) SetStage(taskID, stageID string) (string, error) {
	s.mu.Lock()
	e, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", board.ErrTaskNotFound, taskID)
	}
	prev := e.task.StageID
	e.task.StageID = stageID
	projectID := e.task.ProjectID
	s.mu.Unlock()

	if prev != stageID {
		s.obs.notify(Change{Kind: ChangeStage, ProjectID: projectID, TaskID: taskID})
	}
	return prev, nil
}

// MergeComments appends comments the task does not already hold, deduplicated
// by comment id. It returns how many were added.
func (s *BoardStore) MergeComments(taskID string, comments ...board.Comment) (int, error) {
	s.mu.Lock()
	e, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", board.ErrTaskNotFound, taskID)
	}
	var added int
	e.task.Comments, added = board.MergeByIdentity(e.task.Comments, comments...)
	projectID := e.task.ProjectID
	s.mu.Unlock()

	if added > 0 {
		s.obs.notify(Change{Kind: ChangeComments, ProjectID: projectID, TaskID: taskID})
	}
	return added, nil
}

// SetAttachments replaces a task's confirmed attachment list.
func (s *BoardStore) SetAttachments(taskID string, attachments []board.Attachment) error {
	s.mu.Lock()
	e, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", board.ErrTaskNotFound, taskID)
	}
	e.task.Attachments = append([]board.Attachment(nil), attachments...)
	projectID := e.task.ProjectID
	s.mu.Unlock()

	s.obs.notify(Change{Kind: ChangeAttachments, ProjectID: projectID, TaskID: taskID})
	return nil
}
