package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

// DefaultMaxFiles caps the attachments a task can hold in one draft.
const DefaultMaxFiles = 5

// AttachmentService opens attachment drafts and keeps open drafts in step
// with pushed attachment updates.
type AttachmentService struct {
	backend  Backend
	store    *storage.BoardStore
	pipeline *Pipeline
	session  Session
	members  *MembershipService
	maxFiles int
	logger   *slog.Logger

	mu     sync.Mutex
	drafts map[string]map[*AttachmentDraft]struct{}
}

func NewAttachmentService(backend Backend, store *storage.BoardStore, pipeline *Pipeline, session Session, members *MembershipService, maxFiles int, logger *slog.Logger) *AttachmentService {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	return &AttachmentService{
		backend:  backend,
		store:    store,
		pipeline: pipeline,
		session:  session,
		members:  members,
		maxFiles: maxFiles,
		logger:   logger,
		drafts:   make(map[string]map[*AttachmentDraft]struct{}),
	}
}

// Open starts a draft seeded from the task's confirmed attachments.
func (s *AttachmentService) Open(taskID string) (*AttachmentDraft, error) {
	task, ok := s.store.Get(taskID)
	if !ok {
		return nil, fmt.Errorf("open attachments: %w: %s", board.ErrTaskNotFound, taskID)
	}
	d := &AttachmentDraft{
		svc:       s,
		taskID:    taskID,
		projectID: task.ProjectID,
		confirmed: append([]board.Attachment(nil), task.Attachments...),
		deleted:   make(map[string]bool),
	}
	s.mu.Lock()
	if s.drafts[taskID] == nil {
		s.drafts[taskID] = make(map[*AttachmentDraft]struct{})
	}
	s.drafts[taskID][d] = struct{}{}
	s.mu.Unlock()
	return d, nil
}

// Rebase refreshes the confirmed list of every open draft of taskID.
func (s *AttachmentService) Rebase(taskID string, attachments []board.Attachment) {
	s.mu.Lock()
	open := make([]*AttachmentDraft, 0, len(s.drafts[taskID]))
	for d := range s.drafts[taskID] {
		open = append(open, d)
	}
	s.mu.Unlock()

	for _, d := range open {
		d.Rebase(attachments)
	}
}

func (s *AttachmentService) close(d *AttachmentDraft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts[d.taskID], d)
	if len(s.drafts[d.taskID]) == 0 {
		delete(s.drafts, d.taskID)
	}
}

// canDelete reports whether the acting user may remove a. Uploaders may
// always remove their own files; otherwise an owner or manager role is
// required. When the role is unknown the server decides.
func (s *AttachmentService) canDelete(projectID string, a board.Attachment) error {
	userID := ""
	if s.session != nil {
		userID = s.session.UserID()
	}
	if a.UploadedByUser(userID) {
		return nil
	}
	if s.members == nil {
		return nil
	}
	role, known := s.members.CurrentRole(projectID)
	if !known || role.Elevated() {
		return nil
	}
	return &board.AuthorizationError{
		Op:     "remove attachment",
		UserID: userID,
		Reason: fmt.Sprintf("only the uploader or a project owner or manager may remove %q", a.DisplayName()),
	}
}

// AttachmentDraft is the editable attachment list of one task: confirmed
// attachments, pending local files and the names marked for deletion.
// Nothing reaches the server until Save.
type AttachmentDraft struct {
	svc       *AttachmentService
	taskID    string
	projectID string

	mu        sync.Mutex
	confirmed []board.Attachment
	pending   []board.PendingFile
	deleted   map[string]bool
	order     []string
}

func (d *AttachmentDraft) TaskID() string { return d.taskID }

// Items returns the rendered list: visible confirmed attachments followed by
// pending files.
func (d *AttachmentDraft) Items() []board.AttachmentItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.itemsLocked()
}

func (d *AttachmentDraft) itemsLocked() []board.AttachmentItem {
	items := make([]board.AttachmentItem, 0, len(d.confirmed)+len(d.pending))
	for _, a := range d.confirmed {
		if !d.deleted[a.DeletionKey()] {
			items = append(items, a)
		}
	}
	for _, p := range d.pending {
		items = append(items, p)
	}
	return items
}

// AddPending stats a local file and adds it as pending.
func (d *AttachmentDraft) AddPending(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &board.ValidationError{Op: "add attachment", Field: "path", Reason: "cannot read file", Err: err}
	}
	if info.IsDir() {
		return &board.ValidationError{Op: "add attachment", Field: "path", Reason: path + " is a directory"}
	}
	return d.AddPendingFile(board.PendingFile{Path: path, Name: filepath.Base(path), SizeBytes: info.Size()})
}

// AddPendingFile appends files while room remains under the file limit. Files
// beyond the limit are ignored and reported as a validation error.
func (d *AttachmentDraft) AddPendingFile(files ...board.PendingFile) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	room := d.svc.maxFiles - len(d.itemsLocked())
	if room < 0 {
		room = 0
	}
	accepted := files
	if len(files) > room {
		accepted = files[:room]
	}
	for _, f := range accepted {
		if f.LocalID == "" {
			f.LocalID = uuid.New().String()
		}
		if f.Name == "" {
			f.Name = filepath.Base(f.Path)
		}
		d.pending = append(d.pending, f)
	}
	if ignored := len(files) - len(accepted); ignored > 0 {
		return &board.ValidationError{
			Op:     "add attachment",
			Field:  "files",
			Reason: fmt.Sprintf("at most %d files allowed, %d ignored", d.svc.maxFiles, ignored),
		}
	}
	return nil
}

// RemoveAt removes the item at index of Items. Pending files are dropped
// locally. Confirmed attachments are checked for permission and marked for
// deletion on the next Save.
func (d *AttachmentDraft) RemoveAt(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	items := d.itemsLocked()
	if index < 0 || index >= len(items) {
		return &board.ValidationError{Op: "remove attachment", Field: "index", Reason: fmt.Sprintf("must be within 0..%d", len(items)-1)}
	}

	switch it := items[index].(type) {
	case board.PendingFile:
		for i, p := range d.pending {
			if p.LocalID == it.LocalID {
				d.pending = append(d.pending[:i:i], d.pending[i+1:]...)
				break
			}
		}
	case board.Attachment:
		if err := d.svc.canDelete(d.projectID, it); err != nil {
			return err
		}
		key := it.DeletionKey()
		if !d.deleted[key] {
			d.deleted[key] = true
			d.order = append(d.order, key)
		}
	}
	return nil
}

// DeleteSet returns the names marked for deletion, in marking order.
func (d *AttachmentDraft) DeleteSet() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

func (d *AttachmentDraft) PendingFiles() []board.PendingFile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]board.PendingFile(nil), d.pending...)
}

// Dirty reports whether Save has anything to send.
func (d *AttachmentDraft) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) > 0 || len(d.order) > 0
}

// Save sends every pending file and the whole deletion set in one request.
// On success the canonical list replaces the task's attachments and the
// submitted items leave both sets. On failure both sets are kept for retry.
func (d *AttachmentDraft) Save(ctx context.Context) ([]board.Attachment, error) {
	d.mu.Lock()
	files := append([]board.PendingFile(nil), d.pending...)
	deleted := append([]string(nil), d.order...)
	d.mu.Unlock()

	if len(files) == 0 && len(deleted) == 0 {
		d.mu.Lock()
		defer d.mu.Unlock()
		return append([]board.Attachment(nil), d.confirmed...), nil
	}

	svc := d.svc
	atts, err := Execute(ctx, svc.pipeline, Mutation[[]board.Attachment]{
		Op:  "save attachments",
		Key: "task/" + d.taskID + "/attachments",
		Remote: func(ctx context.Context) ([]board.Attachment, error) {
			return svc.backend.SaveAttachments(ctx, d.taskID, files, deleted)
		},
		Reconcile: func(atts []board.Attachment) {
			if err := svc.store.SetAttachments(d.taskID, atts); err != nil {
				svc.logger.Warn("apply saved attachments", "task", d.taskID, "error", err)
			}
		},
		Success: "Attachments saved",
	})
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmed = append([]board.Attachment(nil), atts...)
	sent := make(map[string]bool, len(files))
	for _, f := range files {
		sent[f.LocalID] = true
	}
	kept := d.pending[:0:0]
	for _, p := range d.pending {
		if !sent[p.LocalID] {
			kept = append(kept, p)
		}
	}
	d.pending = kept
	for _, key := range deleted {
		delete(d.deleted, key)
	}
	d.order = d.liveOrderLocked()
	return append([]board.Attachment(nil), atts...), nil
}

// Rebase swaps in a fresh confirmed list. Pending files survive, and so do
// deletion marks for attachments that still exist.
func (d *AttachmentDraft) Rebase(attachments []board.Attachment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmed = append([]board.Attachment(nil), attachments...)
	present := make(map[string]bool, len(attachments))
	for _, a := range attachments {
		present[a.DeletionKey()] = true
	}
	for key := range d.deleted {
		if !present[key] {
			delete(d.deleted, key)
		}
	}
	d.order = d.liveOrderLocked()
}

func (d *AttachmentDraft) liveOrderLocked() []string {
	var out []string
	for _, key := range d.order {
		if d.deleted[key] {
			out = append(out, key)
		}
	}
	return out
}

// Discard drops the draft's pending files and deletion marks and detaches it
// from push updates.
func (d *AttachmentDraft) Discard() {
	d.mu.Lock()
	d.pending = nil
	d.deleted = make(map[string]bool)
	d.order = nil
	d.mu.Unlock()
	d.svc.close(d)
}
