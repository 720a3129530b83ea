package application_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

func TestAttachmentDraft_RemoveConfirmedThenSave(t *testing.T) {
	f := newFixture()
	f.load(t)

	d, err := f.attachments.Open("t2")
	if err != nil {
		t.Fatal(err)
	}
	if err := d.RemoveAt(0); err != nil {
		t.Fatal(err)
	}
	if len(d.Items()) != 1 {
		t.Errorf("rendered items = %d, want 1", len(d.Items()))
	}
	if f.backend.CallCount("SaveAttachments") != 0 {
		t.Fatal("removal must wait for save")
	}

	atts, err := d.Save(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(f.backend.SaveCalls) != 1 {
		t.Fatalf("save calls = %d", len(f.backend.SaveCalls))
	}
	call := f.backend.SaveCalls[0]
	if len(call.Deleted) != 1 || call.Deleted[0] != "f-mine.png" {
		t.Errorf("deleted = %v", call.Deleted)
	}
	if len(call.Files) != 0 {
		t.Errorf("uploads = %v", call.Files)
	}
	if len(atts) != 1 || atts[0].FileName != "f-theirs.png" {
		t.Errorf("canonical list = %+v", atts)
	}
	task, _ := f.store.Get("t2")
	if len(task.Attachments) != 1 {
		t.Errorf("store attachments = %+v", task.Attachments)
	}
	if d.Dirty() || len(d.DeleteSet()) != 0 {
		t.Error("sets should be cleared after save")
	}
}

func TestAttachmentDraft_RemovePendingIsLocal(t *testing.T) {
	f := newFixture()
	f.load(t)
	d, _ := f.attachments.Open("t1")
	before := len(f.backend.Calls)

	if err := d.AddPendingFile(board.PendingFile{Name: "a.png", SizeBytes: 10}); err != nil {
		t.Fatal(err)
	}
	if err := d.RemoveAt(0); err != nil {
		t.Fatal(err)
	}
	if len(d.Items()) != 0 || d.Dirty() {
		t.Error("pending file should be gone")
	}
	if len(f.backend.Calls) != before {
		t.Errorf("backend calls = %v", f.backend.Calls[before:])
	}
	if _, err := d.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.backend.CallCount("SaveAttachments") != 0 {
		t.Error("saving a clean draft must not hit the server")
	}
}

func TestAttachmentDraft_UnauthorizedRemoval(t *testing.T) {
	f := newFixture()
	f.load(t)
	d, _ := f.attachments.Open("t2")

	err := d.RemoveAt(1)
	var authErr *board.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want *board.AuthorizationError", err)
	}
	if authErr.UserID != "me" {
		t.Errorf("user = %q", authErr.UserID)
	}
	if len(d.Items()) != 2 || len(d.DeleteSet()) != 0 || d.Dirty() {
		t.Error("rejected removal must not mutate the draft")
	}
}

func TestAttachmentDraft_ElevatedRoleMayRemove(t *testing.T) {
	f := newFixture()
	f.backend.Project.Members[1].Role = board.RoleManager
	f.load(t)
	d, _ := f.attachments.Open("t2")
	if err := d.RemoveAt(1); err != nil {
		t.Fatalf("manager removal: %v", err)
	}
	if got := d.DeleteSet(); len(got) != 1 || got[0] != "f-theirs.png" {
		t.Errorf("delete set = %v", got)
	}
}

func TestAttachmentDraft_SaveFailureKeepsSets(t *testing.T) {
	f := newFixture()
	f.load(t)
	f.backend.SaveErr = errUnreachable

	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("0123456789"), 0600); err != nil {
		t.Fatal(err)
	}

	d, _ := f.attachments.Open("t2")
	if err := d.AddPending(path); err != nil {
		t.Fatal(err)
	}
	if err := d.RemoveAt(0); err != nil {
		t.Fatal(err)
	}

	if _, err := d.Save(context.Background()); !errors.Is(err, board.ErrNetwork) {
		t.Fatalf("err = %v", err)
	}
	if got := d.PendingFiles(); len(got) != 1 || got[0].Name != "report.pdf" || got[0].SizeBytes != 10 {
		t.Errorf("pending = %+v", got)
	}
	if got := d.DeleteSet(); len(got) != 1 || got[0] != "f-mine.png" {
		t.Errorf("delete set = %v", got)
	}
	task, _ := f.store.Get("t2")
	if len(task.Attachments) != 2 {
		t.Error("store must keep the confirmed list on failure")
	}

	f.backend.SaveErr = nil
	if _, err := d.Save(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	last := f.backend.SaveCalls[len(f.backend.SaveCalls)-1]
	if len(last.Files) != 1 || len(last.Deleted) != 1 {
		t.Errorf("retry call = %+v", last)
	}
}

func TestAttachmentDraft_MaxFiles(t *testing.T) {
	f := newFixture()
	f.load(t)
	d, _ := f.attachments.Open("t2")

	files := []board.PendingFile{{Name: "1"}, {Name: "2"}, {Name: "3"}, {Name: "4"}}
	err := d.AddPendingFile(files...)
	if !errors.Is(err, board.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	if got := len(d.Items()); got != 5 {
		t.Errorf("items = %d, want 5", got)
	}
	if got := d.PendingFiles(); len(got) != 3 || got[2].Name != "3" || got[0].LocalID == "" {
		t.Errorf("pending = %+v", got)
	}
	if err := d.AddPending(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, board.ErrValidation) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestAttachmentDraft_RebaseKeepsLocalEdits(t *testing.T) {
	f := newFixture()
	f.load(t)
	d, _ := f.attachments.Open("t2")
	_ = d.AddPendingFile(board.PendingFile{Name: "new.png"})
	_ = d.RemoveAt(0)

	f.attachments.Rebase("t2", []board.Attachment{
		{FileName: "f-mine.png", UploadedBy: "me"},
		{FileName: "f-extra.png", UploadedBy: "other"},
	})

	items := d.Items()
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	if items[0].DisplayName() != "f-extra.png" || items[1].DisplayName() != "new.png" {
		t.Errorf("items = %s, %s", items[0].DisplayName(), items[1].DisplayName())
	}
	if got := d.DeleteSet(); len(got) != 1 {
		t.Errorf("delete set = %v", got)
	}

	f.attachments.Rebase("t2", []board.Attachment{{FileName: "f-extra.png"}})
	if got := d.DeleteSet(); len(got) != 0 {
		t.Errorf("mark for a vanished file should drop, got %v", got)
	}

	d.Discard()
	f.attachments.Rebase("t2", nil)
	if len(d.Items()) != 1 {
		t.Error("discarded drafts no longer follow pushes")
	}
}
