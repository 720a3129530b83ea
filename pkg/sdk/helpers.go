package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

// bodyFunc builds a request body and its content type.
type bodyFunc func() (io.Reader, string, error)

type formField struct {
	name  string
	value string
}

func jsonBody(v any) bodyFunc {
	return func() (io.Reader, string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(b), "application/json", nil
	}
}

// multipartBody encodes fields, uploads files under "attachments" and lists
// deleted file names under "deletedFilenames[]".
func multipartBody(fields []formField, files []board.PendingFile, deleted []string) bodyFunc {
	return func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, f := range fields {
			if err := w.WriteField(f.name, f.value); err != nil {
				return nil, "", err
			}
		}
		for _, pf := range files {
			if err := writeFile(w, pf); err != nil {
				return nil, "", err
			}
		}
		for _, name := range deleted {
			if err := w.WriteField("deletedFilenames[]", name); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	}
}

func writeFile(w *multipart.Writer, pf board.PendingFile) error {
	f, err := os.Open(pf.Path)
	if err != nil {
		return &board.ValidationError{Op: "upload file", Field: "attachments", Reason: "cannot read " + pf.DisplayName(), Err: err}
	}
	defer f.Close()

	name := pf.Name
	if name == "" {
		name = filepath.Base(pf.Path)
	}
	part, err := w.CreateFormFile("attachments", name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// taskFields maps a task input onto the form the task endpoints expect.
func taskFields(in board.TaskInput) []formField {
	var fields []formField
	if in.ProjectID != "" {
		fields = append(fields, formField{"projectId", in.ProjectID})
	}
	if in.ID != "" {
		fields = append(fields, formField{"_id", in.ID})
	}
	due := ""
	if in.DueDate != nil {
		due = in.DueDate.UTC().Format(time.RFC3339)
	}
	return append(fields,
		formField{"title", in.Title},
		formField{"description", in.Description},
		formField{"status", in.StageID},
		formField{"priority", string(in.Priority)},
		formField{"assignee", in.AssigneeID},
		formField{"dueDate", due},
		formField{"tags", strings.Join(in.Tags, ",")},
	)
}

// dataField decodes the value at a dotted key path inside the response data.
// ok is false when any segment is missing or null.
func dataField[T any](env envelope, keyPath string) (v T, ok bool, err error) {
	raw := env.Data
	for _, key := range strings.Split(keyPath, ".") {
		var obj map[string]json.RawMessage
		if len(raw) == 0 || json.Unmarshal(raw, &obj) != nil {
			return v, false, nil
		}
		next, found := obj[key]
		if !found || string(next) == "null" {
			return v, false, nil
		}
		raw = next
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", keyPath, err)
	}
	return v, true, nil
}
