package board

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// AttachmentItem is either a PendingFile that exists only on this client or a
// confirmed Attachment the server has stored.
type AttachmentItem interface {
	DisplayName() string
	Size() int64
	attachmentItem()
}

// PendingFile is a locally selected file that has not been uploaded yet.
type PendingFile struct {
	LocalID   string
	Path      string
	Name      string
	SizeBytes int64
}

func (p PendingFile) DisplayName() string { return p.Name }
func (p PendingFile) Size() int64         { return p.SizeBytes }
func (PendingFile) attachmentItem()       {}

// Attachment is server-confirmed file metadata. FileName is its identity.
type Attachment struct {
	FileName     string    `json:"fileName"`
	OriginalName string    `json:"originalName"`
	URL          string    `json:"url"`
	SizeBytes    int64     `json:"size"`
	UploadedBy   UserID    `json:"uploadedBy,omitempty"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

func (a Attachment) DisplayName() string {
	if a.OriginalName != "" {
		return a.OriginalName
	}
	if a.FileName != "" {
		return a.FileName
	}
	return "attachment"
}

func (a Attachment) Size() int64  { return a.SizeBytes }
func (Attachment) attachmentItem() {}

// DeletionKey is the name submitted when the attachment is removed. Older
// records may lack a stored file name, in which case the original name is used.
func (a Attachment) DeletionKey() string {
	if a.FileName != "" {
		return a.FileName
	}
	return a.OriginalName
}

// UploadedByUser reports whether userID uploaded the attachment.
func (a Attachment) UploadedByUser(userID string) bool {
	return userID != "" && string(a.UploadedBy) == userID
}

// UserID is a user reference that the server sends either as a bare id or
// as an embedded user object. Only the id is kept.
type UserID string

func (u *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*u = ""
		return nil
	case len(b) > 0 && b[0] == '{':
		var ref UserRef
		if err := json.Unmarshal(b, &ref); err != nil {
			return fmt.Errorf("user reference: %w", err)
		}
		*u = UserID(ref.ID)
		return nil
	}
	var id string
	if err := json.Unmarshal(b, &id); err != nil {
		return fmt.Errorf("user reference: %w", err)
	}
	*u = UserID(id)
	return nil
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders a byte count using 1024-based units with two decimals.
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	return fmt.Sprintf("%.2f %s", float64(bytes)/math.Pow(1024, float64(i)), sizeUnits[i])
}
