// Package events defines the live events exchanged over the push channel.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

// Events received from the server.
const (
	NewNotification    = "newNotification"
	CommentNew         = "comment:new"
	AttachmentsUpdated = "task:attachments:updated"
)

// Messages emitted by the client to manage its subscriptions.
const (
	JoinUserRoom  = "joinUserRoom"
	JoinTaskRoom  = "joinTaskRoom"
	LeaveTaskRoom = "leaveTaskRoom"
)

var (
	// ErrUnknownEvent is returned when an envelope names an event this client does not consume.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrMalformedPayload is returned when a payload fails schema validation or decoding.
	ErrMalformedPayload = errors.New("malformed event payload")
)

// Envelope is one push-channel frame.
type Envelope struct {
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

// NewEnvelope marshals data into a frame named event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// CommentAdded is the payload of comment:new.
type CommentAdded struct {
	TaskID  string        `json:"taskId"`
	Comment board.Comment `json:"comment"`
}

// AttachmentsChanged is the payload of task:attachments:updated. Attachments
// is the task's full canonical list.
type AttachmentsChanged struct {
	TaskID      string             `json:"taskId"`
	Attachments []board.Attachment `json:"attachments"`
}

// NotificationReceived is the payload of newNotification.
type NotificationReceived struct {
	Notification board.Notification
}

// Decode validates the envelope payload against its schema and decodes it into
// one of CommentAdded, AttachmentsChanged or NotificationReceived.
func Decode(env Envelope) (any, error) {
	if err := Validate(env); err != nil {
		return nil, err
	}
	switch env.Event {
	case CommentNew:
		var p CommentAdded
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Event, err)
		}
		return p, nil
	case AttachmentsUpdated:
		var p AttachmentsChanged
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Event, err)
		}
		return p, nil
	case NewNotification:
		var n board.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Event, err)
		}
		return NotificationReceived{Notification: n}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}
