package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
	"github.com/felixgeelhaar/boardsync/pkg/domain/events"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

// EventMerger folds push-channel events into the board cache and the
// notification feed. It writes through the same narrow store entry points as
// the mutation pipeline, so an event and a fetch carrying the same record
// never produce two copies.
type EventMerger struct {
	store       *storage.BoardStore
	attachments *AttachmentService
	feed        *NotificationFeed
	dispatcher  *events.Dispatcher
	logger      *slog.Logger
}

func NewEventMerger(store *storage.BoardStore, attachments *AttachmentService, feed *NotificationFeed, logger *slog.Logger) *EventMerger {
	if logger == nil {
		logger = slog.Default()
	}
	m := &EventMerger{
		store:       store,
		attachments: attachments,
		feed:        feed,
		dispatcher:  events.NewDispatcher(),
		logger:      logger,
	}
	m.dispatcher.On("comments", m.onComment, events.CommentNew)
	m.dispatcher.On("attachments", m.onAttachments, events.AttachmentsUpdated)
	m.dispatcher.On("notifications", m.onNotification, events.NewNotification)
	return m
}

// Dispatcher exposes the merger's routing so callers can observe events.
func (m *EventMerger) Dispatcher() *events.Dispatcher { return m.dispatcher }

// Handle applies one envelope. Unknown, malformed or unroutable events are
// logged and dropped without touching state; the returned error only says
// why an event was dropped.
func (m *EventMerger) Handle(ctx context.Context, env events.Envelope) error {
	if !events.Known(env.Event) {
		err := fmt.Errorf("%w: %q", events.ErrUnknownEvent, env.Event)
		m.logger.Warn("dropping push event", "event", env.Event, "error", err)
		return err
	}
	if err := m.dispatcher.Dispatch(ctx, env); err != nil {
		m.logger.Warn("dropping push event", "event", env.Event, "error", err)
		return err
	}
	return nil
}

func (m *EventMerger) onComment(_ context.Context, env events.Envelope) error {
	v, err := events.Decode(env)
	if err != nil {
		return err
	}
	p := v.(events.CommentAdded)
	added, err := m.store.MergeComments(p.TaskID, p.Comment)
	if err != nil {
		return m.uncached(err, p.TaskID)
	}
	m.logger.Debug("comment merged", "task", p.TaskID, "comment", p.Comment.ID, "added", added)
	return nil
}

func (m *EventMerger) onAttachments(_ context.Context, env events.Envelope) error {
	v, err := events.Decode(env)
	if err != nil {
		return err
	}
	p := v.(events.AttachmentsChanged)
	if err := m.store.SetAttachments(p.TaskID, p.Attachments); err != nil {
		return m.uncached(err, p.TaskID)
	}
	if m.attachments != nil {
		m.attachments.Rebase(p.TaskID, p.Attachments)
	}
	return nil
}

func (m *EventMerger) onNotification(_ context.Context, env events.Envelope) error {
	v, err := events.Decode(env)
	if err != nil {
		return err
	}
	n := v.(events.NotificationReceived).Notification
	if m.feed != nil && !m.feed.Merge(n) {
		m.logger.Debug("duplicate notification ignored", "id", n.ID)
	}
	return nil
}

// uncached turns a missing task into a drop reason. Events for tasks that are
// not on the current board are expected.
func (m *EventMerger) uncached(err error, taskID string) error {
	if errors.Is(err, board.ErrTaskNotFound) {
		m.logger.Debug("event for uncached task", "task", taskID)
	}
	return err
}
