package application

import (
	"context"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

// NotificationFeed is the acting user's notification list, fed by the REST
// fetch and by pushed notifications. Both paths deduplicate by id.
type NotificationFeed struct {
	backend  Backend
	pipeline *Pipeline
	logger   *slog.Logger

	mu     sync.RWMutex
	items  []board.Notification
	pushed map[string]bool
	subs   []func()
}

func NewNotificationFeed(backend Backend, pipeline *Pipeline, logger *slog.Logger) *NotificationFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationFeed{backend: backend, pipeline: pipeline, logger: logger, pushed: make(map[string]bool)}
}

// OnChange registers fn to run after every change to the feed.
func (f *NotificationFeed) OnChange(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

func (f *NotificationFeed) changed() {
	f.mu.RLock()
	subs := append([]func(){}, f.subs...)
	f.mu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

// Load fetches the notification list and seeds the feed with it.
func (f *NotificationFeed) Load(ctx context.Context) error {
	list, err := f.backend.ListNotifications(ctx)
	if err != nil {
		return classify("load notifications", err)
	}
	f.Seed(list)
	return nil
}

// Seed replaces the feed with a fetched list. Pushed notifications the fetch
// does not contain yet are kept after it.
func (f *NotificationFeed) Seed(list []board.Notification) {
	f.mu.Lock()
	merged, _ := board.MergeByIdentity(nil, list...)
	var carried []board.Notification
	for _, n := range f.items {
		if f.pushed[n.ID] && !board.ContainsIdentity(merged, n.ID) {
			carried = append(carried, n)
		}
	}
	merged, _ = board.MergeByIdentity(merged, carried...)
	f.items = merged
	f.mu.Unlock()
	f.changed()
}

// Merge adds a pushed notification unless one with the same id is present.
func (f *NotificationFeed) Merge(n board.Notification) bool {
	f.mu.Lock()
	var added int
	f.items, added = board.MergeByIdentity(f.items, n)
	if added > 0 {
		f.pushed[n.ID] = true
	}
	f.mu.Unlock()
	if added > 0 {
		f.changed()
	}
	return added > 0
}

func (f *NotificationFeed) Items() []board.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]board.Notification(nil), f.items...)
}

func (f *NotificationFeed) UnreadCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, it := range f.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// MarkAllRead marks every notification read locally and on the server. On
// failure the previous read flags come back.
func (f *NotificationFeed) MarkAllRead(ctx context.Context) error {
	_, err := Execute(ctx, f.pipeline, Mutation[struct{}]{
		Op:  "mark notifications read",
		Key: "notifications/read",
		Snapshot: func() func() {
			f.mu.RLock()
			unread := make(map[string]bool)
			for _, n := range f.items {
				if !n.Read {
					unread[n.ID] = true
				}
			}
			f.mu.RUnlock()
			return func() { f.setRead(func(n board.Notification) bool { return !unread[n.ID] && n.Read }) }
		},
		Apply: func() { f.setRead(func(board.Notification) bool { return true }) },
		Remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, f.backend.MarkNotificationsRead(ctx)
		},
		Success: "All notifications marked as read",
	})
	return err
}

func (f *NotificationFeed) setRead(read func(board.Notification) bool) {
	f.mu.Lock()
	for i := range f.items {
		f.items[i].Read = read(f.items[i])
	}
	f.mu.Unlock()
	f.changed()
}
