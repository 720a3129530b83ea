package wiring

import (
	"context"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/push"
	"github.com/felixgeelhaar/boardsync/pkg/domain/events"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

// Push builds a push client whose events flow through the merger. When
// journal is set every received event is appended to it together with the
// reason it was dropped, if any. After a reconnect the board of projectID
// and the notification feed are fetched again to cover the gap.
func (s *AppServices) Push(projectID string, journal *storage.FileJournal) (*push.Client, error) {
	logger := s.Logger.With("component", "push")
	handler := func(ctx context.Context, env events.Envelope) error {
		err := s.Merger.Handle(ctx, env)
		if journal != nil {
			reason := ""
			if err != nil {
				reason = err.Error()
			}
			if jerr := journal.Append(env, reason); jerr != nil {
				logger.Warn("journal append failed", "event", env.Event, "error", jerr)
			}
		}
		return err
	}

	client, err := push.New(push.Config{
		URL:          s.Config.PushURL,
		Token:        s.Config.Token,
		UserID:       s.Config.UserID,
		InitialDelay: s.Config.Reconnect.InitialDelay,
		MaxDelay:     s.Config.Reconnect.MaxDelay,
		Logger:       logger,
	}, handler)
	if err != nil {
		return nil, err
	}

	client.OnReconnect(func(ctx context.Context) {
		if projectID != "" {
			if err := s.Tasks.Refresh(ctx, projectID); err != nil {
				logger.Warn("board refetch after reconnect failed", "project", projectID, "error", err)
			}
		}
		if err := s.Feed.Load(ctx); err != nil {
			logger.Warn("notification refetch after reconnect failed", "error", err)
		}
	})
	return client, nil
}
