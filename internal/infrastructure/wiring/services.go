package wiring

import (
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/config"
	"github.com/felixgeelhaar/boardsync/pkg/application"
	"github.com/felixgeelhaar/boardsync/pkg/sdk"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

const noticeHistory = 50

// AppServices exposes the application layer services wired against one
// backend and one set of caches.
type AppServices struct {
	Workspace *storage.Workspace
	Config    config.Config
	Logger    *slog.Logger
	Backend   application.Backend

	Store    *storage.BoardStore
	Registry *storage.StageRegistry
	Notices  *application.NoticeLog
	Pipeline *application.Pipeline

	Stages      *application.StageService
	Tasks       *application.TaskService
	Members     *application.MembershipService
	Attachments *application.AttachmentService
	Feed        *application.NotificationFeed
	Merger      *application.EventMerger
}

// BuildAppServices validates cfg and wires the services against the HTTP
// backend it points at. Extra notifiers receive every notice next to the
// notice log and the logger.
func BuildAppServices(ws *storage.Workspace, cfg config.Config, logger *slog.Logger, notifiers ...application.Notifier) (*AppServices, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := sdk.NewClient(cfg.APIURL,
		sdk.WithTimeout(cfg.RequestTimeout),
		sdk.WithRetry(cfg.Retry.MaxAttempts, cfg.Retry.InitialDelay),
		sdk.WithToken(cfg.Token),
		sdk.WithLogger(logger.With("component", "sdk")),
	)
	return BuildWithBackend(ws, cfg, client, logger, notifiers...), nil
}

// BuildWithBackend wires the services in dependency order against backend.
func BuildWithBackend(ws *storage.Workspace, cfg config.Config, backend application.Backend, logger *slog.Logger, notifiers ...application.Notifier) *AppServices {
	if logger == nil {
		logger = slog.Default()
	}
	notices := application.NewNoticeLog(noticeHistory)
	sink := application.MultiNotifier{notices, application.LogNotifier{Logger: logger}}
	sink = append(sink, notifiers...)

	store := storage.NewBoardStore()
	registry := storage.NewStageRegistry()
	session := application.StaticSession(cfg.UserID)
	pipeline := application.NewPipeline(sink, logger)

	stages := application.NewStageService(backend, registry, pipeline, logger)
	members := application.NewMembershipService(backend, session, logger)
	tasks := application.NewTaskService(backend, store, stages, registry, members, pipeline, logger)
	attachments := application.NewAttachmentService(backend, store, pipeline, session, members, cfg.Attachments.MaxFiles, logger)
	feed := application.NewNotificationFeed(backend, pipeline, logger)
	merger := application.NewEventMerger(store, attachments, feed, logger)

	return &AppServices{
		Workspace:   ws,
		Config:      cfg,
		Logger:      logger,
		Backend:     backend,
		Store:       store,
		Registry:    registry,
		Notices:     notices,
		Pipeline:    pipeline,
		Stages:      stages,
		Tasks:       tasks,
		Members:     members,
		Attachments: attachments,
		Feed:        feed,
		Merger:      merger,
	}
}
