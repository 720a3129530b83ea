package wiring

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/config"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

// OpenWorkspace resolves the workspace directory and loads its config. An
// empty home falls back to config.Home.
func OpenWorkspace(home string) (*storage.Workspace, config.Config, error) {
	if home == "" {
		h, err := config.Home()
		if err != nil {
			return nil, config.Config{}, err
		}
		home = h
	}
	ws := storage.NewWorkspace(home)
	cfg, err := config.Load(ws)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("load config from %s: %w", ws.Home(), err)
	}
	return ws, cfg, nil
}

// NewLogger builds the slog handler named by lc.
func NewLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(lc.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", lc.Format)
	}
}
