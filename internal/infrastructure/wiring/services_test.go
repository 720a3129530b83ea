package wiring

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/config"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok", "data": data})
}

// boardServer serves one project with two stages and one task, and pushes a
// comment plus an event the client does not know on every socket.
func boardServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/project/getProjectConfig/p1", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]any{"projectConfig": map[string]any{
			"projectId": "p1",
			"TaskStages": []map[string]any{
				{"_id": "todo", "name": "Todo", "order": 1, "isActive": true, "isEditable": true},
				{"_id": "done", "name": "Done", "order": 2, "isActive": true, "isEditable": false},
			},
		}})
	})
	mux.HandleFunc("/api/task/getTasks/p1", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, map[string]any{"tasks": []map[string]any{
			{"_id": "t1", "projectId": "p1", "title": "Login", "status": "todo"},
		}})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"event": "comment:new", "data": map[string]any{
			"taskId":  "t1",
			"comment": map[string]any{"_id": "c9", "text": "pushed"},
		}})
		_ = conn.WriteJSON(map[string]any{"event": "task:archived", "data": map[string]any{"taskId": "t1"}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *httptest.Server) config.Config {
	cfg := config.Default()
	cfg.APIURL = srv.URL + "/api"
	cfg.PushURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	cfg.UserID = "me"
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Reconnect.InitialDelay = 10 * time.Millisecond
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildAppServicesRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.APIURL = ""
	if _, err := BuildAppServices(storage.NewWorkspace(t.TempDir()), cfg, quietLogger()); err == nil {
		t.Fatal("expected error for missing api_url")
	}
}

func TestBuildAppServicesLoadsBoard(t *testing.T) {
	srv := boardServer(t)
	services, err := BuildAppServices(storage.NewWorkspace(t.TempDir()), testConfig(srv), quietLogger())
	if err != nil {
		t.Fatalf("build services failed: %v", err)
	}
	cols, err := services.Tasks.LoadBoard(context.Background(), "p1")
	if err != nil {
		t.Fatalf("load board: %v", err)
	}
	if len(cols) != 2 || len(cols[0].Tasks) != 1 || cols[0].Tasks[0].ID != "t1" {
		t.Fatalf("columns = %+v", cols)
	}
	if !services.Registry.Loaded("p1") {
		t.Error("stage registry should be loaded")
	}
}

func TestPushMergesAndJournals(t *testing.T) {
	srv := boardServer(t)
	ws := storage.NewWorkspace(t.TempDir())
	services, err := BuildAppServices(ws, testConfig(srv), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := services.Tasks.LoadBoard(context.Background(), "p1"); err != nil {
		t.Fatal(err)
	}

	journal := ws.Journal()
	client, err := services.Push("p1", journal)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(3 * time.Second)
	var entries []storage.JournalEntry
	for {
		entries, _ = journal.LoadAll()
		if len(entries) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal entries = %d, want 2", len(entries))
		}
		time.Sleep(5 * time.Millisecond)
	}

	task, ok := services.Store.Get("t1")
	if !ok || len(task.Comments) != 1 || task.Comments[0].ID != "c9" {
		t.Fatalf("task comments = %+v", task.Comments)
	}
	if entries[0].Event != "comment:new" || entries[0].Dropped != "" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Event != "task:archived" || entries[1].Dropped == "" {
		t.Errorf("unknown event should be journaled as dropped: %+v", entries[1])
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, config.LogConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hello", "k", "v")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if line["msg"] != "hello" || line["k"] != "v" {
		t.Errorf("line = %v", line)
	}

	if _, err := NewLogger(io.Discard, config.LogConfig{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := NewLogger(io.Discard, config.LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestOpenWorkspaceDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv(config.EnvAPIURL, "")
	ws, cfg, err := OpenWorkspace(home)
	if err != nil {
		t.Fatal(err)
	}
	if ws.Home() != home {
		t.Errorf("home = %s", ws.Home())
	}
	if cfg.APIURL != config.Default().APIURL {
		t.Errorf("api url = %s", cfg.APIURL)
	}
}
