package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/felixgeelhaar/boardsync/internal/infrastructure/config"
)

// fakeServer is a minimal board server for one project "p1" with stages
// Todo and Done (Done protected) and a single task t1 in Todo.
type fakeServer struct {
	mu           sync.Mutex
	failMoves    bool
	moves        []map[string]string
	stageUpdates [][]map[string]any
	comments     []string
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/project/getProjectConfig/p1", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{"projectConfig": map[string]any{
			"projectId": "p1",
			"TaskStages": []map[string]any{
				{"_id": "todo", "name": "Todo", "order": 1, "isActive": true, "isEditable": true},
				{"_id": "done", "name": "Done", "order": 2, "isActive": true, "isEditable": false},
			},
		}})
	})
	mux.HandleFunc("/api/task/getTasks/p1", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{"tasks": []map[string]any{
			{"_id": "t1", "projectId": "p1", "title": "Login", "status": "todo", "priority": "high"},
		}})
	})
	mux.HandleFunc("/api/task/updateTaskStatus", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode move: %v", err)
		}
		f.mu.Lock()
		f.moves = append(f.moves, body)
		fail := f.failMoves
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeData(w, map[string]any{"task": map[string]any{"_id": body["id"], "projectId": "p1", "title": "Login", "status": body["status"], "priority": "high"}})
	})
	mux.HandleFunc("/api/project/updateTaskStages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stages []map[string]any `json:"TaskStages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode stages: %v", err)
		}
		f.mu.Lock()
		f.stageUpdates = append(f.stageUpdates, body.Stages)
		f.mu.Unlock()
		writeData(w, map[string]any{})
	})
	mux.HandleFunc("/api/project/getProject/p1", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{"project": map[string]any{
			"_id": "p1",
			"members": []map[string]any{
				{"user": map[string]any{"_id": "me", "name": "Me"}, "role": "owner"},
				{"user": map[string]any{"_id": "u2", "name": "Ann"}, "role": "developer"},
			},
		}})
	})
	mux.HandleFunc("/api/task/addComment", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode comment: %v", err)
		}
		f.mu.Lock()
		f.comments = append(f.comments, body["text"])
		f.mu.Unlock()
		writeData(w, map[string]any{})
	})
	mux.HandleFunc("/api/task/getTask/t1", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, map[string]any{"task": map[string]any{"_id": "t1", "projectId": "p1", "title": "Login", "status": "todo"}})
	})
	return mux
}

func (f *fakeServer) moveCalls() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.moves...)
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok", "data": data})
}

// startServer runs f and points the client configuration at it.
func startServer(t *testing.T, f *fakeServer) {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	t.Setenv(config.EnvAPIURL, srv.URL+"/api")
	t.Setenv(config.EnvPushURL, "")
	t.Setenv(config.EnvToken, "")
	t.Setenv(config.EnvUserID, "me")
	t.Setenv(config.EnvLogLevel, "")
}

// runCLI executes the root command in a fresh workspace and returns what it
// printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLIIn(t, t.TempDir(), args...)
}

func runCLIIn(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	projectID, logLevel = "", ""
	listenReplay, listenSince, listenEvent = false, "", ""
	commentMentions = nil
	buf := new(bytes.Buffer)
	RootCmd.SetOut(buf)
	RootCmd.SetErr(buf)
	RootCmd.SetArgs(append([]string{"--home", home, "--log-level", "error"}, args...))
	err := RootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}
