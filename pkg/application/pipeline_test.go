package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/boardsync/pkg/application"
	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func stageOf(t *testing.T, f *fixture, taskID string) string {
	t.Helper()
	task, ok := f.store.Get(taskID)
	if !ok {
		t.Fatalf("task %s not cached", taskID)
	}
	return task.StageID
}

// gatedMoves makes every stage move block until the test releases it with the
// outcome for that target stage.
func gatedMoves(f *fixture, stages ...string) map[string]chan error {
	gates := make(map[string]chan error, len(stages))
	for _, s := range stages {
		gates[s] = make(chan error)
	}
	f.backend.MoveHook = func(ctx context.Context, taskID, stageID string) (board.Task, error) {
		if err := <-gates[stageID]; err != nil {
			return board.Task{}, err
		}
		return f.backend.echo(taskID, stageID), nil
	}
	return gates
}

func TestMoveTask_CoalescedMovesSettleOnLatest(t *testing.T) {
	orders := []struct {
		name  string
		first string
	}{
		{"older response first", "doing"},
		{"newer response first", "done"},
	}
	for _, o := range orders {
		t.Run(o.name, func(t *testing.T) {
			f := newFixture()
			f.load(t)
			gates := gatedMoves(f, "doing", "done")
			key := "task/t1/stage"

			results := make(chan error, 2)
			go func() { _, err := f.tasks.MoveTask(context.Background(), "t1", "doing"); results <- err }()
			waitFor(t, "first move in flight", func() bool { return f.pipeline.InFlight(key) == 1 })
			if got := stageOf(t, f, "t1"); got != "doing" {
				t.Fatalf("optimistic stage = %s, want doing", got)
			}

			go func() { _, err := f.tasks.MoveTask(context.Background(), "t1", "done"); results <- err }()
			waitFor(t, "second move in flight", func() bool { return f.pipeline.InFlight(key) == 2 })
			if got := stageOf(t, f, "t1"); got != "done" {
				t.Fatalf("optimistic stage = %s, want done", got)
			}

			second := "done"
			if o.first == "done" {
				second = "doing"
			}
			gates[o.first] <- nil
			if err := <-results; err != nil {
				t.Fatal(err)
			}
			if got := stageOf(t, f, "t1"); got != "done" {
				t.Errorf("after first response stage = %s, want done", got)
			}
			gates[second] <- nil
			if err := <-results; err != nil {
				t.Fatal(err)
			}

			if got := stageOf(t, f, "t1"); got != "done" {
				t.Errorf("settled stage = %s, want done", got)
			}
			if f.pipeline.InFlight(key) != 0 {
				t.Error("flight record should be released")
			}
		})
	}
}

func TestMoveTask_RollbackOnUnreachableServer(t *testing.T) {
	f := newFixture()
	f.load(t)
	before := f.store.Tasks("p1")
	gates := gatedMoves(f, "doing")

	done := make(chan error, 1)
	go func() { _, err := f.tasks.MoveTask(context.Background(), "t1", "doing"); done <- err }()
	waitFor(t, "move in flight", func() bool { return f.pipeline.InFlight("task/t1/stage") == 1 })
	if got := stageOf(t, f, "t1"); got != "doing" {
		t.Fatalf("optimistic stage = %s, want doing", got)
	}

	gates["doing"] <- errUnreachable
	err := <-done

	var netErr *board.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want *board.NetworkError", err)
	}
	if !errors.Is(err, errUnreachable) {
		t.Error("network error should wrap the transport cause")
	}
	if got := stageOf(t, f, "t1"); got != "todo" {
		t.Errorf("stage after rollback = %s, want todo", got)
	}
	after := f.store.Tasks("p1")
	if len(after) != len(before) {
		t.Fatalf("task count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].StageID != after[i].StageID {
			t.Errorf("task %d differs after rollback: %+v vs %+v", i, before[i], after[i])
		}
	}
	if n := f.errorNotices(); n != 1 {
		t.Errorf("error notices = %d, want 1", n)
	}
}

func TestMoveTask_OlderFailureDoesNotRollBackNewerValue(t *testing.T) {
	f := newFixture()
	f.load(t)
	gates := gatedMoves(f, "doing", "done")
	key := "task/t1/stage"

	results := make(chan error, 2)
	go func() { _, err := f.tasks.MoveTask(context.Background(), "t1", "doing"); results <- err }()
	waitFor(t, "first move", func() bool { return f.pipeline.InFlight(key) == 1 })
	go func() { _, err := f.tasks.MoveTask(context.Background(), "t1", "done"); results <- err }()
	waitFor(t, "second move", func() bool { return f.pipeline.InFlight(key) == 2 })

	gates["doing"] <- errUnreachable
	if err := <-results; !errors.Is(err, board.ErrNetwork) {
		t.Fatalf("older move err = %v", err)
	}
	if got := stageOf(t, f, "t1"); got != "done" {
		t.Errorf("stage after stale failure = %s, want done", got)
	}
	gates["done"] <- nil
	if err := <-results; err != nil {
		t.Fatal(err)
	}
	if got := stageOf(t, f, "t1"); got != "done" {
		t.Errorf("settled stage = %s, want done", got)
	}
}

func TestMoveTask_LatestFailureFallsBackToConfirmedOlder(t *testing.T) {
	f := newFixture()
	f.load(t)
	gates := gatedMoves(f, "doing", "done")
	key := "task/t1/stage"

	results := make(chan error, 2)
	go func() { _, err := f.tasks.MoveTask(context.Background(), "t1", "doing"); results <- err }()
	waitFor(t, "first move", func() bool { return f.pipeline.InFlight(key) == 1 })
	go func() { _, err := f.tasks.MoveTask(context.Background(), "t1", "done"); results <- err }()
	waitFor(t, "second move", func() bool { return f.pipeline.InFlight(key) == 2 })

	gates["doing"] <- nil
	if err := <-results; err != nil {
		t.Fatal(err)
	}
	gates["done"] <- &board.ValidationError{Op: "move task", Reason: "rejected"}
	if err := <-results; !errors.Is(err, board.ErrValidation) {
		t.Fatalf("latest err = %v", err)
	}
	if got := stageOf(t, f, "t1"); got != "doing" {
		t.Errorf("stage = %s, want the confirmed doing", got)
	}
}

func TestMoveTask_Validation(t *testing.T) {
	f := newFixture()
	f.load(t)

	if _, err := f.stages.SetActive(context.Background(), "p1", "done", false); err != nil {
		t.Fatal(err)
	}
	calls := f.backend.CallCount("UpdateTaskStage")

	tests := []struct {
		name  string
		stage string
	}{
		{"unknown stage", "nope"},
		{"inactive stage", "done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tasks.MoveTask(context.Background(), "t1", tt.stage)
			if !errors.Is(err, board.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if got := stageOf(t, f, "t1"); got != "todo" {
				t.Errorf("stage changed to %s", got)
			}
		})
	}
	if f.backend.CallCount("UpdateTaskStage") != calls {
		t.Error("validation failures must not reach the server")
	}

	if _, err := f.tasks.MoveTask(context.Background(), "t1", "todo"); err != nil {
		t.Errorf("same-stage move: %v", err)
	}
	if f.backend.CallCount("UpdateTaskStage") != calls {
		t.Error("same-stage move must be a no-op")
	}
	if _, err := f.tasks.MoveTask(context.Background(), "ghost", "doing"); !errors.Is(err, board.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestMoveTask_ConflictTriggersRefresh(t *testing.T) {
	f := newFixture()
	f.load(t)
	f.backend.MoveHook = func(ctx context.Context, taskID, stageID string) (board.Task, error) {
		return board.Task{}, &board.ConflictError{Op: "move task", Resource: taskID, Reason: "task was deleted"}
	}
	lists := f.backend.CallCount("ListTasks")

	_, err := f.tasks.MoveTask(context.Background(), "t1", "doing")
	if !errors.Is(err, board.ErrConflict) {
		t.Fatalf("err = %v", err)
	}
	if f.backend.CallCount("ListTasks") != lists+1 {
		t.Error("conflict should force a fresh fetch")
	}
	if got := stageOf(t, f, "t1"); got != "todo" {
		t.Errorf("stage = %s", got)
	}
}

func TestExecute_UnkeyedRollbackAndNotices(t *testing.T) {
	notices := application.NewNoticeLog(10)
	p := application.NewPipeline(notices, nil)
	value := "a"

	_, err := application.Execute(context.Background(), p, application.Mutation[string]{
		Op:       "set value",
		Snapshot: func() func() { prev := value; return func() { value = prev } },
		Apply:    func() { value = "b" },
		Remote:   func(ctx context.Context) (string, error) { return "", errors.New("boom") },
	})
	if !errors.Is(err, board.ErrNetwork) {
		t.Fatalf("err = %v", err)
	}
	if value != "a" {
		t.Errorf("value = %q, want a", value)
	}

	got, err := application.Execute(context.Background(), p, application.Mutation[string]{
		Op:        "set value",
		Apply:     func() { value = "b" },
		Remote:    func(ctx context.Context) (string, error) { return "c", nil },
		Reconcile: func(s string) { value = s },
		Success:   "value set",
	})
	if err != nil || got != "c" || value != "c" {
		t.Fatalf("got %q, value %q, err %v", got, value, err)
	}

	recent := notices.Recent()
	if len(recent) != 2 {
		t.Fatalf("notices = %d", len(recent))
	}
	if recent[0].Level != application.NoticeError || recent[1].Message != "value set" {
		t.Errorf("notices = %+v", recent)
	}
	if recent[0].ID == "" || recent[0].ID == recent[1].ID {
		t.Error("notices need distinct ids")
	}
}

func TestExecute_ValidationStopsBeforeApply(t *testing.T) {
	p := application.NewPipeline(application.NewNoticeLog(10), nil)
	applied, called := false, false
	_, err := application.Execute(context.Background(), p, application.Mutation[int]{
		Op:       "noop",
		Validate: func() error { return errors.New("bad input") },
		Apply:    func() { applied = true },
		Remote:   func(ctx context.Context) (int, error) { called = true; return 0, nil },
	})
	if !errors.Is(err, board.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	if applied || called {
		t.Error("nothing may happen after a validation failure")
	}
}
