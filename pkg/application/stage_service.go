package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

// StageService edits a project's stage pipeline. Every edit recomputes the
// full list, applies it locally and submits it in a single request.
type StageService struct {
	backend  Backend
	registry *storage.StageRegistry
	pipeline *Pipeline
	logger   *slog.Logger
}

func NewStageService(backend Backend, registry *storage.StageRegistry, pipeline *Pipeline, logger *slog.Logger) *StageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StageService{backend: backend, registry: registry, pipeline: pipeline, logger: logger}
}

func stagesKey(projectID string) string { return "project/" + projectID + "/stages" }

// Load fetches the canonical pipeline of projectID into the registry. While a
// stage edit is in flight the local list is kept; the edit's response
// reconciles it.
func (s *StageService) Load(ctx context.Context, projectID string) ([]board.Stage, error) {
	cfg, err := s.backend.GetProjectConfig(ctx, projectID)
	if err != nil {
		return nil, classify("load stages", err)
	}
	if n := s.pipeline.InFlight(stagesKey(projectID)); n > 0 && s.registry.Loaded(projectID) {
		s.logger.Debug("stage edit in flight, keeping local pipeline", "project", projectID, "in_flight", n)
		return s.registry.Stages(projectID)
	}
	s.registry.Replace(projectID, cfg.Stages)
	return s.registry.Stages(projectID)
}

// ListStages returns the cached pipeline ordered by Order.
func (s *StageService) ListStages(projectID string) ([]board.Stage, error) {
	return s.registry.Stages(projectID)
}

// ActiveStages returns the board columns of projectID.
func (s *StageService) ActiveStages(projectID string) ([]board.Stage, error) {
	stages, err := s.registry.Stages(projectID)
	if err != nil {
		return nil, err
	}
	return board.ActiveStages(stages), nil
}

// Reorder moves stageID to targetIndex (0-based) and renumbers every stage.
func (s *StageService) Reorder(ctx context.Context, projectID, stageID string, targetIndex int) ([]board.Stage, error) {
	const op = "reorder stage"
	stages, err := s.registry.Stages(projectID)
	if err != nil {
		return nil, err
	}
	from := board.IndexOfStage(stages, stageID)
	if from >= 0 && from == targetIndex {
		return stages, nil
	}
	verr := board.CheckMove(stages, from, targetIndex)
	var next []board.Stage
	if verr == nil {
		next = board.Reorder(stages, from, targetIndex)
	}
	return s.submit(ctx, op, projectID, next, verr, fmt.Sprintf("Moved stage to position %d", targetIndex+1))
}

// InsertStage adds an editable, active stage directly after afterStageID.
// The stage carries a local id until the server confirms the pipeline.
func (s *StageService) InsertStage(ctx context.Context, projectID, afterStageID, name string) ([]board.Stage, error) {
	const op = "add stage"
	stages, err := s.registry.Stages(projectID)
	if err != nil {
		return nil, err
	}

	name, verr := board.ValidateStageName(op, name)
	var next []board.Stage
	if verr == nil {
		verr = checkUniqueName(op, stages, "", name)
	}
	if verr == nil {
		idx := board.IndexOfStage(stages, afterStageID)
		switch {
		case idx < 0:
			verr = &board.ValidationError{Op: op, Field: "after", Reason: "unknown stage " + afterStageID}
		case idx == len(stages)-1 && !stages[idx].IsEditable:
			verr = &board.ValidationError{Op: op, Field: "after", Reason: fmt.Sprintf("cannot add a stage after the last protected stage %q", stages[idx].Name)}
		default:
			stage := board.Stage{ID: uuid.New().String(), Name: name, IsActive: true, IsEditable: true}
			next, _, verr = board.InsertAfter(stages, afterStageID, stage)
		}
	}
	return s.submit(ctx, op, projectID, next, verr, fmt.Sprintf("Added stage %q", name))
}

// SetActive shows or hides a stage. Tasks in hidden stages stay cached and
// addressable.
func (s *StageService) SetActive(ctx context.Context, projectID, stageID string, active bool) ([]board.Stage, error) {
	op := "deactivate stage"
	if active {
		op = "activate stage"
	}
	stages, err := s.registry.Stages(projectID)
	if err != nil {
		return nil, err
	}
	idx, verr := editableIndex(op, stages, stageID)
	if verr == nil && stages[idx].IsActive == active {
		return stages, nil
	}
	var next []board.Stage
	if verr == nil {
		next = append([]board.Stage(nil), stages...)
		next[idx].IsActive = active
	}
	return s.submit(ctx, op, projectID, next, verr, "")
}

// RenameStage changes a stage's display name.
func (s *StageService) RenameStage(ctx context.Context, projectID, stageID, name string) ([]board.Stage, error) {
	const op = "rename stage"
	stages, err := s.registry.Stages(projectID)
	if err != nil {
		return nil, err
	}
	idx, verr := editableIndex(op, stages, stageID)
	if verr == nil {
		name, verr = board.ValidateStageName(op, name)
	}
	if verr == nil {
		verr = checkUniqueName(op, stages, stageID, name)
	}
	var next []board.Stage
	if verr == nil {
		next = append([]board.Stage(nil), stages...)
		next[idx].Name = name
	}
	return s.submit(ctx, op, projectID, next, verr, fmt.Sprintf("Renamed stage to %q", name))
}

// DeleteStage removes an editable stage and renumbers the rest.
func (s *StageService) DeleteStage(ctx context.Context, projectID, stageID string) ([]board.Stage, error) {
	const op = "delete stage"
	stages, err := s.registry.Stages(projectID)
	if err != nil {
		return nil, err
	}
	_, verr := editableIndex(op, stages, stageID)
	var next []board.Stage
	if verr == nil {
		next, verr = board.RemoveStage(stages, stageID)
	}
	return s.submit(ctx, op, projectID, next, verr, "")
}

func (s *StageService) submit(ctx context.Context, op, projectID string, next []board.Stage, verr error, success string) ([]board.Stage, error) {
	cfg, err := Execute(ctx, s.pipeline, Mutation[board.ProjectConfig]{
		Op:       op,
		Key:      stagesKey(projectID),
		Validate: func() error { return verr },
		Snapshot: func() func() {
			prev, _ := s.registry.Stages(projectID)
			return func() { s.registry.Replace(projectID, prev) }
		},
		Apply: func() { s.registry.Replace(projectID, next) },
		Remote: func(ctx context.Context) (board.ProjectConfig, error) {
			return s.backend.UpdateStages(ctx, projectID, next)
		},
		Reconcile: func(cfg board.ProjectConfig) {
			if len(cfg.Stages) == 0 {
				s.logger.Debug("stage update returned no pipeline, keeping submitted list", "project", projectID)
				s.registry.Replace(projectID, next)
				return
			}
			s.registry.Replace(projectID, cfg.Stages)
		},
		Refresh: func(ctx context.Context) error {
			_, err := s.Load(ctx, projectID)
			return err
		},
		Success: success,
	})
	if err != nil {
		return nil, err
	}
	if len(cfg.Stages) == 0 {
		return next, nil
	}
	return board.SortStages(cfg.Stages), nil
}

func editableIndex(op string, stages []board.Stage, stageID string) (int, error) {
	idx := board.IndexOfStage(stages, stageID)
	if idx < 0 {
		return -1, &board.ValidationError{Op: op, Field: "stage", Reason: "unknown stage " + stageID}
	}
	if !stages[idx].IsEditable {
		return -1, &board.ValidationError{Op: op, Field: "stage", Reason: fmt.Sprintf("stage %q is protected", stages[idx].Name)}
	}
	return idx, nil
}

func checkUniqueName(op string, stages []board.Stage, exceptID, name string) error {
	for _, st := range stages {
		if st.ID != exceptID && strings.EqualFold(st.Name, name) {
			return &board.ValidationError{Op: op, Field: "name", Reason: fmt.Sprintf("a stage named %q already exists", st.Name)}
		}
	}
	return nil
}
