package storage

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

// StageRegistry caches each project's ordered stage pipeline.
type StageRegistry struct {
	mu       sync.RWMutex
	projects map[string][]board.Stage
	obs      observers
}

func NewStageRegistry() *StageRegistry {
	return &StageRegistry{projects: make(map[string][]board.Stage)}
}

func (r *StageRegistry) Subscribe(fn func(Change)) (unsubscribe func()) {
	return r.obs.subscribe(fn)
}

// Replace installs stages as the pipeline of projectID, sorted by order, and
// returns the previous pipeline (nil if none was loaded).
func (r *StageRegistry) Replace(projectID string, stages []board.Stage) []board.Stage {
	sorted := board.SortStages(stages)
	r.mu.Lock()
	prev := r.projects[projectID]
	r.projects[projectID] = sorted
	r.mu.Unlock()

	r.obs.notify(Change{Kind: ChangeStages, ProjectID: projectID})
	return append([]board.Stage(nil), prev...)
}

// Stages returns the pipeline of projectID ordered by Order ascending.
func (r *StageRegistry) Stages(projectID string) ([]board.Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stages, ok := r.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", board.ErrProjectNotLoaded, projectID)
	}
	return append([]board.Stage(nil), stages...), nil
}

// Loaded reports whether a pipeline is cached for projectID.
func (r *StageRegistry) Loaded(projectID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.projects[projectID]
	return ok
}

// Lookup finds a stage in the pipeline of projectID.
func (r *StageRegistry) Lookup(projectID, stageID string) (board.Stage, error) {
	stages, err := r.Stages(projectID)
	if err != nil {
		return board.Stage{}, err
	}
	s, ok := board.FindStage(stages, stageID)
	if !ok {
		return board.Stage{}, fmt.Errorf("%w: %s", board.ErrStageNotFound, stageID)
	}
	return s, nil
}
