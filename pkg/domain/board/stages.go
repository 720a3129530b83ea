package board

import (
	"fmt"
	"sort"
	"strings"
)

// SortStages returns a copy of stages ordered by Order ascending. Ties keep
// their input order.
func SortStages(stages []Stage) []Stage {
	out := append([]Stage(nil), stages...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Renumber assigns Order 1..N following the slice order. It never renumbers
// partially: every stage gets a fresh value.
func Renumber(stages []Stage) []Stage {
	out := append([]Stage(nil), stages...)
	for i := range out {
		out[i].Order = i + 1
	}
	return out
}

// Reorder moves the stage at index from to index to and renumbers the whole
// list. Indexes outside the list are clamped.
func Reorder(stages []Stage, from, to int) []Stage {
	n := len(stages)
	if n == 0 {
		return nil
	}
	from = clamp(from, 0, n-1)
	to = clamp(to, 0, n-1)

	out := make([]Stage, 0, n)
	out = append(out, stages[:from]...)
	out = append(out, stages[from+1:]...)
	moved := stages[from]

	out = append(out, Stage{})
	copy(out[to+1:], out[to:])
	out[to] = moved
	return Renumber(out)
}

// InsertAfter places stage directly after the stage with id afterID and
// renumbers. The returned index is the new stage's position.
func InsertAfter(stages []Stage, afterID string, stage Stage) ([]Stage, int, error) {
	idx := IndexOfStage(stages, afterID)
	if idx < 0 {
		return nil, -1, fmt.Errorf("%w: %s", ErrStageNotFound, afterID)
	}
	out := make([]Stage, 0, len(stages)+1)
	out = append(out, stages[:idx+1]...)
	out = append(out, stage)
	out = append(out, stages[idx+1:]...)
	return Renumber(out), idx + 1, nil
}

// RemoveStage drops the stage with the given id and renumbers.
func RemoveStage(stages []Stage, id string) ([]Stage, error) {
	idx := IndexOfStage(stages, id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrStageNotFound, id)
	}
	out := make([]Stage, 0, len(stages)-1)
	out = append(out, stages[:idx]...)
	out = append(out, stages[idx+1:]...)
	return Renumber(out), nil
}

// IndexOfStage returns the position of id in stages or -1.
func IndexOfStage(stages []Stage, id string) int {
	for i, s := range stages {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// FindStage looks up a stage by id.
func FindStage(stages []Stage, id string) (Stage, bool) {
	if i := IndexOfStage(stages, id); i >= 0 {
		return stages[i], true
	}
	return Stage{}, false
}

// ActiveStages filters to active stages, keeping order.
func ActiveStages(stages []Stage) []Stage {
	var out []Stage
	for _, s := range SortStages(stages) {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out
}

// ValidateOrder checks that Order values form the contiguous sequence 1..N
// with no duplicates and that ids are unique.
func ValidateOrder(stages []Stage) error {
	seenOrder := make(map[int]bool, len(stages))
	seenID := make(map[string]bool, len(stages))
	for _, s := range stages {
		if s.Order < 1 || s.Order > len(stages) {
			return fmt.Errorf("stage %s: order %d outside 1..%d", s.ID, s.Order, len(stages))
		}
		if seenOrder[s.Order] {
			return fmt.Errorf("stage %s: duplicate order %d", s.ID, s.Order)
		}
		if seenID[s.ID] {
			return fmt.Errorf("duplicate stage id %s", s.ID)
		}
		seenOrder[s.Order] = true
		seenID[s.ID] = true
	}
	return nil
}

// CheckMove validates that moving the stage at from to index to keeps the
// protected boundary stages in place.
func CheckMove(stages []Stage, from, to int) error {
	n := len(stages)
	if from < 0 || from >= n {
		return &ValidationError{Op: "reorder stage", Field: "stage", Reason: "unknown stage"}
	}
	if to < 0 || to >= n {
		return &ValidationError{Op: "reorder stage", Field: "targetIndex", Reason: fmt.Sprintf("must be within 0..%d", n-1)}
	}
	if !stages[from].IsEditable {
		return &ValidationError{Op: "reorder stage", Field: "stage", Reason: fmt.Sprintf("stage %q is protected", stages[from].Name)}
	}
	if to == 0 && !stages[0].IsEditable {
		return &ValidationError{Op: "reorder stage", Field: "targetIndex", Reason: "cannot move before the first protected stage"}
	}
	if to == n-1 && !stages[n-1].IsEditable {
		return &ValidationError{Op: "reorder stage", Field: "targetIndex", Reason: "cannot move after the last protected stage"}
	}
	return nil
}

// ValidateStageName trims and checks a stage name.
func ValidateStageName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Op: op, Field: "name", Reason: "must not be empty"}
	}
	return name, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
