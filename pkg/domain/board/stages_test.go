package board

import (
	"errors"
	"testing"
)

func pipeline(names ...string) []Stage {
	out := make([]Stage, len(names))
	for i, n := range names {
		out[i] = Stage{ID: "s-" + n, Name: n, Order: i + 1, IsActive: true, IsEditable: true}
	}
	return out
}

func names(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.Name
	}
	return out
}

func equalNames(t *testing.T, got []Stage, want ...string) {
	t.Helper()
	g := names(got)
	if len(g) != len(want) {
		t.Fatalf("got %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("got %v, want %v", g, want)
		}
	}
}

func TestReorder_AlwaysContiguous(t *testing.T) {
	base := pipeline("Todo", "Doing", "Review", "QA", "Done")
	for from := -1; from <= len(base); from++ {
		for to := -1; to <= len(base); to++ {
			out := Reorder(base, from, to)
			if len(out) != len(base) {
				t.Fatalf("Reorder(%d,%d) len = %d", from, to, len(out))
			}
			if err := ValidateOrder(out); err != nil {
				t.Fatalf("Reorder(%d,%d): %v", from, to, err)
			}
		}
	}
}

func TestReorder_MovesStage(t *testing.T) {
	tests := []struct {
		name     string
		from, to int
		want     []string
	}{
		{"forward", 0, 2, []string{"Doing", "Review", "Todo", "Done"}},
		{"backward", 3, 1, []string{"Todo", "Done", "Doing", "Review"}},
		{"same place", 1, 1, []string{"Todo", "Doing", "Review", "Done"}},
		{"to end", 0, 3, []string{"Doing", "Review", "Done", "Todo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Reorder(pipeline("Todo", "Doing", "Review", "Done"), tt.from, tt.to)
			equalNames(t, out, tt.want...)
			for i, s := range out {
				if s.Order != i+1 {
					t.Errorf("%s order = %d, want %d", s.Name, s.Order, i+1)
				}
			}
		})
	}
}

func TestReorder_DoesNotMutateInput(t *testing.T) {
	base := pipeline("A", "B", "C")
	_ = Reorder(base, 0, 2)
	equalNames(t, base, "A", "B", "C")
	if base[0].Order != 1 {
		t.Errorf("input order changed to %d", base[0].Order)
	}
}

func TestInsertAfter_ShiftsLaterStages(t *testing.T) {
	base := pipeline("Todo", "Doing", "Done")
	out, idx, err := InsertAfter(base, "s-Doing", Stage{ID: "new", Name: "Review", IsActive: true, IsEditable: true})
	if err != nil {
		t.Fatalf("InsertAfter: %v", err)
	}
	if idx != 2 {
		t.Errorf("idx = %d, want 2", idx)
	}
	equalNames(t, out, "Todo", "Doing", "Review", "Done")
	want := map[string]int{"Todo": 1, "Doing": 2, "Review": 3, "Done": 4}
	for _, s := range out {
		if s.Order != want[s.Name] {
			t.Errorf("%s order = %d, want %d", s.Name, s.Order, want[s.Name])
		}
	}
}

func TestInsertAfter_UnknownStage(t *testing.T) {
	_, _, err := InsertAfter(pipeline("A"), "missing", Stage{ID: "x"})
	if !errors.Is(err, ErrStageNotFound) {
		t.Fatalf("err = %v, want ErrStageNotFound", err)
	}
}

func TestRemoveStage_Renumbers(t *testing.T) {
	out, err := RemoveStage(pipeline("A", "B", "C"), "s-B")
	if err != nil {
		t.Fatal(err)
	}
	equalNames(t, out, "A", "C")
	if err := ValidateOrder(out); err != nil {
		t.Fatal(err)
	}
}

func TestValidateOrder_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
	}{
		{"gap", []Stage{{ID: "a", Order: 1}, {ID: "b", Order: 3}}},
		{"duplicate order", []Stage{{ID: "a", Order: 1}, {ID: "b", Order: 1}}},
		{"duplicate id", []Stage{{ID: "a", Order: 1}, {ID: "a", Order: 2}}},
		{"zero", []Stage{{ID: "a", Order: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateOrder(tt.stages); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCheckMove_ProtectedBoundaries(t *testing.T) {
	stages := pipeline("Backlog", "Doing", "Review", "Closed")
	stages[0].IsEditable = false
	stages[3].IsEditable = false

	tests := []struct {
		name     string
		from, to int
		ok       bool
	}{
		{"middle swap", 1, 2, true},
		{"protected source", 0, 1, false},
		{"before protected first", 2, 0, false},
		{"after protected last", 1, 3, false},
		{"out of range", 1, 9, false},
		{"unknown source", -1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckMove(stages, tt.from, tt.to)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestActiveStages(t *testing.T) {
	stages := pipeline("A", "B", "C")
	stages[1].IsActive = false
	equalNames(t, ActiveStages(stages), "A", "C")
}

func TestValidateStageName(t *testing.T) {
	name, err := ValidateStageName("add stage", "  Review ")
	if err != nil || name != "Review" {
		t.Fatalf("got %q, %v", name, err)
	}
	if _, err := ValidateStageName("add stage", "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}
