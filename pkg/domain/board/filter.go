package board

import "strings"

// TaskFilter narrows the board view. Zero values match everything.
type TaskFilter struct {
	StageID    string
	Priority   Priority
	AssigneeID string
	Search     string
}

// Empty reports whether the filter matches every task.
func (f TaskFilter) Empty() bool {
	return f.StageID == "" && f.Priority == "" && f.AssigneeID == "" && strings.TrimSpace(f.Search) == ""
}

// Match reports whether t passes the filter. Search is a case-insensitive
// substring match on title and description.
func (f TaskFilter) Match(t Task) bool {
	if f.StageID != "" && t.StageID != f.StageID {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.AssigneeID != "" && (t.Assignee == nil || t.Assignee.ID != f.AssigneeID) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	return true
}
