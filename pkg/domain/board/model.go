// Package board defines the task board domain: stages, tasks, attachments,
// comments and notifications, plus the pure algorithms that keep a stage
// pipeline well ordered.
package board

import (
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Role is a member's role inside a project.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleManager   Role = "manager"
	RoleDeveloper Role = "developer"
)

// Elevated reports whether the role may act on other members' content.
func (r Role) Elevated() bool {
	return r == RoleOwner || r == RoleManager
}

// UserRef is the embedded user record the server returns for assignees,
// authors and uploaders.
type UserRef struct {
	ID     string `json:"_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Stage is one step of a project's workflow.
type Stage struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
	IsActive   bool   `json:"isActive"`
	IsEditable bool   `json:"isEditable"`
}

// ProjectConfig is the canonical stage pipeline of a project.
type ProjectConfig struct {
	ProjectID string  `json:"projectId"`
	Stages    []Stage `json:"TaskStages"`
}

type ProjectMember struct {
	User UserRef `json:"user"`
	Role Role    `json:"role"`
}

type Project struct {
	ID          string          `json:"_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Members     []ProjectMember `json:"members"`
}

// Task is a unit of work on the board. StageID is serialized as "status"
// because the server keeps the stage reference under that name.
type Task struct {
	ID          string       `json:"_id"`
	ProjectID   string       `json:"projectId"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	StageID     string       `json:"status"`
	Priority    Priority     `json:"priority"`
	Assignee    *UserRef     `json:"assignee,omitempty"`
	DueDate     *time.Time   `json:"dueDate,omitempty"`
	Tags        []string     `json:"tags"`
	Attachments []Attachment `json:"attachments"`
	Comments    []Comment    `json:"comments"`
	CreatedBy   *UserRef     `json:"createdBy,omitempty"`
	UpdatedBy   *UserRef     `json:"updatedBy,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy so cached records never share slices with callers.
func (t Task) Clone() Task {
	c := t
	if t.Assignee != nil {
		a := *t.Assignee
		c.Assignee = &a
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.CreatedBy != nil {
		u := *t.CreatedBy
		c.CreatedBy = &u
	}
	if t.UpdatedBy != nil {
		u := *t.UpdatedBy
		c.UpdatedBy = &u
	}
	c.Tags = append([]string(nil), t.Tags...)
	c.Attachments = append([]Attachment(nil), t.Attachments...)
	c.Comments = append([]Comment(nil), t.Comments...)
	return c
}

// TaskInput carries the editable fields of a task for create and edit calls.
type TaskInput struct {
	ID              string
	ProjectID       string
	Title           string
	Description     string
	StageID         string
	Priority        Priority
	AssigneeID      string
	DueDate         *time.Time
	Tags            []string
	Files           []PendingFile
	DeleteFileNames []string
}

// Comment is a task comment. ID is server assigned and globally unique.
type Comment struct {
	ID        string    `json:"_id"`
	Author    UserRef   `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c Comment) Identity() string { return c.ID }

// Notification is a user-scoped notice pushed by the server.
type Notification struct {
	ID        string    `json:"_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

func (n Notification) Identity() string { return n.ID }

// ActivityField names the task field an activity entry changed.
type ActivityField string

const (
	FieldTitle       ActivityField = "title"
	FieldDescription ActivityField = "description"
	FieldStatus      ActivityField = "status"
	FieldPriority    ActivityField = "priority"
	FieldAssignee    ActivityField = "assignee"
	FieldDueDate     ActivityField = "dueDate"
	FieldAttachments ActivityField = "attachments"
)

type ActivityChange struct {
	Field    ActivityField `json:"field"`
	OldValue *string       `json:"oldValue"`
	NewValue *string       `json:"newValue"`
}

// TaskActivity is one entry of a task's audit timeline.
type TaskActivity struct {
	ID          string          `json:"_id"`
	TaskID      string          `json:"taskId"`
	PerformedBy UserRef         `json:"performedBy"`
	PerformedAt time.Time       `json:"performedAt"`
	Action      *ActivityChange `json:"action,omitempty"`
}
