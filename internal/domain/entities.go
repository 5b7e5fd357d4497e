// Package domain holds the entity records shared by every storage backend.
// Each record carries the same four audit/lifecycle fields: a soft-delete
// flag, the id of the user who last touched it, and creation/update times.
package domain

import "time"

// UserID identifies the acting user stamped into audit fields.
type UserID string

// Task lifecycle states.
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
)

// Member roles within a project.
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     UserID    `json:"owner_id"`
	Deleted     bool      `json:"deleted"`
	UpdatedBy   UserID    `json:"updated_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TaskList struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	Deleted   bool      `json:"deleted"`
	UpdatedBy UserID    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	ListID      string     `json:"list_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Deleted     bool       `json:"deleted"`
	UpdatedBy   UserID     `json:"updated_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type SubTask struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	Deleted   bool      `json:"deleted"`
	UpdatedBy UserID    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Tag struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Deleted   bool      `json:"deleted"`
	UpdatedBy UserID    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Member struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	UserID    UserID    `json:"user_id"`
	Role      string    `json:"role"`
	Deleted   bool      `json:"deleted"`
	UpdatedBy UserID    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Relation is a many-to-many association row, composite-keyed by
// (project_id, parent_id, child_id). Task tags, task assignments and task
// recurrence links all share this shape.
type Relation struct {
	ProjectID string    `json:"project_id"`
	ParentID  string    `json:"parent_id"`
	ChildID   string    `json:"child_id"`
	Deleted   bool      `json:"deleted"`
	UpdatedBy UserID    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
