// Package workspace holds the team-owned resource model: teams, projects,
// tasks and documents. Visibility of every record is governed by the
// caller's scope filter; ownership resolves to a team either directly or
// through the parent project.
package workspace

import "time"

// TaskStatus is the task workflow state.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s TaskStatus) bool {
	return s == TaskTodo || s == TaskInProgress || s == TaskDone
}

// TaskPriority orders tasks by urgency.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// ValidTaskPriority reports whether p is a known priority.
func ValidTaskPriority(p TaskPriority) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// ProjectStatus is the project lifecycle state.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

// ValidProjectStatus reports whether s is a known project status.
func ValidProjectStatus(s ProjectStatus) bool {
	return s == ProjectActive || s == ProjectCompleted || s == ProjectArchived
}

// UserRef is the user fragment embedded in workspace records.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Team owns projects and carries a member list. Teams are the unit of
// visibility for team-scoped callers.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedByID string    `json:"createdById,omitempty"`
	Members     []UserRef `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// MemberIDs returns the ids of the team's members.
func (t *Team) MemberIDs() []string {
	out := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		out = append(out, m.ID)
	}
	return out
}

// Project belongs to at most one team. Tasks and documents inherit their
// owning team from the project.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	TeamID      string        `json:"teamId,omitempty"`
	TeamName    string        `json:"teamName,omitempty"`
	CreatedByID string        `json:"createdById,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Task is a unit of work inside a project.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	ProjectID   string       `json:"projectId"`
	ProjectName string       `json:"projectName,omitempty"`
	TeamID      string       `json:"teamId,omitempty"`
	Assignee    *UserRef     `json:"assignee,omitempty"`
	CreatedByID string       `json:"createdById,omitempty"`
	DueDate     *time.Time   `json:"dueDate,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Document is free-form content attached to a project.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	ProjectID   string    `json:"projectId"`
	ProjectName string    `json:"projectName,omitempty"`
	TeamID      string    `json:"teamId,omitempty"`
	CreatedByID string    `json:"createdById,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
