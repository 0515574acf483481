package workspace

import (
	"context"

	"opsdeck.io/internal/auth"
)

// TaskFilter narrows task list queries. AssigneeID accepts the sentinel
// "unassigned" to match tasks with no assignee.
type TaskFilter struct {
	ProjectID  string
	AssigneeID string
	Status     TaskStatus
	Priority   TaskPriority
}

// Unassigned is the AssigneeID sentinel matching tasks without an assignee.
const Unassigned = "unassigned"

// ProjectFilter narrows project list queries.
type ProjectFilter struct {
	TeamID string
	Status ProjectStatus
}

// DocumentFilter narrows document list queries.
type DocumentFilter struct {
	ProjectID string
}

// TeamStore persists teams and their member lists.
type TeamStore interface {
	Create(ctx context.Context, team *Team) error
	Get(ctx context.Context, id string) (*Team, error)
	List(ctx context.Context, scope auth.ScopeFilter, page Pagination) ([]Team, int, error)
	Update(ctx context.Context, team *Team) error
	Delete(ctx context.Context, id string) error
	// SetMembers replaces the team's member list wholesale. Unknown user ids
	// are dropped.
	SetMembers(ctx context.Context, teamID string, userIDs []string) ([]UserRef, error)
}

// ProjectStore persists projects. List and Get apply the scope filter on the
// project's own team id.
type ProjectStore interface {
	Create(ctx context.Context, project *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	List(ctx context.Context, scope auth.ScopeFilter, filter ProjectFilter, page Pagination) ([]Project, int, error)
	Update(ctx context.Context, project *Project) error
	Delete(ctx context.Context, id string) error
}

// TaskStore persists tasks. The owning team resolves through the parent
// project, which is how the scope filter is applied.
type TaskStore interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, scope auth.ScopeFilter, filter TaskFilter, page Pagination) ([]Task, int, error)
	Update(ctx context.Context, task *Task) error
	Delete(ctx context.Context, id string) error
	Assign(ctx context.Context, taskID string, assigneeID *string) error
}

// DocumentStore persists documents. Scope resolves through the parent
// project, like tasks.
type DocumentStore interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, scope auth.ScopeFilter, filter DocumentFilter, page Pagination) ([]Document, int, error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id string) error
}
