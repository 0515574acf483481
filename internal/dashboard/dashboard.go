// Package dashboard aggregates workspace counters for the landing page.
// User and role totals are always instance-wide; team, project, task and
// document totals honor the caller's scope filter.
package dashboard

import (
	"context"
	"errors"

	"opsdeck.io/internal/auth"
)

// Stats is the landing page counter set.
type Stats struct {
	Users     UserStats    `json:"users"`
	Roles     Counter      `json:"roles"`
	Teams     Counter      `json:"teams"`
	Projects  ProjectStats `json:"projects"`
	Tasks     TaskStats    `json:"tasks"`
	Documents Counter      `json:"documents"`
}

type UserStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

type Counter struct {
	Total int `json:"total"`
}

type ProjectStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

type TaskStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// Store counts records. Scoped counts must apply the filter the same way
// the list queries do, including the zero-rows rule for an empty team set.
type Store interface {
	UserCounts(ctx context.Context) (total, active int, err error)
	RoleCount(ctx context.Context) (int, error)
	TeamCount(ctx context.Context) (int, error)
	ProjectCounts(ctx context.Context, scope auth.ScopeFilter) (total, active int, err error)
	TaskCounts(ctx context.Context, scope auth.ScopeFilter) (total, completed, pending int, err error)
	DocumentCount(ctx context.Context, scope auth.ScopeFilter) (int, error)
}

// Service assembles the stats payload.
type Service struct {
	store Store
}

// NewService constructs the dashboard service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("dashboard: store is required")
	}
	return &Service{store: store}, nil
}

// Stats returns the counter set for the caller. A team-scoped caller sees
// their own team count and team-filtered workspace counts.
func (s *Service) Stats(ctx context.Context, scope auth.ScopeFilter) (*Stats, error) {
	usersTotal, usersActive, err := s.store.UserCounts(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := s.store.RoleCount(ctx)
	if err != nil {
		return nil, err
	}
	var teams int
	if scope.Unrestricted() {
		teams, err = s.store.TeamCount(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		teams = len(scope.TeamIDs)
	}
	projectsTotal, projectsActive, err := s.store.ProjectCounts(ctx, scope)
	if err != nil {
		return nil, err
	}
	tasksTotal, tasksCompleted, tasksPending, err := s.store.TaskCounts(ctx, scope)
	if err != nil {
		return nil, err
	}
	documents, err := s.store.DocumentCount(ctx, scope)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Users:     UserStats{Total: usersTotal, Active: usersActive},
		Roles:     Counter{Total: roles},
		Teams:     Counter{Total: teams},
		Projects:  ProjectStats{Total: projectsTotal, Active: projectsActive},
		Tasks:     TaskStats{Total: tasksTotal, Completed: tasksCompleted, Pending: tasksPending},
		Documents: Counter{Total: documents},
	}, nil
}
