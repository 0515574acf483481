package pg

import (
	"context"
	"database/sql"

	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/dashboard"
	"opsdeck.io/internal/workspace"
)

// Dashboard counts records for the stats endpoint. Scoped counts reuse the
// same team-set binding as the list queries.
type Dashboard struct {
	db *sql.DB
}

var _ dashboard.Store = (*Dashboard)(nil)

func (s *Dashboard) UserCounts(ctx context.Context) (int, int, error) {
	var total, active int
	err := s.db.QueryRowContext(ctx, `
		select count(*), count(*) filter (where is_active)
		from users
	`).Scan(&total, &active)
	return total, active, err
}

func (s *Dashboard) RoleCount(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `select count(*) from roles`).Scan(&total)
	return total, err
}

func (s *Dashboard) TeamCount(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `select count(*) from teams`).Scan(&total)
	return total, err
}

func (s *Dashboard) ProjectCounts(ctx context.Context, scope auth.ScopeFilter) (int, int, error) {
	query := `
		select count(*), count(*) filter (where p.status = 'active')
		from projects p
	`
	args := []any{}
	if !scope.Unrestricted() {
		args = append(args, teamSet(scope))
		query += ` where p.team_id = any($1)`
	}
	var total, active int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&total, &active)
	return total, active, err
}

func (s *Dashboard) TaskCounts(ctx context.Context, scope auth.ScopeFilter) (int, int, int, error) {
	query := `
		select count(*),
		       count(*) filter (where k.status = $1),
		       count(*) filter (where k.status in ($2, $3))
		from tasks k
		join projects p on p.id = k.project_id
	`
	args := []any{workspace.TaskDone, workspace.TaskTodo, workspace.TaskInProgress}
	if !scope.Unrestricted() {
		args = append(args, teamSet(scope))
		query += ` where p.team_id = any($4)`
	}
	var total, completed, pending int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&total, &completed, &pending)
	return total, completed, pending, err
}

func (s *Dashboard) DocumentCount(ctx context.Context, scope auth.ScopeFilter) (int, error) {
	query := `
		select count(*)
		from documents d
		join projects p on p.id = d.project_id
	`
	args := []any{}
	if !scope.Unrestricted() {
		args = append(args, teamSet(scope))
		query += ` where p.team_id = any($1)`
	}
	var total int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&total)
	return total, err
}
