package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/ids"
	"opsdeck.io/internal/workspace"
)

// orderClause renders the normalized pagination into SQL. The sort column
// has already been validated against an allow list upstream.
func orderClause(alias string, page workspace.Pagination) string {
	dir := "desc"
	if strings.EqualFold(page.SortOrder, "asc") {
		dir = "asc"
	}
	return fmt.Sprintf(" order by %s.%s %s limit %d offset %d", alias, page.SortBy, dir, page.Limit, page.Offset())
}

// Teams persists teams and their member lists.
type Teams struct {
	db *sql.DB
}

var _ workspace.TeamStore = (*Teams)(nil)

func (s *Teams) Create(ctx context.Context, team *workspace.Team) error {
	if team.ID == "" {
		team.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into teams (id, name, description, created_by_id)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, team.ID, team.Name, nullIfEmpty(team.Description), nullIfEmpty(team.CreatedByID)).
		Scan(&team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	if team.Members == nil {
		team.Members = []workspace.UserRef{}
	}
	return nil
}

func (s *Teams) Get(ctx context.Context, id string) (*workspace.Team, error) {
	var (
		team      workspace.Team
		desc      sql.NullString
		createdBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_by_id, created_at, updated_at
		from teams where id = $1
	`, id).Scan(&team.ID, &team.Name, &desc, &createdBy, &team.CreatedAt, &team.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	team.Description = desc.String
	team.CreatedByID = createdBy.String

	members, err := s.members(ctx, s.db, team.ID)
	if err != nil {
		return nil, err
	}
	team.Members = members
	return &team, nil
}

func (s *Teams) List(ctx context.Context, scope auth.ScopeFilter, page workspace.Pagination) ([]workspace.Team, int, error) {
	where := ""
	args := []any{}
	if !scope.Unrestricted() {
		args = append(args, teamSet(scope))
		where = " where t.id = any($1)"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from teams t`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select t.id, t.name, t.description, t.created_by_id, t.created_at, t.updated_at
		from teams t`+where+orderClause("t", page), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	teams := []workspace.Team{}
	for rows.Next() {
		var (
			team      workspace.Team
			desc      sql.NullString
			createdBy sql.NullString
		)
		if err := rows.Scan(&team.ID, &team.Name, &desc, &createdBy, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, 0, err
		}
		team.Description = desc.String
		team.CreatedByID = createdBy.String
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range teams {
		members, err := s.members(ctx, s.db, teams[i].ID)
		if err != nil {
			return nil, 0, err
		}
		teams[i].Members = members
	}
	return teams, total, nil
}

func (s *Teams) Update(ctx context.Context, team *workspace.Team) error {
	res, err := s.db.ExecContext(ctx, `
		update teams set name = $2, description = $3, updated_at = now()
		where id = $1
	`, team.ID, team.Name, nullIfEmpty(team.Description))
	if err != nil {
		return mapWriteError(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Teams) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from teams where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// SetMembers replaces the member list wholesale. Unknown user ids are
// dropped.
func (s *Teams) SetMembers(ctx context.Context, teamID string, userIDs []string) ([]workspace.UserRef, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from teams where id = $1`, teamID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `delete from team_members where team_id = $1`, teamID); err != nil {
		return nil, err
	}
	for _, id := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into team_members (team_id, user_id)
			select $1, id from users where id = $2
			on conflict do nothing
		`, teamID, id); err != nil {
			return nil, err
		}
	}
	members, err := s.members(ctx, tx, teamID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Teams) members(ctx context.Context, q queryer, teamID string) ([]workspace.UserRef, error) {
	rows, err := q.QueryContext(ctx, `
		select u.id, u.name, u.email
		from team_members tm
		join users u on u.id = tm.user_id
		where tm.team_id = $1
		order by u.name
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []workspace.UserRef{}
	for rows.Next() {
		var ref workspace.UserRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Email); err != nil {
			return nil, err
		}
		members = append(members, ref)
	}
	return members, rows.Err()
}

// Projects persists projects. Scope applies on the project's own team id.
type Projects struct {
	db *sql.DB
}

var _ workspace.ProjectStore = (*Projects)(nil)

const projectSelect = `
	select p.id, p.name, p.description, p.status, p.team_id, t.name,
	       p.created_by_id, p.created_at, p.updated_at
	from projects p
	left join teams t on t.id = p.team_id
`

func (s *Projects) Create(ctx context.Context, project *workspace.Project) error {
	if project.ID == "" {
		project.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into projects (id, name, description, status, team_id, created_by_id)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, project.ID, project.Name, nullIfEmpty(project.Description), project.Status,
		nullIfEmpty(project.TeamID), nullIfEmpty(project.CreatedByID)).
		Scan(&project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Projects) Get(ctx context.Context, id string) (*workspace.Project, error) {
	row := s.db.QueryRowContext(ctx, projectSelect+` where p.id = $1`, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *Projects) List(ctx context.Context, scope auth.ScopeFilter, filter workspace.ProjectFilter, page workspace.Pagination) ([]workspace.Project, int, error) {
	where := []string{}
	args := []any{}
	if !scope.Unrestricted() {
		args = append(args, teamSet(scope))
		where = append(where, fmt.Sprintf("p.team_id = any($%d)", len(args)))
	}
	if filter.TeamID != "" {
		args = append(args, filter.TeamID)
		where = append(where, fmt.Sprintf("p.team_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from projects p`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, projectSelect+clause+orderClause("p", page), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	projects := []workspace.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, *project)
	}
	return projects, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*workspace.Project, error) {
	var (
		project   workspace.Project
		desc      sql.NullString
		teamID    sql.NullString
		teamName  sql.NullString
		createdBy sql.NullString
	)
	err := row.Scan(&project.ID, &project.Name, &desc, &project.Status, &teamID, &teamName,
		&createdBy, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return nil, err
	}
	project.Description = desc.String
	project.TeamID = teamID.String
	project.TeamName = teamName.String
	project.CreatedByID = createdBy.String
	return &project, nil
}

func (s *Projects) Update(ctx context.Context, project *workspace.Project) error {
	res, err := s.db.ExecContext(ctx, `
		update projects
		set name = $2, description = $3, status = $4, team_id = $5, updated_at = now()
		where id = $1
	`, project.ID, project.Name, nullIfEmpty(project.Description), project.Status, nullIfEmpty(project.TeamID))
	if err != nil {
		return mapWriteError(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Projects) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from projects where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Tasks persists tasks. The owning team resolves through the parent
// project, which is how scope filtering applies.
type Tasks struct {
	db *sql.DB
}

var _ workspace.TaskStore = (*Tasks)(nil)

const taskSelect = `
	select k.id, k.title, k.description, k.status, k.priority,
	       k.project_id, p.name, p.team_id,
	       u.id, u.name, u.email,
	       k.created_by_id, k.due_date, k.created_at, k.updated_at
	from tasks k
	join projects p on p.id = k.project_id
	left join users u on u.id = k.assignee_id
`

func (s *Tasks) Create(ctx context.Context, task *workspace.Task) error {
	if task.ID == "" {
		task.ID = ids.New()
	}
	var assignee sql.NullString
	if task.Assignee != nil {
		assignee = sql.NullString{String: task.Assignee.ID, Valid: true}
	}
	var due sql.NullTime
	if task.DueDate != nil {
		due = sql.NullTime{Time: *task.DueDate, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		insert into tasks (id, title, description, status, priority, project_id, assignee_id, created_by_id, due_date)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, task.ID, task.Title, nullIfEmpty(task.Description), task.Status, task.Priority,
		task.ProjectID, assignee, nullIfEmpty(task.CreatedByID), due).
		Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Tasks) Get(ctx context.Context, id string) (*workspace.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+` where k.id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Tasks) List(ctx context.Context, scope auth.ScopeFilter, filter workspace.TaskFilter, page workspace.Pagination) ([]workspace.Task, int, error) {
	where := []string{}
	args := []any{}
	if !scope.Unrestricted() {
		args = append(args, teamSet(scope))
		where = append(where, fmt.Sprintf("p.team_id = any($%d)", len(args)))
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		where = append(where, fmt.Sprintf("k.project_id = $%d", len(args)))
	}
	switch {
	case filter.AssigneeID == workspace.Unassigned:
		where = append(where, "k.assignee_id is null")
	case filter.AssigneeID != "":
		args = append(args, filter.AssigneeID)
		where = append(where, fmt.Sprintf("k.assignee_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("k.status = $%d", len(args)))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		where = append(where, fmt.Sprintf("k.priority = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from tasks k join projects p on p.id = k.project_id`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, taskSelect+clause+orderClause("k", page), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tasks := []workspace.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, total, rows.Err()
}

func scanTask(row rowScanner) (*workspace.Task, error) {
	var (
		task          workspace.Task
		desc          sql.NullString
		teamID        sql.NullString
		assigneeID    sql.NullString
		assigneeName  sql.NullString
		assigneeEmail sql.NullString
		createdBy     sql.NullString
		due           sql.NullTime
	)
	err := row.Scan(&task.ID, &task.Title, &desc, &task.Status, &task.Priority,
		&task.ProjectID, &task.ProjectName, &teamID,
		&assigneeID, &assigneeName, &assigneeEmail,
		&createdBy, &due, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	task.Description = desc.String
	task.TeamID = teamID.String
	task.CreatedByID = createdBy.String
	if assigneeID.Valid {
		task.Assignee = &workspace.UserRef{
			ID:    assigneeID.String,
			Name:  assigneeName.String,
			Email: assigneeEmail.String,
		}
	}
	if due.Valid {
		t := due.Time
		task.DueDate = &t
	}
	return &task, nil
}

func (s *Tasks) Update(ctx context.Context, task *workspace.Task) error {
	var due sql.NullTime
	if task.DueDate != nil {
		due = sql.NullTime{Time: *task.DueDate, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		update tasks
		set title = $2, description = $3, status = $4, priority = $5, due_date = $6, updated_at = now()
		where id = $1
	`, task.ID, task.Title, nullIfEmpty(task.Description), task.Status, task.Priority, due)
	if err != nil {
		return mapWriteError(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Tasks) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tasks where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Tasks) Assign(ctx context.Context, taskID string, assigneeID *string) error {
	var assignee sql.NullString
	if assigneeID != nil {
		var exists int
		err := s.db.QueryRowContext(ctx, `select 1 from users where id = $1`, *assigneeID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: assignee not found", auth.ErrNotFound)
		}
		if err != nil {
			return err
		}
		assignee = sql.NullString{String: *assigneeID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		update tasks set assignee_id = $2, updated_at = now() where id = $1
	`, taskID, assignee)
	if err != nil {
		return mapWriteError(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Documents persists documents. Scope resolves through the parent project,
// like tasks.
type Documents struct {
	db *sql.DB
}

var _ workspace.DocumentStore = (*Documents)(nil)

const documentSelect = `
	select d.id, d.title, d.content, d.project_id, p.name, p.team_id,
	       d.created_by_id, d.created_at, d.updated_at
	from documents d
	join projects p on p.id = d.project_id
`

func (s *Documents) Create(ctx context.Context, doc *workspace.Document) error {
	if doc.ID == "" {
		doc.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into documents (id, title, content, project_id, created_by_id)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, doc.ID, doc.Title, nullIfEmpty(doc.Content), doc.ProjectID, nullIfEmpty(doc.CreatedByID)).
		Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Documents) Get(ctx context.Context, id string) (*workspace.Document, error) {
	row := s.db.QueryRowContext(ctx, documentSelect+` where d.id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Documents) List(ctx context.Context, scope auth.ScopeFilter, filter workspace.DocumentFilter, page workspace.Pagination) ([]workspace.Document, int, error) {
	where := []string{}
	args := []any{}
	if !scope.Unrestricted() {
		args = append(args, teamSet(scope))
		where = append(where, fmt.Sprintf("p.team_id = any($%d)", len(args)))
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		where = append(where, fmt.Sprintf("d.project_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from documents d join projects p on p.id = d.project_id`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, documentSelect+clause+orderClause("d", page), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	docs := []workspace.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	return docs, total, rows.Err()
}

func scanDocument(row rowScanner) (*workspace.Document, error) {
	var (
		doc       workspace.Document
		content   sql.NullString
		teamID    sql.NullString
		createdBy sql.NullString
	)
	err := row.Scan(&doc.ID, &doc.Title, &content, &doc.ProjectID, &doc.ProjectName, &teamID,
		&createdBy, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Content = content.String
	doc.TeamID = teamID.String
	doc.CreatedByID = createdBy.String
	return &doc, nil
}

func (s *Documents) Update(ctx context.Context, doc *workspace.Document) error {
	res, err := s.db.ExecContext(ctx, `
		update documents set title = $2, content = $3, updated_at = now()
		where id = $1
	`, doc.ID, doc.Title, nullIfEmpty(doc.Content))
	if err != nil {
		return mapWriteError(err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Documents) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from documents where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
