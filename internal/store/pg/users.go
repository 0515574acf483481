package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/ids"
)

// Users loads users with role, permission set and team memberships
// resolved in one shot, ready for token issuance, and carries the
// administrative operations.
type Users struct {
	db *sql.DB
}

var _ auth.UserAdminStore = (*Users)(nil)

const userSelect = `
	select u.id, u.email, u.name, u.password_hash, u.is_active,
	       u.created_at, u.updated_at,
	       r.id, r.name, r.description, r.scope, r.is_system,
	       r.created_at, r.updated_at
	from users u
	join roles r on r.id = u.role_id
`

func (s *Users) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, userSelect+` where lower(u.email) = lower($1)`, email)
	return s.hydrate(ctx, row)
}

func (s *Users) FindByID(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, userSelect+` where u.id = $1`, id)
	return s.hydrate(ctx, row)
}

func (s *Users) hydrate(ctx context.Context, row *sql.Row) (*auth.User, error) {
	var (
		user auth.User
		desc sql.NullString
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt,
		&user.Role.ID, &user.Role.Name, &desc, &user.Role.Scope, &user.Role.IsSystem,
		&user.Role.CreatedAt, &user.Role.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		user.Role.Description = desc.String
	}
	user.RoleID = user.Role.ID

	perms, err := rolePermissions(ctx, s.db, user.Role.ID)
	if err != nil {
		return nil, err
	}
	user.Role.Permissions = perms

	teams, err := s.teamRefs(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Teams = teams
	return &user, nil
}

// List returns users with role and team memberships hydrated. Permission
// sets are left empty; listings never need them.
func (s *Users) List(ctx context.Context, q auth.UserQuery) ([]auth.User, int, error) {
	where := ""
	args := []any{}
	if q.RoleID != "" {
		args = append(args, q.RoleID)
		where += fmt.Sprintf(" and u.role_id = $%d", len(args))
	}
	if q.IsActive != nil {
		args = append(args, *q.IsActive)
		where += fmt.Sprintf(" and u.is_active = $%d", len(args))
	}
	clause := ` where true` + where

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users u`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// Sort column and direction come normalized from UserQuery.
	order := fmt.Sprintf(" order by u.%s %s limit %d offset %d", q.SortBy, q.SortOrder, q.Limit, q.Offset())
	rows, err := s.db.QueryContext(ctx, userSelect+clause+order, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []auth.User{}
	for rows.Next() {
		var (
			user auth.User
			desc sql.NullString
		)
		if err := rows.Scan(
			&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.IsActive,
			&user.CreatedAt, &user.UpdatedAt,
			&user.Role.ID, &user.Role.Name, &desc, &user.Role.Scope, &user.Role.IsSystem,
			&user.Role.CreatedAt, &user.Role.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		if desc.Valid {
			user.Role.Description = desc.String
		}
		user.RoleID = user.Role.ID
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range users {
		teams, err := s.teamRefs(ctx, users[i].ID)
		if err != nil {
			return nil, 0, err
		}
		users[i].Teams = teams
	}
	return users, total, nil
}

func (s *Users) Create(ctx context.Context, user *auth.User) error {
	if user.ID == "" {
		user.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into users (id, email, name, password_hash, role_id, is_active)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.RoleID, user.IsActive).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Users) Update(ctx context.Context, user *auth.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set email = $2, name = $3, password_hash = $4, role_id = $5, is_active = $6, updated_at = now()
		where id = $1
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.RoleID, user.IsActive)
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

func (s *Users) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
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

func (s *Users) teamRefs(ctx context.Context, userID string) ([]auth.TeamRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		select t.id, t.name
		from team_members tm
		join teams t on t.id = tm.team_id
		where tm.user_id = $1
		order by t.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []auth.TeamRef{}
	for rows.Next() {
		var ref auth.TeamRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
