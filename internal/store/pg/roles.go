package pg

import (
	"context"
	"database/sql"
	"errors"

	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/ids"
)

// Roles persists roles and their permission assignments.
type Roles struct {
	db *sql.DB
}

var _ auth.RoleStore = (*Roles)(nil)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func rolePermissions(ctx context.Context, q queryer, roleID string) ([]auth.Permission, error) {
	rows, err := q.QueryContext(ctx, `
		select p.id, p.resource, p.action, p.description, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.resource, p.action
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []auth.Permission{}
	for rows.Next() {
		var (
			p    auth.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &desc, &p.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			p.Description = desc.String
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *Roles) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, scope, is_system)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, role.ID, role.Name, nullIfEmpty(role.Description), role.Scope, role.IsSystem).
		Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	if role.Permissions == nil {
		role.Permissions = []auth.Permission{}
	}
	return nil
}

func (s *Roles) Get(ctx context.Context, id string) (*auth.Role, error) {
	return s.one(ctx, `where id = $1`, id)
}

func (s *Roles) GetByName(ctx context.Context, name string) (*auth.Role, error) {
	return s.one(ctx, `where name = $1`, name)
}

func (s *Roles) one(ctx context.Context, where string, arg any) (*auth.Role, error) {
	var (
		role auth.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, scope, is_system, created_at, updated_at
		from roles `+where, arg).
		Scan(&role.ID, &role.Name, &desc, &role.Scope, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	perms, err := rolePermissions(ctx, s.db, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

func (s *Roles) List(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, scope, is_system, created_at, updated_at
		from roles
		order by is_system desc, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []auth.Role{}
	for rows.Next() {
		var (
			role auth.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.Scope, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		perms, err := rolePermissions(ctx, s.db, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

func (s *Roles) Update(ctx context.Context, role *auth.Role) error {
	res, err := s.db.ExecContext(ctx, `
		update roles
		set name = $2, description = $3, scope = $4, updated_at = now()
		where id = $1
	`, role.ID, role.Name, nullIfEmpty(role.Description), role.Scope)
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

func (s *Roles) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
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

// SetPermissions replaces the role's assignments wholesale. Ids that do not
// resolve to catalog entries are dropped.
func (s *Roles) SetPermissions(ctx context.Context, roleID string, permissionIDs []string) ([]auth.Permission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return nil, err
	}
	for _, id := range permissionIDs {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			select $1, id from permissions where id = $2
			on conflict do nothing
		`, roleID, id); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `update roles set updated_at = now() where id = $1`, roleID); err != nil {
		return nil, err
	}

	perms, err := rolePermissions(ctx, tx, roleID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return perms, nil
}

// Permissions manages the immutable permission catalog.
type Permissions struct {
	db *sql.DB
}

var _ auth.PermissionStore = (*Permissions)(nil)

// Ensure inserts missing catalog entries. Existing pairs keep their id and
// pick up description changes.
func (s *Permissions) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (id, resource, action, description)
			values ($1, $2, $3, $4)
			on conflict (resource, action) do update set description = excluded.description
		`, id, p.Resource, p.Action, nullIfEmpty(p.Description)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Permissions) List(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, resource, action, description, created_at
		from permissions
		order by resource, action
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []auth.Permission{}
	for rows.Next() {
		var (
			p    auth.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &desc, &p.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			p.Description = desc.String
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
