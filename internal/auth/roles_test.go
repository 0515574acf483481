package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeRoleStore struct {
	roles  map[string]*Role
	nextID int
}

func newFakeRoleStore(roles ...*Role) *fakeRoleStore {
	s := &fakeRoleStore{roles: map[string]*Role{}}
	for _, r := range roles {
		s.roles[r.ID] = r
	}
	return s
}

func (s *fakeRoleStore) Create(_ context.Context, role *Role) error {
	s.nextID++
	role.ID = fmt.Sprintf("role-%d", s.nextID)
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *fakeRoleStore) Get(_ context.Context, id string) (*Role, error) {
	r, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeRoleStore) GetByName(_ context.Context, name string) (*Role, error) {
	for _, r := range s.roles {
		if strings.EqualFold(r.Name, name) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeRoleStore) List(_ context.Context) ([]Role, error) {
	out := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *r)
	}
	return out, nil
}

func (s *fakeRoleStore) Update(_ context.Context, role *Role) error {
	if _, ok := s.roles[role.ID]; !ok {
		return ErrNotFound
	}
	role.UpdatedAt = time.Now()
	cp := *role
	s.roles[role.ID] = &cp
	return nil
}

func (s *fakeRoleStore) Delete(_ context.Context, id string) error {
	if _, ok := s.roles[id]; !ok {
		return ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

func (s *fakeRoleStore) SetPermissions(_ context.Context, roleID string, permissionIDs []string) ([]Permission, error) {
	r, ok := s.roles[roleID]
	if !ok {
		return nil, ErrNotFound
	}
	catalog := make(map[string]Permission, len(BuiltinPermissions))
	for i, p := range BuiltinPermissions {
		p.ID = fmt.Sprintf("perm-%d", i+1)
		catalog[p.ID] = p
	}
	resolved := make([]Permission, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		if p, ok := catalog[id]; ok {
			resolved = append(resolved, p)
		}
	}
	r.Permissions = resolved
	return resolved, nil
}

type fakePermissionStore struct{}

func (fakePermissionStore) Ensure(context.Context, []Permission) error { return nil }
func (fakePermissionStore) List(context.Context) ([]Permission, error) {
	return BuiltinPermissions, nil
}

type fakeRecorder struct {
	events []AuditEvent
}

func (r *fakeRecorder) Record(_ context.Context, e AuditEvent) error {
	r.events = append(r.events, e)
	return nil
}

func (r *fakeRecorder) last(t *testing.T) AuditEvent {
	t.Helper()
	if len(r.events) == 0 {
		t.Fatalf("no audit event recorded")
	}
	return r.events[len(r.events)-1]
}

func newTestRoleService(t *testing.T, roles ...*Role) (*RoleService, *fakeRoleStore, *fakeRecorder) {
	t.Helper()
	store := newFakeRoleStore(roles...)
	rec := &fakeRecorder{}
	svc, err := NewRoleService(store, fakePermissionStore{}, rec)
	if err != nil {
		t.Fatalf("NewRoleService: %v", err)
	}
	return svc, store, rec
}

func systemRole() *Role {
	return &Role{
		ID:       "role-admin",
		Name:     "Admin",
		Scope:    ScopeGlobal,
		IsSystem: true,
	}
}

var testActor = Identity{UserID: "actor-1", Email: "superadmin@demo.com"}

func TestRoleCreate(t *testing.T) {
	svc, _, rec := newTestRoleService(t)

	role, err := svc.Create(context.Background(), testActor, CreateRole{Name: "  Support  ", Description: "Support staff"}, "10.0.0.1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if role.Name != "Support" {
		t.Fatalf("name not trimmed: %q", role.Name)
	}
	if role.Scope != ScopeTeam {
		t.Fatalf("default scope should be team, got %s", role.Scope)
	}
	if role.IsSystem {
		t.Fatalf("created roles are never system roles")
	}

	e := rec.last(t)
	if e.Action != "CREATE" || e.ResourceType != "roles" || e.ResourceID != role.ID {
		t.Fatalf("unexpected audit event: %+v", e)
	}
	if e.ActorID != "actor-1" || e.IP != "10.0.0.1" {
		t.Fatalf("audit actor not recorded: %+v", e)
	}
}

func TestRoleCreateDuplicateName(t *testing.T) {
	svc, _, _ := newTestRoleService(t, systemRole())
	if _, err := svc.Create(context.Background(), testActor, CreateRole{Name: "Admin"}, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRoleCreateValidation(t *testing.T) {
	svc, _, _ := newTestRoleService(t)
	if _, err := svc.Create(context.Background(), testActor, CreateRole{Name: "   "}, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank name: got %v", err)
	}
	if _, err := svc.Create(context.Background(), testActor, CreateRole{Name: "X", Scope: "planet"}, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad scope: got %v", err)
	}
}

func TestRoleUpdateSystemRole(t *testing.T) {
	svc, _, rec := newTestRoleService(t, systemRole())

	rename := "Administrator"
	if _, err := svc.Update(context.Background(), testActor, "role-admin", RoleUpdate{Name: &rename}, ""); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("system role rename: got %v", err)
	}
	scope := ScopeTeam
	if _, err := svc.Update(context.Background(), testActor, "role-admin", RoleUpdate{Scope: &scope}, ""); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("system role scope change: got %v", err)
	}

	// Description stays editable on system roles.
	desc := "Updated description"
	role, err := svc.Update(context.Background(), testActor, "role-admin", RoleUpdate{Description: &desc}, "")
	if err != nil {
		t.Fatalf("Update description: %v", err)
	}
	if role.Description != desc {
		t.Fatalf("description not updated: %q", role.Description)
	}
	e := rec.last(t)
	if e.Action != "UPDATE" {
		t.Fatalf("expected UPDATE audit event, got %+v", e)
	}

	// Setting the same name is a no-op, not a violation.
	same := "Admin"
	if _, err := svc.Update(context.Background(), testActor, "role-admin", RoleUpdate{Name: &same}, ""); err != nil {
		t.Fatalf("same-name update on system role: %v", err)
	}
}

func TestRoleUpdateRenameCollision(t *testing.T) {
	custom := &Role{ID: "role-custom", Name: "Support", Scope: ScopeTeam}
	svc, _, _ := newTestRoleService(t, systemRole(), custom)

	taken := "Admin"
	if _, err := svc.Update(context.Background(), testActor, "role-custom", RoleUpdate{Name: &taken}, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("rename collision: got %v", err)
	}

	fresh := "Helpdesk"
	role, err := svc.Update(context.Background(), testActor, "role-custom", RoleUpdate{Name: &fresh}, "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if role.Name != "Helpdesk" {
		t.Fatalf("rename did not apply: %q", role.Name)
	}
}

func TestRoleDelete(t *testing.T) {
	custom := &Role{ID: "role-custom", Name: "Support", Scope: ScopeTeam}
	svc, store, rec := newTestRoleService(t, systemRole(), custom)

	if err := svc.Delete(context.Background(), testActor, "role-admin", ""); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("system role delete: got %v", err)
	}
	if err := svc.Delete(context.Background(), testActor, "role-custom", "10.0.0.2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(context.Background(), "role-custom"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("role not removed")
	}
	e := rec.last(t)
	if e.Action != "DELETE" || e.ResourceID != "role-custom" {
		t.Fatalf("unexpected audit event: %+v", e)
	}
	if err := svc.Delete(context.Background(), testActor, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing role delete: got %v", err)
	}
}

func TestRoleSetPermissions(t *testing.T) {
	custom := &Role{ID: "role-custom", Name: "Support", Scope: ScopeTeam}
	svc, _, rec := newTestRoleService(t, custom)

	// Unknown ids and duplicates are dropped without error.
	role, err := svc.SetPermissions(context.Background(), testActor, "role-custom", []string{"perm-1", "perm-2", "perm-2", "nope", ""}, "")
	if err != nil {
		t.Fatalf("SetPermissions: %v", err)
	}
	if len(role.Permissions) != 2 {
		t.Fatalf("expected 2 resolved permissions, got %v", role.Permissions)
	}

	e := rec.last(t)
	if e.Action != "UPDATE" {
		t.Fatalf("expected UPDATE audit event, got %+v", e)
	}
	newIDs, ok := e.NewValues["permissionIds"].([]string)
	if !ok || len(newIDs) != 2 {
		t.Fatalf("audit event missing new permission ids: %+v", e.NewValues)
	}

	// Wholesale replace: a second call with an empty list clears the set.
	role, err = svc.SetPermissions(context.Background(), testActor, "role-custom", nil, "")
	if err != nil {
		t.Fatalf("SetPermissions clear: %v", err)
	}
	if len(role.Permissions) != 0 {
		t.Fatalf("expected cleared permission set, got %v", role.Permissions)
	}
}
