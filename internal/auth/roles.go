package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AuditEvent captures a mutation for the audit trail.
type AuditEvent struct {
	ActorID      string
	ActorEmail   string
	Action       string
	ResourceType string
	ResourceID   string
	OldValues    map[string]any
	NewValues    map[string]any
	IP           string
}

// AuditRecorder persists audit events. Recording must complete before the
// request is considered handled; failures are logged by implementations but
// do not roll back the mutation.
type AuditRecorder interface {
	Record(ctx context.Context, event AuditEvent) error
}

// CreateRole is the input for RoleService.Create.
type CreateRole struct {
	Name          string
	Description   string
	Scope         RoleScope
	PermissionIDs []string
}

// RoleUpdate is a partial role patch. Nil fields are left untouched.
type RoleUpdate struct {
	Name        *string
	Description *string
	Scope       *RoleScope
}

// RoleService administers roles and their permission sets. Role is the
// aggregate root for permission assignment; the catalog itself is immutable
// reference data.
type RoleService struct {
	roles RoleStore
	perms PermissionStore
	audit AuditRecorder
}

// NewRoleService constructs the role administration service.
func NewRoleService(roles RoleStore, perms PermissionStore, audit AuditRecorder) (*RoleService, error) {
	if roles == nil || perms == nil || audit == nil {
		return nil, errors.New("auth: role store, permission store and audit recorder are required")
	}
	return &RoleService{roles: roles, perms: perms, audit: audit}, nil
}

// List returns all roles with their permission sets.
func (s *RoleService) List(ctx context.Context) ([]Role, error) {
	return s.roles.List(ctx)
}

// Get returns a single role.
func (s *RoleService) Get(ctx context.Context, id string) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.roles.Get(ctx, id)
}

// ListPermissions returns the full permission catalog.
func (s *RoleService) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.perms.List(ctx)
}

// Create adds a custom role. Fails with ErrConflict when the name is taken.
func (s *RoleService) Create(ctx context.Context, actor Identity, in CreateRole, clientIP string) (*Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if in.Scope == "" {
		in.Scope = ScopeTeam
	}
	if !ValidScope(in.Scope) {
		return nil, fmt.Errorf("%w: unsupported scope %q", ErrInvalidInput, in.Scope)
	}
	if existing, err := s.roles.GetByName(ctx, in.Name); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: role with this name already exists", ErrConflict)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	role := &Role{
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Scope:       in.Scope,
		IsSystem:    false,
		Permissions: []Permission{},
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	if len(in.PermissionIDs) > 0 {
		perms, err := s.roles.SetPermissions(ctx, role.ID, in.PermissionIDs)
		if err != nil {
			return nil, err
		}
		role.Permissions = perms
	}

	if err := s.audit.Record(ctx, AuditEvent{
		ActorID:      actor.UserID,
		ActorEmail:   actor.Email,
		Action:       "CREATE",
		ResourceType: "roles",
		ResourceID:   role.ID,
		NewValues:    map[string]any{"name": role.Name, "scope": role.Scope},
		IP:           clientIP,
	}); err != nil {
		return nil, err
	}
	return role, nil
}

// Update patches a role. System roles reject name and scope changes with
// ErrInvalidOperation; description stays editable. A rename onto an existing
// name fails with ErrConflict.
func (s *RoleService) Update(ctx context.Context, actor Identity, id string, upd RoleUpdate, clientIP string) (*Role, error) {
	role, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldValues := map[string]any{"name": role.Name, "scope": role.Scope}

	if role.IsSystem {
		if upd.Name != nil && strings.TrimSpace(*upd.Name) != role.Name {
			return nil, fmt.Errorf("%w: cannot rename system role", ErrInvalidOperation)
		}
		if upd.Scope != nil && *upd.Scope != role.Scope {
			return nil, fmt.Errorf("%w: cannot change scope of system role", ErrInvalidOperation)
		}
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		if name != role.Name {
			if existing, err := s.roles.GetByName(ctx, name); err == nil && existing != nil {
				return nil, fmt.Errorf("%w: role with this name already exists", ErrConflict)
			} else if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
		role.Name = name
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Scope != nil {
		if !ValidScope(*upd.Scope) {
			return nil, fmt.Errorf("%w: unsupported scope %q", ErrInvalidInput, *upd.Scope)
		}
		role.Scope = *upd.Scope
	}

	if err := s.roles.Update(ctx, role); err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, AuditEvent{
		ActorID:      actor.UserID,
		ActorEmail:   actor.Email,
		Action:       "UPDATE",
		ResourceType: "roles",
		ResourceID:   role.ID,
		OldValues:    oldValues,
		NewValues:    map[string]any{"name": role.Name, "scope": role.Scope},
		IP:           clientIP,
	}); err != nil {
		return nil, err
	}
	return role, nil
}

// Delete removes a custom role. System roles fail with ErrInvalidOperation.
func (s *RoleService) Delete(ctx context.Context, actor Identity, id, clientIP string) error {
	role, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: cannot delete system role", ErrInvalidOperation)
	}
	if err := s.roles.Delete(ctx, role.ID); err != nil {
		return err
	}
	return s.audit.Record(ctx, AuditEvent{
		ActorID:      actor.UserID,
		ActorEmail:   actor.Email,
		Action:       "DELETE",
		ResourceType: "roles",
		ResourceID:   role.ID,
		OldValues:    map[string]any{"name": role.Name, "scope": role.Scope},
		IP:           clientIP,
	})
}

// SetPermissions replaces the role's permission set wholesale with the
// catalog entries resolved from the given ids. Unknown ids are silently
// dropped. System roles accept permission reassignment.
func (s *RoleService) SetPermissions(ctx context.Context, actor Identity, id string, permissionIDs []string, clientIP string) (*Role, error) {
	role, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldIDs := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		oldIDs = append(oldIDs, p.ID)
	}

	perms, err := s.roles.SetPermissions(ctx, role.ID, dedupeStrings(permissionIDs))
	if err != nil {
		return nil, err
	}
	role.Permissions = perms

	newIDs := make([]string, 0, len(perms))
	for _, p := range perms {
		newIDs = append(newIDs, p.ID)
	}
	if err := s.audit.Record(ctx, AuditEvent{
		ActorID:      actor.UserID,
		ActorEmail:   actor.Email,
		Action:       "UPDATE",
		ResourceType: "roles",
		ResourceID:   role.ID,
		OldValues:    map[string]any{"permissionIds": oldIDs},
		NewValues:    map[string]any{"permissionIds": newIDs},
		IP:           clientIP,
	}); err != nil {
		return nil, err
	}
	return role, nil
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
