package auth

// SystemRole describes a built-in role installed at bootstrap. Permission
// strings reference the builtin catalog; the sentinel "*" expands to the
// whole catalog.
type SystemRole struct {
	Name        string
	Description string
	Scope       RoleScope
	Permissions []string
}

// SystemRoles returns the built-in roles. Their names and scopes are fixed;
// only their permission sets may be reassigned afterwards.
func SystemRoles() []SystemRole {
	return []SystemRole{
		{
			Name:        "Super Admin",
			Description: "Full system access including role management",
			Scope:       ScopeGlobal,
			Permissions: []string{Wildcard},
		},
		{
			Name:        "Admin",
			Description: "Full resource management without role control",
			Scope:       ScopeGlobal,
			Permissions: []string{
				"users:read", "users:create", "users:update", "users:delete",
				"roles:read",
				"teams:read", "teams:create", "teams:update", "teams:delete", "teams:assign",
				"projects:read", "projects:create", "projects:update", "projects:delete", "projects:assign", "projects:export",
				"tasks:read", "tasks:create", "tasks:update", "tasks:delete", "tasks:assign",
				"documents:read", "documents:create", "documents:update", "documents:delete", "documents:export",
				"audit:read",
				"dashboard:view",
			},
		},
		{
			Name:        "Manager",
			Description: "Team-scoped resource management",
			Scope:       ScopeTeam,
			Permissions: []string{
				"users:read",
				"teams:read",
				"projects:read", "projects:update", "projects:assign", "projects:export",
				"tasks:read", "tasks:create", "tasks:update", "tasks:delete", "tasks:assign",
				"documents:read", "documents:create", "documents:update", "documents:delete", "documents:export",
				"dashboard:view",
			},
		},
		{
			Name:        "Viewer",
			Description: "Read-only access",
			Scope:       ScopeTeam,
			Permissions: []string{
				"users:read", "teams:read", "projects:read", "tasks:read", "documents:read", "dashboard:view",
			},
		},
	}
}

// ExpandSystemRole resolves a system role's permission strings against the
// builtin catalog. The "*" sentinel yields every catalog entry.
func ExpandSystemRole(r SystemRole) []Permission {
	if len(r.Permissions) == 1 && r.Permissions[0] == Wildcard {
		out := make([]Permission, len(BuiltinPermissions))
		copy(out, BuiltinPermissions)
		return out
	}
	want := make(map[string]struct{}, len(r.Permissions))
	for _, s := range r.Permissions {
		want[s] = struct{}{}
	}
	out := make([]Permission, 0, len(want))
	for _, p := range BuiltinPermissions {
		if _, ok := want[p.String()]; ok {
			out = append(out, p)
		}
	}
	return out
}
