package auth

import "time"

// RoleScope controls data visibility for users holding the role.
type RoleScope string

const (
	// ScopeGlobal sees every record.
	ScopeGlobal RoleScope = "global"
	// ScopeTeam sees only records owned by the user's teams.
	ScopeTeam RoleScope = "team"
)

// ValidScope reports whether s is a known role scope.
func ValidScope(s RoleScope) bool { return s == ScopeGlobal || s == ScopeTeam }

// Role is a named permission bundle. System roles are immutable in name and
// scope and cannot be deleted.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Scope       RoleScope    `json:"scope"`
	IsSystem    bool         `json:"isSystem"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// PermissionStrings renders the role's permission set as "resource:action"
// strings, the form embedded in token payloads.
func (r *Role) PermissionStrings() []string {
	out := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		out = append(out, p.String())
	}
	return out
}

// Perms returns the role's permission set as typed pairs.
func (r *Role) Perms() []Perm {
	out := make([]Perm, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		out = append(out, p.Perm())
	}
	return out
}

// TeamRef is the fragment of a team carried on users and tokens.
type TeamRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User holds exactly one role and zero or more team memberships. The
// effective permission set of a user is exactly the role's permission set.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	RoleID       string    `json:"roleId"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"isActive"`
	Teams        []TeamRef `json:"teams"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TeamIDs returns the ids of the teams the user belongs to.
func (u *User) TeamIDs() []string {
	out := make([]string, 0, len(u.Teams))
	for _, t := range u.Teams {
		out = append(out, t.ID)
	}
	return out
}

// RoleSummary is the role fragment embedded in tokens and sanitized views.
type RoleSummary struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Scope RoleScope `json:"scope"`
}

// SanitizedUser is the user view returned to clients. It never carries the
// password hash.
type SanitizedUser struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	IsActive  bool        `json:"isActive"`
	Role      RoleSummary `json:"role"`
	Teams     []TeamRef   `json:"teams"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Sanitize strips credentials and collapses the role to its summary.
func (u *User) Sanitize() SanitizedUser {
	teams := u.Teams
	if teams == nil {
		teams = []TeamRef{}
	}
	return SanitizedUser{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		IsActive: u.IsActive,
		Role: RoleSummary{
			ID:    u.Role.ID,
			Name:  u.Role.Name,
			Scope: u.Role.Scope,
		},
		Teams:     teams,
		CreatedAt: u.CreatedAt,
	}
}
