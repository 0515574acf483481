package auth

import (
	"fmt"
	"strings"
	"time"
)

// Resource identifies a protected resource family.
type Resource string

// Action identifies an operation on a resource.
type Action string

const (
	ResourceUsers     Resource = "users"
	ResourceTeams     Resource = "teams"
	ResourceProjects  Resource = "projects"
	ResourceTasks     Resource = "tasks"
	ResourceDocuments Resource = "documents"
	ResourceRoles     Resource = "roles"
	ResourceAudit     Resource = "audit"
	ResourceDashboard Resource = "dashboard"
)

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAssign Action = "assign"
	ActionExport Action = "export"
	ActionManage Action = "manage"
	ActionView   Action = "view"
)

// Wildcard matches any resource or any action depending on position.
const Wildcard = "*"

var knownResources = map[Resource]struct{}{
	ResourceUsers:     {},
	ResourceTeams:     {},
	ResourceProjects:  {},
	ResourceTasks:     {},
	ResourceDocuments: {},
	ResourceRoles:     {},
	ResourceAudit:     {},
	ResourceDashboard: {},
}

var knownActions = map[Action]struct{}{
	ActionRead:   {},
	ActionCreate: {},
	ActionUpdate: {},
	ActionDelete: {},
	ActionAssign: {},
	ActionExport: {},
	ActionManage: {},
	ActionView:   {},
}

// Perm is a permission as a typed pair. Matching operates on the pair so
// malformed strings are rejected once at the parse boundary instead of being
// re-split on every check.
type Perm struct {
	Resource Resource
	Action   Action
}

// P builds a Perm from enum values. Intended for static route requirements.
func P(r Resource, a Action) Perm { return Perm{Resource: r, Action: a} }

func (p Perm) String() string {
	if p.Resource == Wildcard && p.Action == Wildcard {
		return Wildcard
	}
	return string(p.Resource) + ":" + string(p.Action)
}

// IsZero reports whether the perm carries no value.
func (p Perm) IsZero() bool { return p.Resource == "" && p.Action == "" }

// ParsePerm parses "resource:action" into a typed pair. The bare form "*"
// yields the super wildcard; "resource:*" yields a resource-level wildcard.
// Action-only wildcards ("*:read") are rejected: matching is resource-anchored
// or global, never action-anchored.
func ParsePerm(raw string) (Perm, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Perm{}, fmt.Errorf("%w: empty permission", ErrInvalidInput)
	}
	if raw == Wildcard {
		return Perm{Resource: Wildcard, Action: Wildcard}, nil
	}
	res, act, ok := strings.Cut(raw, ":")
	if !ok || res == "" || act == "" {
		return Perm{}, fmt.Errorf("%w: malformed permission %q", ErrInvalidInput, raw)
	}
	if res == Wildcard {
		return Perm{}, fmt.Errorf("%w: action-anchored wildcard %q is not supported", ErrInvalidInput, raw)
	}
	if _, known := knownResources[Resource(res)]; !known {
		return Perm{}, fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, res)
	}
	if act != Wildcard {
		if _, known := knownActions[Action(act)]; !known {
			return Perm{}, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, act)
		}
	}
	return Perm{Resource: Resource(res), Action: Action(act)}, nil
}

// ParsePerms parses a list of permission strings, silently dropping entries
// that fail to parse. Used when rebuilding a held set from a token payload.
func ParsePerms(raw []string) []Perm {
	if len(raw) == 0 {
		return nil
	}
	out := make([]Perm, 0, len(raw))
	for _, s := range raw {
		p, err := ParsePerm(s)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// matches reports whether held satisfies a single required permission.
func (p Perm) matches(required Perm) bool {
	if p == required {
		return true
	}
	if p.Resource == Wildcard && p.Action == Wildcard {
		return true
	}
	return p.Action == Wildcard && p.Resource == required.Resource
}

// Satisfies reports whether the held set allows at least one of the required
// permissions. OR semantics across required; an empty required list always
// satisfies, an empty held set never does unless required is empty.
func Satisfies(held, required []Perm) bool {
	if len(required) == 0 {
		return true
	}
	for _, req := range required {
		for _, h := range held {
			if h.matches(req) {
				return true
			}
		}
	}
	return false
}

// Permission is a catalog entry: an immutable (resource, action) pair with a
// human description. The pair is unique within the catalog.
type Permission struct {
	ID          string    `json:"id"`
	Resource    Resource  `json:"resource"`
	Action      Action    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Perm returns the typed pair for matching.
func (p Permission) Perm() Perm { return Perm{Resource: p.Resource, Action: p.Action} }

func (p Permission) String() string { return p.Perm().String() }

// BuiltinPermissions is the seed-time permission catalog.
var BuiltinPermissions = []Permission{
	{Resource: ResourceUsers, Action: ActionRead, Description: "View users"},
	{Resource: ResourceUsers, Action: ActionCreate, Description: "Create users"},
	{Resource: ResourceUsers, Action: ActionUpdate, Description: "Update users"},
	{Resource: ResourceUsers, Action: ActionDelete, Description: "Delete users"},
	{Resource: ResourceTeams, Action: ActionRead, Description: "View teams"},
	{Resource: ResourceTeams, Action: ActionCreate, Description: "Create teams"},
	{Resource: ResourceTeams, Action: ActionUpdate, Description: "Update teams"},
	{Resource: ResourceTeams, Action: ActionDelete, Description: "Delete teams"},
	{Resource: ResourceTeams, Action: ActionAssign, Description: "Manage team members"},
	{Resource: ResourceProjects, Action: ActionRead, Description: "View projects"},
	{Resource: ResourceProjects, Action: ActionCreate, Description: "Create projects"},
	{Resource: ResourceProjects, Action: ActionUpdate, Description: "Update projects"},
	{Resource: ResourceProjects, Action: ActionDelete, Description: "Delete projects"},
	{Resource: ResourceProjects, Action: ActionAssign, Description: "Assign projects to teams"},
	{Resource: ResourceProjects, Action: ActionExport, Description: "Export project data"},
	{Resource: ResourceTasks, Action: ActionRead, Description: "View tasks"},
	{Resource: ResourceTasks, Action: ActionCreate, Description: "Create tasks"},
	{Resource: ResourceTasks, Action: ActionUpdate, Description: "Update tasks"},
	{Resource: ResourceTasks, Action: ActionDelete, Description: "Delete tasks"},
	{Resource: ResourceTasks, Action: ActionAssign, Description: "Assign tasks to users"},
	{Resource: ResourceDocuments, Action: ActionRead, Description: "View documents"},
	{Resource: ResourceDocuments, Action: ActionCreate, Description: "Create documents"},
	{Resource: ResourceDocuments, Action: ActionUpdate, Description: "Update documents"},
	{Resource: ResourceDocuments, Action: ActionDelete, Description: "Delete documents"},
	{Resource: ResourceDocuments, Action: ActionExport, Description: "Export documents"},
	{Resource: ResourceRoles, Action: ActionRead, Description: "View roles"},
	{Resource: ResourceRoles, Action: ActionCreate, Description: "Create roles"},
	{Resource: ResourceRoles, Action: ActionUpdate, Description: "Update roles"},
	{Resource: ResourceRoles, Action: ActionDelete, Description: "Delete roles"},
	{Resource: ResourceRoles, Action: ActionManage, Description: "Manage role permissions"},
	{Resource: ResourceAudit, Action: ActionRead, Description: "View audit logs"},
	{Resource: ResourceDashboard, Action: ActionView, Description: "View dashboard"},
}
