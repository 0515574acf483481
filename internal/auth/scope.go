package auth

// ScopeFilter restricts query results to records the caller may see. It is
// derived from the caller's identity and applied by every list/read over
// team-owned resources.
//
// A team-scoped filter with no team ids matches nothing. It must never relax
// to global visibility; yielding zero rows for a teamless caller is a
// security invariant.
type ScopeFilter struct {
	Scope   RoleScope
	TeamIDs []string
}

// Unrestricted reports whether the filter passes every record through.
func (f ScopeFilter) Unrestricted() bool { return f.Scope == ScopeGlobal }

// AllowsTeam reports whether a record owned by teamID is visible. Records
// are matched on their resolved owning team: a direct teamId, or the
// project's team for tasks and documents.
func (f ScopeFilter) AllowsTeam(teamID string) bool {
	if f.Unrestricted() {
		return true
	}
	for _, id := range f.TeamIDs {
		if id != "" && id == teamID {
			return true
		}
	}
	return false
}
