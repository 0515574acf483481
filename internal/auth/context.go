package auth

import "context"

// Identity is the authenticated caller reconstructed from a verified access
// token. It is built from the token payload alone, without a storage
// round-trip, so its permission view is only as fresh as the token itself.
type Identity struct {
	UserID      string
	Email       string
	Role        RoleSummary
	Permissions []Perm
	TeamIDs     []string
}

// IdentityFromClaims rebuilds the caller identity from verified claims.
func IdentityFromClaims(claims *Claims) Identity {
	return Identity{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: ParsePerms(claims.Permissions),
		TeamIDs:     claims.TeamIDs,
	}
}

// Can reports whether the identity holds at least one of the required
// permissions.
func (id Identity) Can(required ...Perm) bool {
	return Satisfies(id.Permissions, required)
}

// Scope derives the data-visibility filter for the identity.
func (id Identity) Scope() ScopeFilter {
	return ScopeFilter{Scope: id.Role.Scope, TeamIDs: id.TeamIDs}
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &identity)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}
