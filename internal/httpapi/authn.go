package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth authenticates every non-public request. The identity attached to
// the context is rebuilt from the verified token alone; no storage access
// happens here. Permission checks run later, per route.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "Missing access token")
			return
		}

		claims, err := a.auth.Issuer().Verify(token, auth.AccessToken)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		identity := auth.IdentityFromClaims(claims)
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

// ensurePermissions rejects the request unless the caller holds at least
// one of the required permissions. A 403 names the missing requirement; a
// request that never passed authentication gets 401.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, required ...auth.Perm) bool {
	if len(required) == 0 {
		return true
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Missing access token")
		return false
	}
	if !identity.Can(required...) {
		obs.CountDenied()
		names := make([]string, 0, len(required))
		for _, p := range required {
			names = append(names, p.String())
		}
		writeError(w, r, http.StatusForbidden, "Missing required permission: "+strings.Join(names, " or "))
		return false
	}
	return true
}

// identity returns the authenticated caller or writes a 401.
func (a *API) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Missing access token")
	}
	return id, ok
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
