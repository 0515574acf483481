package httpapi

import "net/http"

// The stats route carries no permission requirement: any authenticated
// caller may load the landing page. Scope still restricts the counts.
func (a *API) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	stats, err := a.dashboard.Stats(r.Context(), identity.Scope())
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
