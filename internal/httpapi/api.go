// Package httpapi is the HTTP transport: routing, the authentication guard,
// permission checks and the middleware chain. Handlers stay thin; domain
// rules live in the services they call.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"opsdeck.io/internal/audit"
	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/dashboard"
	"opsdeck.io/internal/obs"
	"opsdeck.io/internal/workspace"
)

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options configures the API surface.
type Options struct {
	ReadyProbe   ReadyProbe
	Version      string
	CORSOrigins  []string
	MaxBodyBytes int64
	RateBurst    int
	RatePerSec   int
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	opts      Options
	auth      *auth.Service
	roles     *auth.RoleService
	users     *auth.UserService
	workspace *workspace.Service
	audit     audit.Store
	dashboard *dashboard.Service
}

// New wires the routes. All services are required.
func New(opts Options, authSvc *auth.Service, roles *auth.RoleService, users *auth.UserService, ws *workspace.Service, auditStore audit.Store, dash *dashboard.Service) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 50
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 25
	}
	a := &API{
		mux:       http.NewServeMux(),
		opts:      opts,
		auth:      authSvc,
		roles:     roles,
		users:     users,
		workspace: ws,
		audit:     auditStore,
		dashboard: dash,
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)

	a.mux.HandleFunc("/v1/teams", a.handleTeams)
	a.mux.HandleFunc("/v1/teams/", a.handleTeamResource)
	a.mux.HandleFunc("/v1/projects", a.handleProjects)
	a.mux.HandleFunc("/v1/projects/", a.handleProjectResource)
	a.mux.HandleFunc("/v1/tasks", a.handleTasks)
	a.mux.HandleFunc("/v1/tasks/", a.handleTaskResource)
	a.mux.HandleFunc("/v1/documents", a.handleDocuments)
	a.mux.HandleFunc("/v1/documents/", a.handleDocumentResource)

	a.mux.HandleFunc("/v1/dashboard/stats", a.handleDashboardStats)

	a.mux.HandleFunc("/v1/audit", a.handleAuditList)
	a.mux.HandleFunc("/v1/audit/", a.handleAuditResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the router. The guard sits
// innermost so every earlier layer applies to public routes too.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSec)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = CORS(h, a.opts.CORSOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "opsdeck-api",
		"version": a.opts.Version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.opts.ReadyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "opsdeck-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}
