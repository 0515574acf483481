package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"opsdeck.io/internal/audit"
	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/workspace"
)

var permAuditRead = []auth.Perm{auth.P(auth.ResourceAudit, auth.ActionRead)}

type auditPage struct {
	Data []audit.Entry  `json:"data"`
	Meta workspace.Meta `json:"meta"`
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, permAuditRead...) {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	query := audit.Query{
		ResourceType: q.Get("resourceType"),
		ResourceID:   q.Get("resourceId"),
		UserID:       q.Get("userId"),
		Action:       q.Get("action"),
		Page:         page,
		Limit:        limit,
		SortOrder:    q.Get("sortOrder"),
	}.Normalize()
	entries, total, err := a.audit.List(r.Context(), query)
	if err != nil {
		serviceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, auditPage{
		Data: entries,
		Meta: workspace.NewMeta(workspace.Pagination{Page: query.Page, Limit: query.Limit}, total),
	})
}

func (a *API) handleAuditResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, permAuditRead...) {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/audit/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		entry, err := a.audit.Get(r.Context(), parts[0])
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case len(parts) == 3 && parts[2] == "history":
		entries, err := a.audit.ResourceHistory(r.Context(), parts[0], parts[1])
		if err != nil {
			serviceError(w, r, err)
			return
		}
		if entries == nil {
			entries = []audit.Entry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": entries})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
