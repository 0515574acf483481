package httpapi

import (
	"net/http"
	"strings"

	"opsdeck.io/internal/auth"
)

// Required permissions per role route.
var (
	permRolesRead   = []auth.Perm{auth.P(auth.ResourceRoles, auth.ActionRead)}
	permRolesCreate = []auth.Perm{auth.P(auth.ResourceRoles, auth.ActionCreate)}
	permRolesUpdate = []auth.Perm{auth.P(auth.ResourceRoles, auth.ActionUpdate)}
	permRolesDelete = []auth.Perm{auth.P(auth.ResourceRoles, auth.ActionDelete)}
	permRolesManage = []auth.Perm{auth.P(auth.ResourceRoles, auth.ActionManage)}
)

type createRoleRequest struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Scope         auth.RoleScope `json:"scope"`
	PermissionIDs []string       `json:"permissionIds"`
}

type updateRoleRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Scope       *auth.RoleScope `json:"scope"`
}

type setPermissionsRequest struct {
	PermissionIDs []string `json:"permissionIds"`
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, permRolesRead...) {
		return
	}
	perms, err := a.roles.ListPermissions(r.Context())
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": perms})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permRolesRead...) {
			return
		}
		roles, err := a.roles.List(r.Context())
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": roles})

	case http.MethodPost:
		if !a.ensurePermissions(w, r, permRolesCreate...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.roles.Create(r.Context(), identity, auth.CreateRole{
			Name:          req.Name,
			Description:   req.Description,
			Scope:         req.Scope,
			PermissionIDs: req.PermissionIDs,
		}, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/roles/"+role.ID)
		writeJSON(w, http.StatusCreated, role)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleRoleByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRolePermissions(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRoleByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permRolesRead...) {
			return
		}
		role, err := a.roles.Get(r.Context(), id)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)

	case http.MethodPatch:
		if !a.ensurePermissions(w, r, permRolesUpdate...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.roles.Update(r.Context(), identity, id, auth.RoleUpdate{
			Name:        req.Name,
			Description: req.Description,
			Scope:       req.Scope,
		}, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)

	case http.MethodDelete:
		if !a.ensurePermissions(w, r, permRolesDelete...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		if err := a.roles.Delete(r.Context(), identity, id, clientIP(r)); err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Role deleted successfully"})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermissions(w, r, permRolesManage...) {
		return
	}
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	var req setPermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.roles.SetPermissions(r.Context(), identity, id, req.PermissionIDs, clientIP(r))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}
