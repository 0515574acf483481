package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/workspace"
)

// Required permissions per user route.
var (
	permUsersRead   = []auth.Perm{auth.P(auth.ResourceUsers, auth.ActionRead)}
	permUsersCreate = []auth.Perm{auth.P(auth.ResourceUsers, auth.ActionCreate)}
	permUsersUpdate = []auth.Perm{auth.P(auth.ResourceUsers, auth.ActionUpdate)}
	permUsersDelete = []auth.Perm{auth.P(auth.ResourceUsers, auth.ActionDelete)}
)

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	RoleID   string `json:"roleId"`
	IsActive *bool  `json:"isActive"`
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Name     *string `json:"name"`
	RoleID   *string `json:"roleId"`
	IsActive *bool   `json:"isActive"`
}

func parseUserQuery(r *http.Request) auth.UserQuery {
	q := r.URL.Query()
	query := auth.UserQuery{
		RoleID:    strings.TrimSpace(q.Get("roleId")),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		query.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		query.Limit = limit
	}
	switch q.Get("isActive") {
	case "true":
		active := true
		query.IsActive = &active
	case "false":
		active := false
		query.IsActive = &active
	}
	return query
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permUsersRead...) {
			return
		}
		query := parseUserQuery(r)
		users, total, err := a.users.List(r.Context(), query)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		query.Normalize()
		writeJSON(w, http.StatusOK, map[string]any{
			"data": users,
			"meta": workspace.NewMeta(workspace.Pagination{Page: query.Page, Limit: query.Limit}, total),
		})

	case http.MethodPost:
		if !a.ensurePermissions(w, r, permUsersCreate...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.users.Create(r.Context(), identity, auth.CreateUser{
			Email:    req.Email,
			Password: req.Password,
			Name:     req.Name,
			RoleID:   req.RoleID,
			IsActive: req.IsActive,
		}, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/users/"+user.ID)
		writeJSON(w, http.StatusCreated, user)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permUsersRead...) {
			return
		}
		user, err := a.users.Get(r.Context(), id)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)

	case http.MethodPatch:
		if !a.ensurePermissions(w, r, permUsersUpdate...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.users.Update(r.Context(), identity, id, auth.UserUpdate{
			Email:    req.Email,
			Password: req.Password,
			Name:     req.Name,
			RoleID:   req.RoleID,
			IsActive: req.IsActive,
		}, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)

	case http.MethodDelete:
		if !a.ensurePermissions(w, r, permUsersDelete...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		if err := a.users.Delete(r.Context(), identity, id, clientIP(r)); err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
