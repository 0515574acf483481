package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/workspace"
)

// Required permissions per workspace route.
var (
	permTeamsRead     = []auth.Perm{auth.P(auth.ResourceTeams, auth.ActionRead)}
	permTeamsCreate   = []auth.Perm{auth.P(auth.ResourceTeams, auth.ActionCreate)}
	permTeamsUpdate   = []auth.Perm{auth.P(auth.ResourceTeams, auth.ActionUpdate)}
	permTeamsDelete   = []auth.Perm{auth.P(auth.ResourceTeams, auth.ActionDelete)}
	permTeamsAssign   = []auth.Perm{auth.P(auth.ResourceTeams, auth.ActionAssign)}
	permProjectsRead  = []auth.Perm{auth.P(auth.ResourceProjects, auth.ActionRead)}
	permProjectsWrite = []auth.Perm{auth.P(auth.ResourceProjects, auth.ActionCreate)}
	permProjectsEdit  = []auth.Perm{auth.P(auth.ResourceProjects, auth.ActionUpdate)}
	permProjectsDrop  = []auth.Perm{auth.P(auth.ResourceProjects, auth.ActionDelete)}
	permTasksRead     = []auth.Perm{auth.P(auth.ResourceTasks, auth.ActionRead)}
	permTasksCreate   = []auth.Perm{auth.P(auth.ResourceTasks, auth.ActionCreate)}
	permTasksUpdate   = []auth.Perm{auth.P(auth.ResourceTasks, auth.ActionUpdate)}
	permTasksDelete   = []auth.Perm{auth.P(auth.ResourceTasks, auth.ActionDelete)}
	permTasksAssign   = []auth.Perm{auth.P(auth.ResourceTasks, auth.ActionAssign)}
	permDocsRead      = []auth.Perm{auth.P(auth.ResourceDocuments, auth.ActionRead)}
	permDocsCreate    = []auth.Perm{auth.P(auth.ResourceDocuments, auth.ActionCreate)}
	permDocsUpdate    = []auth.Perm{auth.P(auth.ResourceDocuments, auth.ActionUpdate)}
	permDocsDelete    = []auth.Perm{auth.P(auth.ResourceDocuments, auth.ActionDelete)}
)

func parsePagination(r *http.Request) workspace.Pagination {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return workspace.Pagination{
		Page:      page,
		Limit:     limit,
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
}

// Teams

type teamRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type setMembersRequest struct {
	UserIDs []string `json:"userIds"`
}

func (a *API) handleTeams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permTeamsRead...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		page, err := a.workspace.ListTeams(r.Context(), identity, parsePagination(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)

	case http.MethodPost:
		if !a.ensurePermissions(w, r, permTeamsCreate...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		var req teamRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		name, desc := "", ""
		if req.Name != nil {
			name = *req.Name
		}
		if req.Description != nil {
			desc = *req.Description
		}
		team, err := a.workspace.CreateTeam(r.Context(), identity, name, desc, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/teams/"+team.ID)
		writeJSON(w, http.StatusCreated, team)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTeamResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/teams/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleTeamByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "members":
		a.handleTeamMembers(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleTeamByID(w http.ResponseWriter, r *http.Request, id string) {
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permTeamsRead...) {
			return
		}
		team, err := a.workspace.GetTeam(r.Context(), identity, id)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, team)

	case http.MethodPatch:
		if !a.ensurePermissions(w, r, permTeamsUpdate...) {
			return
		}
		var req teamRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		team, err := a.workspace.UpdateTeam(r.Context(), identity, id, req.Name, req.Description, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, team)

	case http.MethodDelete:
		if !a.ensurePermissions(w, r, permTeamsDelete...) {
			return
		}
		if err := a.workspace.DeleteTeam(r.Context(), identity, id, clientIP(r)); err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Team deleted successfully"})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleTeamMembers(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermissions(w, r, permTeamsAssign...) {
		return
	}
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	var req setMembersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	team, err := a.workspace.SetTeamMembers(r.Context(), identity, id, req.UserIDs, clientIP(r))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

// Projects

type projectRequest struct {
	Name        *string                  `json:"name"`
	Description *string                  `json:"description"`
	Status      *workspace.ProjectStatus `json:"status"`
	TeamID      *string                  `json:"teamId"`
}

func (a *API) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permProjectsRead...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		filter := workspace.ProjectFilter{
			TeamID: q.Get("teamId"),
			Status: workspace.ProjectStatus(q.Get("status")),
		}
		page, err := a.workspace.ListProjects(r.Context(), identity, filter, parsePagination(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)

	case http.MethodPost:
		if !a.ensurePermissions(w, r, permProjectsWrite...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		var req projectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		in := workspace.Project{}
		if req.Name != nil {
			in.Name = *req.Name
		}
		if req.Description != nil {
			in.Description = *req.Description
		}
		if req.Status != nil {
			in.Status = *req.Status
		}
		if req.TeamID != nil {
			in.TeamID = *req.TeamID
		}
		project, err := a.workspace.CreateProject(r.Context(), identity, in, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/projects/"+project.ID)
		writeJSON(w, http.StatusCreated, project)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProjectResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/projects/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permProjectsRead...) {
			return
		}
		project, err := a.workspace.GetProject(r.Context(), identity, id)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, project)

	case http.MethodPatch:
		if !a.ensurePermissions(w, r, permProjectsEdit...) {
			return
		}
		var req projectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		project, err := a.workspace.UpdateProject(r.Context(), identity, id, workspace.ProjectUpdate{
			Name:        req.Name,
			Description: req.Description,
			Status:      req.Status,
			TeamID:      req.TeamID,
		}, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, project)

	case http.MethodDelete:
		if !a.ensurePermissions(w, r, permProjectsDrop...) {
			return
		}
		if err := a.workspace.DeleteProject(r.Context(), identity, id, clientIP(r)); err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Project deleted successfully"})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// Tasks

type taskRequest struct {
	Title       *string                 `json:"title"`
	Description *string                 `json:"description"`
	ProjectID   *string                 `json:"projectId"`
	AssigneeID  *string                 `json:"assigneeId"`
	Status      *workspace.TaskStatus   `json:"status"`
	Priority    *workspace.TaskPriority `json:"priority"`
	DueDate     *string                 `json:"dueDate"`
}

type assignTaskRequest struct {
	AssigneeID *string `json:"assigneeId"`
}

func parseDueDate(raw *string) (**time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	if *raw == "" {
		cleared := (*time.Time)(nil)
		return &cleared, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		if t, err = time.Parse("2006-01-02", *raw); err != nil {
			return nil, err
		}
	}
	p := &t
	return &p, nil
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permTasksRead...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		filter := workspace.TaskFilter{
			ProjectID:  q.Get("projectId"),
			AssigneeID: q.Get("assigneeId"),
			Status:     workspace.TaskStatus(q.Get("status")),
			Priority:   workspace.TaskPriority(q.Get("priority")),
		}
		page, err := a.workspace.ListTasks(r.Context(), identity, filter, parsePagination(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)

	case http.MethodPost:
		if !a.ensurePermissions(w, r, permTasksCreate...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		var req taskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		due, err := parseDueDate(req.DueDate)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid dueDate")
			return
		}
		in := workspace.CreateTaskInput{}
		if req.Title != nil {
			in.Title = *req.Title
		}
		if req.Description != nil {
			in.Description = *req.Description
		}
		if req.ProjectID != nil {
			in.ProjectID = *req.ProjectID
		}
		if req.AssigneeID != nil {
			in.AssigneeID = *req.AssigneeID
		}
		if req.Status != nil {
			in.Status = *req.Status
		}
		if req.Priority != nil {
			in.Priority = *req.Priority
		}
		if due != nil {
			in.DueDate = *due
		}
		task, err := a.workspace.CreateTask(r.Context(), identity, in, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/tasks/"+task.ID)
		writeJSON(w, http.StatusCreated, task)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTaskResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/tasks/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleTaskByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "assign":
		a.handleTaskAssign(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleTaskByID(w http.ResponseWriter, r *http.Request, id string) {
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permTasksRead...) {
			return
		}
		task, err := a.workspace.GetTask(r.Context(), identity, id)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)

	case http.MethodPatch:
		if !a.ensurePermissions(w, r, permTasksUpdate...) {
			return
		}
		var req taskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		due, err := parseDueDate(req.DueDate)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid dueDate")
			return
		}
		task, err := a.workspace.UpdateTask(r.Context(), identity, id, workspace.TaskUpdate{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
			Priority:    req.Priority,
			DueDate:     due,
		}, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, task)

	case http.MethodDelete:
		if !a.ensurePermissions(w, r, permTasksDelete...) {
			return
		}
		if err := a.workspace.DeleteTask(r.Context(), identity, id, clientIP(r)); err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleTaskAssign(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	if !a.ensurePermissions(w, r, permTasksAssign...) {
		return
	}
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	var req assignTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	task, err := a.workspace.AssignTask(r.Context(), identity, id, req.AssigneeID, clientIP(r))
	if err != nil {
		serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Documents

type documentRequest struct {
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	ProjectID *string `json:"projectId"`
}

func (a *API) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permDocsRead...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		filter := workspace.DocumentFilter{ProjectID: r.URL.Query().Get("projectId")}
		page, err := a.workspace.ListDocuments(r.Context(), identity, filter, parsePagination(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)

	case http.MethodPost:
		if !a.ensurePermissions(w, r, permDocsCreate...) {
			return
		}
		identity, ok := a.identity(w, r)
		if !ok {
			return
		}
		var req documentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		in := workspace.CreateDocumentInput{}
		if req.Title != nil {
			in.Title = *req.Title
		}
		if req.Content != nil {
			in.Content = *req.Content
		}
		if req.ProjectID != nil {
			in.ProjectID = *req.ProjectID
		}
		doc, err := a.workspace.CreateDocument(r.Context(), identity, in, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/documents/"+doc.ID)
		writeJSON(w, http.StatusCreated, doc)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleDocumentResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/documents/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	identity, ok := a.identity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, permDocsRead...) {
			return
		}
		doc, err := a.workspace.GetDocument(r.Context(), identity, id)
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case http.MethodPatch:
		if !a.ensurePermissions(w, r, permDocsUpdate...) {
			return
		}
		var req documentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := a.workspace.UpdateDocument(r.Context(), identity, id, workspace.DocumentUpdate{
			Title:   req.Title,
			Content: req.Content,
		}, clientIP(r))
		if err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case http.MethodDelete:
		if !a.ensurePermissions(w, r, permDocsDelete...) {
			return
		}
		if err := a.workspace.DeleteDocument(r.Context(), identity, id, clientIP(r)); err != nil {
			serviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
