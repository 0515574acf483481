package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"opsdeck.io/internal/audit"
	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/dashboard"
	"opsdeck.io/internal/workspace"
)

// In-memory stores backing the HTTP tests. They mirror the storage
// contracts, including the rule that a team scope with no team ids
// matches nothing.

type memUserStore struct {
	users  map[string]*auth.User
	nextID int
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memUserStore) FindByID(_ context.Context, id string) (*auth.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copy := *u
	return &copy, nil
}

func (s *memUserStore) List(_ context.Context, q auth.UserQuery) ([]auth.User, int, error) {
	matched := []auth.User{}
	for _, u := range s.users {
		if q.RoleID != "" && u.RoleID != q.RoleID {
			continue
		}
		if q.IsActive != nil && u.IsActive != *q.IsActive {
			continue
		}
		matched = append(matched, *u)
	}
	sort.Slice(matched, func(i, j int) bool {
		var less bool
		switch q.SortBy {
		case "name":
			less = matched[i].Name < matched[j].Name
		case "email":
			less = matched[i].Email < matched[j].Email
		default:
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if q.SortOrder == "desc" {
			return !less
		}
		return less
	})
	total := len(matched)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *memUserStore) Create(_ context.Context, user *auth.User) error {
	s.nextID++
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", s.nextID)
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copy := *user
	s.users[user.ID] = &copy
	return nil
}

func (s *memUserStore) Update(_ context.Context, user *auth.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return auth.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	copy := *user
	s.users[user.ID] = &copy
	return nil
}

func (s *memUserStore) Delete(_ context.Context, id string) error {
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

type memRoleStore struct {
	roles   map[string]*auth.Role
	catalog []auth.Permission
	nextID  int
}

func (s *memRoleStore) Create(_ context.Context, role *auth.Role) error {
	s.nextID++
	role.ID = fmt.Sprintf("role-%d", s.nextID)
	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt
	copy := *role
	s.roles[role.ID] = &copy
	return nil
}

func (s *memRoleStore) Get(_ context.Context, id string) (*auth.Role, error) {
	r, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copy := *r
	return &copy, nil
}

func (s *memRoleStore) GetByName(_ context.Context, name string) (*auth.Role, error) {
	for _, r := range s.roles {
		if r.Name == name {
			copy := *r
			return &copy, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memRoleStore) List(_ context.Context) ([]auth.Role, error) {
	out := make([]auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *r)
	}
	return out, nil
}

func (s *memRoleStore) Update(_ context.Context, role *auth.Role) error {
	if _, ok := s.roles[role.ID]; !ok {
		return auth.ErrNotFound
	}
	role.UpdatedAt = time.Now()
	copy := *role
	s.roles[role.ID] = &copy
	return nil
}

func (s *memRoleStore) Delete(_ context.Context, id string) error {
	if _, ok := s.roles[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

func (s *memRoleStore) SetPermissions(_ context.Context, roleID string, permissionIDs []string) ([]auth.Permission, error) {
	role, ok := s.roles[roleID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	resolved := []auth.Permission{}
	for _, id := range permissionIDs {
		for _, p := range s.catalog {
			if p.ID == id {
				resolved = append(resolved, p)
				break
			}
		}
	}
	role.Permissions = resolved
	return resolved, nil
}

type memPermStore struct {
	catalog []auth.Permission
}

func (s *memPermStore) Ensure(_ context.Context, _ []auth.Permission) error { return nil }

func (s *memPermStore) List(_ context.Context) ([]auth.Permission, error) {
	return append([]auth.Permission{}, s.catalog...), nil
}

type memAuditStore struct {
	entries []audit.Entry
	nextID  int
}

func (s *memAuditStore) Insert(_ context.Context, entry *audit.Entry) error {
	s.nextID++
	entry.ID = fmt.Sprintf("audit-%d", s.nextID)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memAuditStore) List(_ context.Context, q audit.Query) ([]audit.Entry, int, error) {
	matched := []audit.Entry{}
	for _, e := range s.entries {
		if q.ResourceType != "" && e.ResourceType != q.ResourceType {
			continue
		}
		if q.ResourceID != "" && e.ResourceID != q.ResourceID {
			continue
		}
		if q.UserID != "" && e.UserID != q.UserID {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *memAuditStore) Get(_ context.Context, id string) (*audit.Entry, error) {
	for _, e := range s.entries {
		if e.ID == id {
			copy := e
			return &copy, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memAuditStore) ResourceHistory(_ context.Context, resourceType, resourceID string) ([]audit.Entry, error) {
	out := []audit.Entry{}
	for _, e := range s.entries {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memTeamStore struct {
	teams  map[string]*workspace.Team
	nextID int
}

func (s *memTeamStore) Create(_ context.Context, team *workspace.Team) error {
	s.nextID++
	team.ID = fmt.Sprintf("team-%d", s.nextID)
	team.CreatedAt = time.Now()
	team.UpdatedAt = team.CreatedAt
	copy := *team
	s.teams[team.ID] = &copy
	return nil
}

func (s *memTeamStore) Get(_ context.Context, id string) (*workspace.Team, error) {
	t, ok := s.teams[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copy := *t
	return &copy, nil
}

func (s *memTeamStore) List(_ context.Context, scope auth.ScopeFilter, page workspace.Pagination) ([]workspace.Team, int, error) {
	matched := []workspace.Team{}
	for _, t := range s.teams {
		if scope.AllowsTeam(t.ID) {
			matched = append(matched, *t)
		}
	}
	return paginate(matched, page)
}

func (s *memTeamStore) Update(_ context.Context, team *workspace.Team) error {
	if _, ok := s.teams[team.ID]; !ok {
		return auth.ErrNotFound
	}
	team.UpdatedAt = time.Now()
	copy := *team
	s.teams[team.ID] = &copy
	return nil
}

func (s *memTeamStore) Delete(_ context.Context, id string) error {
	if _, ok := s.teams[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.teams, id)
	return nil
}

func (s *memTeamStore) SetMembers(_ context.Context, teamID string, userIDs []string) ([]workspace.UserRef, error) {
	team, ok := s.teams[teamID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	members := []workspace.UserRef{}
	for _, id := range userIDs {
		members = append(members, workspace.UserRef{ID: id})
	}
	team.Members = members
	return members, nil
}

type memProjectStore struct {
	projects map[string]*workspace.Project
	nextID   int
}

func (s *memProjectStore) Create(_ context.Context, project *workspace.Project) error {
	s.nextID++
	project.ID = fmt.Sprintf("project-%d", s.nextID)
	project.CreatedAt = time.Now()
	project.UpdatedAt = project.CreatedAt
	copy := *project
	s.projects[project.ID] = &copy
	return nil
}

func (s *memProjectStore) Get(_ context.Context, id string) (*workspace.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (s *memProjectStore) List(_ context.Context, scope auth.ScopeFilter, filter workspace.ProjectFilter, page workspace.Pagination) ([]workspace.Project, int, error) {
	matched := []workspace.Project{}
	for _, p := range s.projects {
		if !scope.AllowsTeam(p.TeamID) {
			continue
		}
		if filter.TeamID != "" && p.TeamID != filter.TeamID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		matched = append(matched, *p)
	}
	return paginate(matched, page)
}

func (s *memProjectStore) Update(_ context.Context, project *workspace.Project) error {
	if _, ok := s.projects[project.ID]; !ok {
		return auth.ErrNotFound
	}
	project.UpdatedAt = time.Now()
	copy := *project
	s.projects[project.ID] = &copy
	return nil
}

func (s *memProjectStore) Delete(_ context.Context, id string) error {
	if _, ok := s.projects[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.projects, id)
	return nil
}

type memTaskStore struct {
	tasks  map[string]*workspace.Task
	nextID int
}

func (s *memTaskStore) Create(_ context.Context, task *workspace.Task) error {
	s.nextID++
	task.ID = fmt.Sprintf("task-%d", s.nextID)
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	copy := *task
	s.tasks[task.ID] = &copy
	return nil
}

func (s *memTaskStore) Get(_ context.Context, id string) (*workspace.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copy := *t
	return &copy, nil
}

func (s *memTaskStore) List(_ context.Context, scope auth.ScopeFilter, filter workspace.TaskFilter, page workspace.Pagination) ([]workspace.Task, int, error) {
	matched := []workspace.Task{}
	for _, t := range s.tasks {
		if !scope.AllowsTeam(t.TeamID) {
			continue
		}
		if filter.ProjectID != "" && t.ProjectID != filter.ProjectID {
			continue
		}
		if filter.AssigneeID == workspace.Unassigned {
			if t.Assignee != nil {
				continue
			}
		} else if filter.AssigneeID != "" {
			if t.Assignee == nil || t.Assignee.ID != filter.AssigneeID {
				continue
			}
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && t.Priority != filter.Priority {
			continue
		}
		matched = append(matched, *t)
	}
	return paginate(matched, page)
}

func (s *memTaskStore) Update(_ context.Context, task *workspace.Task) error {
	if _, ok := s.tasks[task.ID]; !ok {
		return auth.ErrNotFound
	}
	task.UpdatedAt = time.Now()
	copy := *task
	s.tasks[task.ID] = &copy
	return nil
}

func (s *memTaskStore) Delete(_ context.Context, id string) error {
	if _, ok := s.tasks[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memTaskStore) Assign(_ context.Context, taskID string, assigneeID *string) error {
	task, ok := s.tasks[taskID]
	if !ok {
		return auth.ErrNotFound
	}
	if assigneeID == nil {
		task.Assignee = nil
	} else {
		task.Assignee = &workspace.UserRef{ID: *assigneeID}
	}
	return nil
}

type memDocumentStore struct {
	docs   map[string]*workspace.Document
	nextID int
}

func (s *memDocumentStore) Create(_ context.Context, doc *workspace.Document) error {
	s.nextID++
	doc.ID = fmt.Sprintf("doc-%d", s.nextID)
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	copy := *doc
	s.docs[doc.ID] = &copy
	return nil
}

func (s *memDocumentStore) Get(_ context.Context, id string) (*workspace.Document, error) {
	d, ok := s.docs[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copy := *d
	return &copy, nil
}

func (s *memDocumentStore) List(_ context.Context, scope auth.ScopeFilter, filter workspace.DocumentFilter, page workspace.Pagination) ([]workspace.Document, int, error) {
	matched := []workspace.Document{}
	for _, d := range s.docs {
		if !scope.AllowsTeam(d.TeamID) {
			continue
		}
		if filter.ProjectID != "" && d.ProjectID != filter.ProjectID {
			continue
		}
		matched = append(matched, *d)
	}
	return paginate(matched, page)
}

func (s *memDocumentStore) Update(_ context.Context, doc *workspace.Document) error {
	if _, ok := s.docs[doc.ID]; !ok {
		return auth.ErrNotFound
	}
	doc.UpdatedAt = time.Now()
	copy := *doc
	s.docs[doc.ID] = &copy
	return nil
}

func (s *memDocumentStore) Delete(_ context.Context, id string) error {
	if _, ok := s.docs[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

// memDashboardStore derives counters from the other in-memory stores.
type memDashboardStore struct {
	users    *memUserStore
	roles    *memRoleStore
	teams    *memTeamStore
	projects *memProjectStore
	tasks    *memTaskStore
	docs     *memDocumentStore
}

func (s *memDashboardStore) UserCounts(_ context.Context) (int, int, error) {
	active := 0
	for _, u := range s.users.users {
		if u.IsActive {
			active++
		}
	}
	return len(s.users.users), active, nil
}

func (s *memDashboardStore) RoleCount(_ context.Context) (int, error) {
	return len(s.roles.roles), nil
}

func (s *memDashboardStore) TeamCount(_ context.Context) (int, error) {
	return len(s.teams.teams), nil
}

func (s *memDashboardStore) ProjectCounts(_ context.Context, scope auth.ScopeFilter) (int, int, error) {
	total, active := 0, 0
	for _, p := range s.projects.projects {
		if !scope.AllowsTeam(p.TeamID) {
			continue
		}
		total++
		if p.Status == workspace.ProjectActive {
			active++
		}
	}
	return total, active, nil
}

func (s *memDashboardStore) TaskCounts(_ context.Context, scope auth.ScopeFilter) (int, int, int, error) {
	total, completed, pending := 0, 0, 0
	for _, task := range s.tasks.tasks {
		if !scope.AllowsTeam(task.TeamID) {
			continue
		}
		total++
		switch task.Status {
		case workspace.TaskDone:
			completed++
		case workspace.TaskTodo, workspace.TaskInProgress:
			pending++
		}
	}
	return total, completed, pending, nil
}

func (s *memDashboardStore) DocumentCount(_ context.Context, scope auth.ScopeFilter) (int, error) {
	count := 0
	for _, d := range s.docs.docs {
		if scope.AllowsTeam(d.TeamID) {
			count++
		}
	}
	return count, nil
}

func paginate[T any](items []T, page workspace.Pagination) ([]T, int, error) {
	total := len(items)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total || page.Limit < 1 {
		end = total
	}
	return items[start:end], total, nil
}

// fixture wires services over the in-memory stores with two seeded users:
// an active global admin and a team-scoped member of team-1.
type fixture struct {
	api      *API
	handler  http.Handler
	issuer   *auth.Issuer
	users    *memUserStore
	roles    *memRoleStore
	teams    *memTeamStore
	projects *memProjectStore
	tasks    *memTaskStore
	docs     *memDocumentStore
	auditlog *memAuditStore

	admin  *auth.User
	member *auth.User
}

func adminRole() auth.Role {
	return auth.Role{
		ID:          "role-admin",
		Name:        "Admin",
		Scope:       auth.ScopeGlobal,
		IsSystem:    true,
		Permissions: []auth.Permission{{ID: "perm-all", Resource: auth.Wildcard, Action: auth.Wildcard}},
	}
}

func memberRole(perms ...auth.Permission) auth.Role {
	return auth.Role{
		ID:          "role-member",
		Name:        "Member",
		Scope:       auth.ScopeTeam,
		Permissions: perms,
	}
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	hash, err := auth.HashPassword("Pass111!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	admin := &auth.User{
		ID:           "user-admin",
		Email:        "admin@example.com",
		Name:         "Admin",
		PasswordHash: hash,
		Role:         adminRole(),
		RoleID:       "role-admin",
		IsActive:     true,
	}
	member := &auth.User{
		ID:           "user-member",
		Email:        "member@example.com",
		Name:         "Member",
		PasswordHash: hash,
		Role: memberRole(
			auth.Permission{ID: "perm-tasks-read", Resource: auth.ResourceTasks, Action: auth.ActionRead},
			auth.Permission{ID: "perm-projects-read", Resource: auth.ResourceProjects, Action: auth.ActionRead},
			auth.Permission{ID: "perm-teams-read", Resource: auth.ResourceTeams, Action: auth.ActionRead},
		),
		RoleID:   "role-member",
		IsActive: true,
		Teams:    []auth.TeamRef{{ID: "team-1", Name: "Platform"}},
	}

	f := &fixture{
		users:    &memUserStore{users: map[string]*auth.User{admin.ID: admin, member.ID: member}},
		roles:    &memRoleStore{roles: map[string]*auth.Role{}, catalog: append([]auth.Permission{}, auth.BuiltinPermissions...)},
		teams:    &memTeamStore{teams: map[string]*workspace.Team{}},
		projects: &memProjectStore{projects: map[string]*workspace.Project{}},
		tasks:    &memTaskStore{tasks: map[string]*workspace.Task{}},
		docs:     &memDocumentStore{docs: map[string]*workspace.Document{}},
		auditlog: &memAuditStore{},
		admin:    admin,
		member:   member,
	}
	for i := range f.roles.catalog {
		f.roles.catalog[i].ID = fmt.Sprintf("perm-%d", i+1)
	}

	adm := adminRole()
	f.roles.roles[adm.ID] = &adm
	mem := memberRole()
	f.roles.roles[mem.ID] = &mem

	issuer, err := auth.NewIssuer("access-secret", "refresh-secret")
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	f.issuer = issuer

	authSvc, err := auth.NewService(f.users, issuer)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	recorder, err := audit.NewRecorder(f.auditlog)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	roleSvc, err := auth.NewRoleService(f.roles, &memPermStore{catalog: f.roles.catalog}, recorder)
	if err != nil {
		t.Fatalf("new role service: %v", err)
	}
	userSvc, err := auth.NewUserService(f.users, recorder)
	if err != nil {
		t.Fatalf("new user service: %v", err)
	}
	wsSvc, err := workspace.NewService(f.teams, f.projects, f.tasks, f.docs, recorder)
	if err != nil {
		t.Fatalf("new workspace service: %v", err)
	}
	dashSvc, err := dashboard.NewService(&memDashboardStore{
		users:    f.users,
		roles:    f.roles,
		teams:    f.teams,
		projects: f.projects,
		tasks:    f.tasks,
		docs:     f.docs,
	})
	if err != nil {
		t.Fatalf("new dashboard service: %v", err)
	}

	if opts.Version == "" {
		opts.Version = "test"
	}
	f.api = New(opts, authSvc, roleSvc, userSvc, wsSvc, f.auditlog, dashSvc)
	f.handler = f.api.Handler()
	return f
}

func (f *fixture) token(t *testing.T, user *auth.User) string {
	t.Helper()
	pair, err := f.issuer.Issue(user)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return pair.AccessToken
}

// seedTeamProject inserts a team and a project owned by it, bypassing the
// HTTP layer.
func (f *fixture) seedTeamProject(t *testing.T, teamID, projectID string) {
	t.Helper()
	f.teams.teams[teamID] = &workspace.Team{ID: teamID, Name: "Team " + teamID, Members: []workspace.UserRef{}}
	f.projects.projects[projectID] = &workspace.Project{
		ID:     projectID,
		Name:   "Project " + projectID,
		Status: workspace.ProjectActive,
		TeamID: teamID,
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func newRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func wantError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &body)
	if !strings.Contains(body.Error, message) {
		t.Fatalf("error = %q, want it to contain %q", body.Error, message)
	}
}
