package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsdeck.io/internal/auth"
)

// Service implements workspace CRUD over the stores. Every list applies the
// caller's scope filter; single-record reads re-check the resolved owning
// team so a direct id probe cannot bypass team scoping. Mutations are
// audited with the acting identity.
type Service struct {
	teams     TeamStore
	projects  ProjectStore
	tasks     TaskStore
	documents DocumentStore
	audit     auth.AuditRecorder
}

// NewService constructs the workspace service.
func NewService(teams TeamStore, projects ProjectStore, tasks TaskStore, documents DocumentStore, rec auth.AuditRecorder) (*Service, error) {
	if teams == nil || projects == nil || tasks == nil || documents == nil || rec == nil {
		return nil, errors.New("workspace: all stores and the audit recorder are required")
	}
	return &Service{teams: teams, projects: projects, tasks: tasks, documents: documents, audit: rec}, nil
}

func (s *Service) record(ctx context.Context, actor auth.Identity, action, resourceType, resourceID string, oldValues, newValues map[string]any, ip string) error {
	return s.audit.Record(ctx, auth.AuditEvent{
		ActorID:      actor.UserID,
		ActorEmail:   actor.Email,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
		IP:           ip,
	})
}

// scoped returns ErrNotFound when the record's owning team is outside the
// caller's scope. Hidden records are indistinguishable from absent ones.
func scoped(scope auth.ScopeFilter, teamID string) error {
	if scope.Unrestricted() {
		return nil
	}
	if teamID == "" || !scope.AllowsTeam(teamID) {
		return auth.ErrNotFound
	}
	return nil
}

// Teams

// CreateTeam adds a team created by the actor.
func (s *Service) CreateTeam(ctx context.Context, actor auth.Identity, name, description, clientIP string) (*Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: team name is required", auth.ErrInvalidInput)
	}
	team := &Team{
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedByID: actor.UserID,
		Members:     []UserRef{},
	}
	if err := s.teams.Create(ctx, team); err != nil {
		return nil, err
	}
	if err := s.record(ctx, actor, "CREATE", "teams", team.ID, nil, map[string]any{"name": team.Name}, clientIP); err != nil {
		return nil, err
	}
	return team, nil
}

// GetTeam loads a team visible to the caller.
func (s *Service) GetTeam(ctx context.Context, actor auth.Identity, id string) (*Team, error) {
	team, err := s.teams.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := scoped(actor.Scope(), team.ID); err != nil {
		return nil, err
	}
	return team, nil
}

// ListTeams returns the teams visible to the caller.
func (s *Service) ListTeams(ctx context.Context, actor auth.Identity, page Pagination) (Page[Team], error) {
	page = page.Normalize("name", "created_at")
	teams, total, err := s.teams.List(ctx, actor.Scope(), page)
	if err != nil {
		return Page[Team]{}, err
	}
	if teams == nil {
		teams = []Team{}
	}
	return Page[Team]{Data: teams, Meta: NewMeta(page, total)}, nil
}

// UpdateTeam patches a team's name and description.
func (s *Service) UpdateTeam(ctx context.Context, actor auth.Identity, id string, name, description *string, clientIP string) (*Team, error) {
	team, err := s.GetTeam(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	oldValues := map[string]any{"name": team.Name}
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return nil, fmt.Errorf("%w: team name is required", auth.ErrInvalidInput)
		}
		team.Name = n
	}
	if description != nil {
		team.Description = strings.TrimSpace(*description)
	}
	if err := s.teams.Update(ctx, team); err != nil {
		return nil, err
	}
	if err := s.record(ctx, actor, "UPDATE", "teams", team.ID, oldValues, map[string]any{"name": team.Name}, clientIP); err != nil {
		return nil, err
	}
	return team, nil
}

// DeleteTeam removes a team.
func (s *Service) DeleteTeam(ctx context.Context, actor auth.Identity, id, clientIP string) error {
	team, err := s.GetTeam(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.teams.Delete(ctx, team.ID); err != nil {
		return err
	}
	return s.record(ctx, actor, "DELETE", "teams", team.ID, map[string]any{"name": team.Name}, nil, clientIP)
}

// SetTeamMembers replaces a team's member list wholesale.
func (s *Service) SetTeamMembers(ctx context.Context, actor auth.Identity, id string, userIDs []string, clientIP string) (*Team, error) {
	team, err := s.GetTeam(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	oldIDs := team.MemberIDs()
	members, err := s.teams.SetMembers(ctx, team.ID, userIDs)
	if err != nil {
		return nil, err
	}
	team.Members = members
	if err := s.record(ctx, actor, "ASSIGN", "teams", team.ID,
		map[string]any{"memberIds": oldIDs},
		map[string]any{"memberIds": team.MemberIDs()}, clientIP); err != nil {
		return nil, err
	}
	return team, nil
}

// Projects

// CreateProject adds a project, optionally bound to a team.
func (s *Service) CreateProject(ctx context.Context, actor auth.Identity, in Project, clientIP string) (*Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: project name is required", auth.ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = ProjectActive
	}
	if !ValidProjectStatus(in.Status) {
		return nil, fmt.Errorf("%w: unsupported project status %q", auth.ErrInvalidInput, in.Status)
	}
	if in.TeamID != "" {
		if _, err := s.teams.Get(ctx, in.TeamID); err != nil {
			return nil, fmt.Errorf("%w: team not found", auth.ErrNotFound)
		}
	}
	project := &Project{
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Status:      in.Status,
		TeamID:      in.TeamID,
		CreatedByID: actor.UserID,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, err
	}
	if err := s.record(ctx, actor, "CREATE", "projects", project.ID, nil,
		map[string]any{"name": project.Name, "teamId": project.TeamID}, clientIP); err != nil {
		return nil, err
	}
	return project, nil
}

// GetProject loads a project visible to the caller.
func (s *Service) GetProject(ctx context.Context, actor auth.Identity, id string) (*Project, error) {
	project, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := scoped(actor.Scope(), project.TeamID); err != nil {
		return nil, err
	}
	return project, nil
}

// ListProjects returns the projects visible to the caller.
func (s *Service) ListProjects(ctx context.Context, actor auth.Identity, filter ProjectFilter, page Pagination) (Page[Project], error) {
	page = page.Normalize("name", "status", "created_at")
	projects, total, err := s.projects.List(ctx, actor.Scope(), filter, page)
	if err != nil {
		return Page[Project]{}, err
	}
	if projects == nil {
		projects = []Project{}
	}
	return Page[Project]{Data: projects, Meta: NewMeta(page, total)}, nil
}

// ProjectUpdate is a partial project patch.
type ProjectUpdate struct {
	Name        *string
	Description *string
	Status      *ProjectStatus
	TeamID      *string
}

// UpdateProject patches a project. Reassigning the team is the "assign
// project to team" operation and is audited as ASSIGN.
func (s *Service) UpdateProject(ctx context.Context, actor auth.Identity, id string, upd ProjectUpdate, clientIP string) (*Project, error) {
	project, err := s.GetProject(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	oldValues := map[string]any{"name": project.Name, "status": project.Status, "teamId": project.TeamID}
	action := "UPDATE"

	if upd.Name != nil {
		n := strings.TrimSpace(*upd.Name)
		if n == "" {
			return nil, fmt.Errorf("%w: project name is required", auth.ErrInvalidInput)
		}
		project.Name = n
	}
	if upd.Description != nil {
		project.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Status != nil {
		if !ValidProjectStatus(*upd.Status) {
			return nil, fmt.Errorf("%w: unsupported project status %q", auth.ErrInvalidInput, *upd.Status)
		}
		project.Status = *upd.Status
	}
	if upd.TeamID != nil && *upd.TeamID != project.TeamID {
		if *upd.TeamID != "" {
			if _, err := s.teams.Get(ctx, *upd.TeamID); err != nil {
				return nil, fmt.Errorf("%w: team not found", auth.ErrNotFound)
			}
		}
		project.TeamID = *upd.TeamID
		action = "ASSIGN"
	}

	if err := s.projects.Update(ctx, project); err != nil {
		return nil, err
	}
	if err := s.record(ctx, actor, action, "projects", project.ID, oldValues,
		map[string]any{"name": project.Name, "status": project.Status, "teamId": project.TeamID}, clientIP); err != nil {
		return nil, err
	}
	return project, nil
}

// DeleteProject removes a project and cascades to its tasks and documents.
func (s *Service) DeleteProject(ctx context.Context, actor auth.Identity, id, clientIP string) error {
	project, err := s.GetProject(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, project.ID); err != nil {
		return err
	}
	return s.record(ctx, actor, "DELETE", "projects", project.ID,
		map[string]any{"name": project.Name, "teamId": project.TeamID}, nil, clientIP)
}

// Tasks

// CreateTaskInput is the input for CreateTask.
type CreateTaskInput struct {
	Title       string
	Description string
	ProjectID   string
	AssigneeID  string
	Status      TaskStatus
	Priority    TaskPriority
	DueDate     *time.Time
}

// CreateTask adds a task under an existing project.
func (s *Service) CreateTask(ctx context.Context, actor auth.Identity, in CreateTaskInput, clientIP string) (*Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: task title is required", auth.ErrInvalidInput)
	}
	project, err := s.GetProject(ctx, actor, in.ProjectID)
	if err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = TaskTodo
	}
	if !ValidTaskStatus(in.Status) {
		return nil, fmt.Errorf("%w: unsupported task status %q", auth.ErrInvalidInput, in.Status)
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !ValidTaskPriority(in.Priority) {
		return nil, fmt.Errorf("%w: unsupported task priority %q", auth.ErrInvalidInput, in.Priority)
	}

	task := &Task{
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Status:      in.Status,
		Priority:    in.Priority,
		ProjectID:   project.ID,
		TeamID:      project.TeamID,
		CreatedByID: actor.UserID,
		DueDate:     in.DueDate,
	}
	if in.AssigneeID != "" {
		task.Assignee = &UserRef{ID: in.AssigneeID}
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	if err := s.record(ctx, actor, "CREATE", "tasks", task.ID, nil,
		map[string]any{"title": task.Title, "projectId": task.ProjectID}, clientIP); err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask loads a task visible to the caller. Visibility resolves through
// the parent project's team.
func (s *Service) GetTask(ctx context.Context, actor auth.Identity, id string) (*Task, error) {
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := scoped(actor.Scope(), task.TeamID); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns the tasks visible to the caller.
func (s *Service) ListTasks(ctx context.Context, actor auth.Identity, filter TaskFilter, page Pagination) (Page[Task], error) {
	if filter.Status != "" && !ValidTaskStatus(filter.Status) {
		return Page[Task]{}, fmt.Errorf("%w: unsupported task status %q", auth.ErrInvalidInput, filter.Status)
	}
	if filter.Priority != "" && !ValidTaskPriority(filter.Priority) {
		return Page[Task]{}, fmt.Errorf("%w: unsupported task priority %q", auth.ErrInvalidInput, filter.Priority)
	}
	page = page.Normalize("title", "status", "priority", "due_date", "created_at")
	tasks, total, err := s.tasks.List(ctx, actor.Scope(), filter, page)
	if err != nil {
		return Page[Task]{}, err
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return Page[Task]{Data: tasks, Meta: NewMeta(page, total)}, nil
}

// TaskUpdate is a partial task patch.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	Priority    *TaskPriority
	DueDate     **time.Time
}

// UpdateTask patches a task.
func (s *Service) UpdateTask(ctx context.Context, actor auth.Identity, id string, upd TaskUpdate, clientIP string) (*Task, error) {
	task, err := s.GetTask(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	oldValues := map[string]any{"title": task.Title, "status": task.Status, "priority": task.Priority}

	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: task title is required", auth.ErrInvalidInput)
		}
		task.Title = title
	}
	if upd.Description != nil {
		task.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Status != nil {
		if !ValidTaskStatus(*upd.Status) {
			return nil, fmt.Errorf("%w: unsupported task status %q", auth.ErrInvalidInput, *upd.Status)
		}
		task.Status = *upd.Status
	}
	if upd.Priority != nil {
		if !ValidTaskPriority(*upd.Priority) {
			return nil, fmt.Errorf("%w: unsupported task priority %q", auth.ErrInvalidInput, *upd.Priority)
		}
		task.Priority = *upd.Priority
	}
	if upd.DueDate != nil {
		task.DueDate = *upd.DueDate
	}

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, err
	}
	if err := s.record(ctx, actor, "UPDATE", "tasks", task.ID, oldValues,
		map[string]any{"title": task.Title, "status": task.Status, "priority": task.Priority}, clientIP); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, actor auth.Identity, id, clientIP string) error {
	task, err := s.GetTask(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, task.ID); err != nil {
		return err
	}
	return s.record(ctx, actor, "DELETE", "tasks", task.ID,
		map[string]any{"title": task.Title, "projectId": task.ProjectID}, nil, clientIP)
}

// AssignTask sets or clears the task's assignee.
func (s *Service) AssignTask(ctx context.Context, actor auth.Identity, id string, assigneeID *string, clientIP string) (*Task, error) {
	task, err := s.GetTask(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	var oldAssignee any
	if task.Assignee != nil {
		oldAssignee = task.Assignee.ID
	}
	if err := s.tasks.Assign(ctx, task.ID, assigneeID); err != nil {
		return nil, err
	}
	var newAssignee any
	if assigneeID != nil {
		newAssignee = *assigneeID
	}
	if err := s.record(ctx, actor, "ASSIGN", "tasks", task.ID,
		map[string]any{"assigneeId": oldAssignee},
		map[string]any{"assigneeId": newAssignee}, clientIP); err != nil {
		return nil, err
	}
	return s.GetTask(ctx, actor, id)
}

// Documents

// CreateDocumentInput is the input for CreateDocument.
type CreateDocumentInput struct {
	Title     string
	Content   string
	ProjectID string
}

// CreateDocument adds a document under an existing project.
func (s *Service) CreateDocument(ctx context.Context, actor auth.Identity, in CreateDocumentInput, clientIP string) (*Document, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: document title is required", auth.ErrInvalidInput)
	}
	project, err := s.GetProject(ctx, actor, in.ProjectID)
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Title:       in.Title,
		Content:     in.Content,
		ProjectID:   project.ID,
		TeamID:      project.TeamID,
		CreatedByID: actor.UserID,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.record(ctx, actor, "CREATE", "documents", doc.ID, nil,
		map[string]any{"title": doc.Title, "projectId": doc.ProjectID}, clientIP); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument loads a document visible to the caller.
func (s *Service) GetDocument(ctx context.Context, actor auth.Identity, id string) (*Document, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := scoped(actor.Scope(), doc.TeamID); err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns the documents visible to the caller.
func (s *Service) ListDocuments(ctx context.Context, actor auth.Identity, filter DocumentFilter, page Pagination) (Page[Document], error) {
	page = page.Normalize("title", "created_at")
	docs, total, err := s.documents.List(ctx, actor.Scope(), filter, page)
	if err != nil {
		return Page[Document]{}, err
	}
	if docs == nil {
		docs = []Document{}
	}
	return Page[Document]{Data: docs, Meta: NewMeta(page, total)}, nil
}

// DocumentUpdate is a partial document patch.
type DocumentUpdate struct {
	Title   *string
	Content *string
}

// UpdateDocument patches a document.
func (s *Service) UpdateDocument(ctx context.Context, actor auth.Identity, id string, upd DocumentUpdate, clientIP string) (*Document, error) {
	doc, err := s.GetDocument(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	oldValues := map[string]any{"title": doc.Title}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: document title is required", auth.ErrInvalidInput)
		}
		doc.Title = title
	}
	if upd.Content != nil {
		doc.Content = *upd.Content
	}
	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.record(ctx, actor, "UPDATE", "documents", doc.ID, oldValues,
		map[string]any{"title": doc.Title}, clientIP); err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes a document.
func (s *Service) DeleteDocument(ctx context.Context, actor auth.Identity, id, clientIP string) error {
	doc, err := s.GetDocument(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.documents.Delete(ctx, doc.ID); err != nil {
		return err
	}
	return s.record(ctx, actor, "DELETE", "documents", doc.ID,
		map[string]any{"title": doc.Title, "projectId": doc.ProjectID}, nil, clientIP)
}
