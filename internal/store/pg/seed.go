package pg

import (
	"context"
	"errors"
	"fmt"

	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/ids"
	"opsdeck.io/internal/obs"
	"opsdeck.io/internal/workspace"
)

// DemoPassword is the password of every seeded demo account.
const DemoPassword = "Pass111!"

type seedUser struct {
	email string
	name  string
	role  string
}

var demoUsers = []seedUser{
	{email: "superadmin@demo.com", name: "Super Admin", role: "Super Admin"},
	{email: "admin@demo.com", name: "Admin User", role: "Admin"},
	{email: "manager@demo.com", name: "Manager User", role: "Manager"},
	{email: "viewer@demo.com", name: "Viewer User", role: "Viewer"},
}

type seedTeam struct {
	name        string
	description string
}

var demoTeams = []seedTeam{
	{name: "Engineering", description: "Software development team"},
	{name: "Design", description: "UI/UX design team"},
	{name: "Marketing", description: "Marketing and growth team"},
}

type seedProject struct {
	name        string
	description string
	teamIndex   int
	status      workspace.ProjectStatus
}

var demoProjects = []seedProject{
	{name: "Website Redesign", description: "Redesign company website", teamIndex: 1, status: workspace.ProjectActive},
	{name: "Mobile App", description: "Build mobile application", teamIndex: 0, status: workspace.ProjectActive},
	{name: "Q1 Campaign", description: "Q1 marketing campaign", teamIndex: 2, status: workspace.ProjectActive},
}

type seedTask struct {
	title        string
	projectIndex int
	status       workspace.TaskStatus
	priority     workspace.TaskPriority
}

var demoTasks = []seedTask{
	{title: "Create wireframes", projectIndex: 0, status: workspace.TaskInProgress, priority: workspace.PriorityHigh},
	{title: "Setup CI/CD", projectIndex: 1, status: workspace.TaskDone, priority: workspace.PriorityHigh},
	{title: "Design email templates", projectIndex: 2, status: workspace.TaskTodo, priority: workspace.PriorityMedium},
	{title: "User research", projectIndex: 0, status: workspace.TaskTodo, priority: workspace.PriorityMedium},
	{title: "API development", projectIndex: 1, status: workspace.TaskInProgress, priority: workspace.PriorityHigh},
}

type seedDocument struct {
	title        string
	projectIndex int
	content      string
}

var demoDocuments = []seedDocument{
	{title: "Design Guidelines", projectIndex: 0, content: "Design guidelines for the website redesign project."},
	{title: "API Documentation", projectIndex: 1, content: "API documentation for the mobile app."},
	{title: "Campaign Brief", projectIndex: 2, content: "Brief for the Q1 marketing campaign."},
}

// Seed installs the permission catalog and system roles, then loads demo
// accounts and workspace data. Running twice is safe: catalog and roles are
// upserted, and demo data is skipped once any user exists.
func (s *Store) Seed(ctx context.Context) error {
	log := obs.Logger()

	perms := s.Permissions()
	if err := perms.Ensure(ctx, auth.BuiltinPermissions); err != nil {
		return fmt.Errorf("seed permissions: %w", err)
	}
	catalog, err := perms.List(ctx)
	if err != nil {
		return err
	}
	log.Printf("seed: permission catalog ready (%d entries)", len(catalog))

	roleIDs, err := s.seedSystemRoles(ctx, catalog)
	if err != nil {
		return err
	}

	var userCount int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&userCount); err != nil {
		return err
	}
	if userCount > 0 {
		log.Printf("seed: users already present, skipping demo data")
		return nil
	}

	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return err
	}
	userIDs := map[string]string{}
	for _, u := range demoUsers {
		roleID, ok := roleIDs[u.role]
		if !ok {
			return fmt.Errorf("seed: unknown role %q for %s", u.role, u.email)
		}
		id := ids.New()
		if _, err := s.db.ExecContext(ctx, `
			insert into users (id, email, name, password_hash, role_id, is_active)
			values ($1, $2, $3, $4, $5, true)
		`, id, u.email, u.name, hash, roleID); err != nil {
			return fmt.Errorf("seed user %s: %w", u.email, err)
		}
		userIDs[u.email] = id
	}
	log.Printf("seed: %d demo users created", len(demoUsers))

	teams := s.Teams()
	teamIDs := make([]string, len(demoTeams))
	for i, t := range demoTeams {
		team := &workspace.Team{Name: t.name, Description: t.description}
		if err := teams.Create(ctx, team); err != nil {
			return fmt.Errorf("seed team %s: %w", t.name, err)
		}
		teamIDs[i] = team.ID
	}
	if _, err := teams.SetMembers(ctx, teamIDs[0], []string{
		userIDs["manager@demo.com"], userIDs["viewer@demo.com"],
	}); err != nil {
		return err
	}

	projects := s.Projects()
	projectIDs := make([]string, len(demoProjects))
	for i, p := range demoProjects {
		project := &workspace.Project{
			Name:        p.name,
			Description: p.description,
			Status:      p.status,
			TeamID:      teamIDs[p.teamIndex],
		}
		if err := projects.Create(ctx, project); err != nil {
			return fmt.Errorf("seed project %s: %w", p.name, err)
		}
		projectIDs[i] = project.ID
	}

	tasks := s.Tasks()
	for _, t := range demoTasks {
		task := &workspace.Task{
			Title:     t.title,
			Status:    t.status,
			Priority:  t.priority,
			ProjectID: projectIDs[t.projectIndex],
		}
		if err := tasks.Create(ctx, task); err != nil {
			return fmt.Errorf("seed task %s: %w", t.title, err)
		}
	}

	documents := s.Documents()
	for _, d := range demoDocuments {
		doc := &workspace.Document{
			Title:     d.title,
			Content:   d.content,
			ProjectID: projectIDs[d.projectIndex],
		}
		if err := documents.Create(ctx, doc); err != nil {
			return fmt.Errorf("seed document %s: %w", d.title, err)
		}
	}

	log.Printf("seed: demo workspace loaded (%d teams, %d projects, %d tasks, %d documents)",
		len(demoTeams), len(demoProjects), len(demoTasks), len(demoDocuments))
	return nil
}

// seedSystemRoles upserts the built-in roles and their permission sets,
// returning role ids by name.
func (s *Store) seedSystemRoles(ctx context.Context, catalog []auth.Permission) (map[string]string, error) {
	byPair := make(map[string]string, len(catalog))
	for _, p := range catalog {
		byPair[p.String()] = p.ID
	}

	roles := s.Roles()
	out := map[string]string{}
	for _, sys := range auth.SystemRoles() {
		existing, err := roles.GetByName(ctx, sys.Name)
		switch {
		case err == nil:
			out[sys.Name] = existing.ID
			continue
		case !errors.Is(err, auth.ErrNotFound):
			return nil, err
		}

		role := &auth.Role{
			Name:        sys.Name,
			Description: sys.Description,
			Scope:       sys.Scope,
			IsSystem:    true,
		}
		if err := roles.Create(ctx, role); err != nil {
			return nil, fmt.Errorf("seed role %s: %w", sys.Name, err)
		}
		permIDs := []string{}
		for _, p := range auth.ExpandSystemRole(sys) {
			if id, ok := byPair[p.String()]; ok {
				permIDs = append(permIDs, id)
			}
		}
		if _, err := roles.SetPermissions(ctx, role.ID, permIDs); err != nil {
			return nil, fmt.Errorf("seed role %s permissions: %w", sys.Name, err)
		}
		out[sys.Name] = role.ID
	}
	return out, nil
}
