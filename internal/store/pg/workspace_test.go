package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/workspace"
)

func TestTasksGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	due := now.Add(72 * time.Hour)
	mock.ExpectQuery("from tasks k").
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "description", "status", "priority",
			"project_id", "p_name", "team_id",
			"u_id", "u_name", "u_email",
			"created_by_id", "due_date", "created_at", "updated_at",
		}).AddRow(
			"task-1", "Fix login", "Session drops", "in_progress", "high",
			"project-1", "Website Redesign", "team-1",
			"user-2", "ManAger", "manager@demo.com",
			"user-1", due, now, now,
		))

	task, err := NewStore(db).Tasks().Get(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Status != workspace.TaskInProgress || task.Priority != workspace.PriorityHigh {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.TeamID != "team-1" || task.ProjectName != "Website Redesign" {
		t.Fatalf("project fields not resolved: %+v", task)
	}
	if task.Assignee == nil || task.Assignee.Email != "manager@demo.com" {
		t.Fatalf("unexpected assignee: %+v", task.Assignee)
	}
	if task.DueDate == nil || !task.DueDate.Equal(due) {
		t.Fatalf("unexpected due date: %v", task.DueDate)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTasksAssignUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select 1 from users").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	ghost := "ghost"
	err = NewStore(db).Tasks().Assign(context.Background(), "task-1", &ghost)
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTasksAssignClear(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update tasks set assignee_id").
		WithArgs("task-1", sql.NullString{}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewStore(db).Tasks().Assign(context.Background(), "task-1", nil); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTasksCreateMissingProject(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("insert into tasks").
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "tasks_project_id_fkey"})

	task := &workspace.Task{Title: "Orphan", Status: workspace.TaskTodo, Priority: workspace.PriorityMedium, ProjectID: "ghost"}
	err = NewStore(db).Tasks().Create(context.Background(), task)
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProjectsDeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("delete from projects").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewStore(db).Projects().Delete(context.Background(), "ghost")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
