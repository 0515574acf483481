package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"opsdeck.io/internal/audit"
)

func TestAuditInsertMarshalsValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("insert into audit_logs").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "UPDATE", "teams", "team-1",
			[]byte(`{"name":"Old"}`), []byte(`{"name":"New"}`), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	entry := &audit.Entry{
		UserID:       "user-1",
		Action:       audit.ActionUpdate,
		ResourceType: "teams",
		ResourceID:   "team-1",
		OldValues:    map[string]any{"name": "Old"},
		NewValues:    map[string]any{"name": "New"},
	}
	if err := NewStore(db).AuditLog().Insert(context.Background(), entry); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("expected generated id")
	}
	if !entry.CreatedAt.Equal(now) {
		t.Fatalf("created_at not populated: %v", entry.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditInsertEmptyValuesStoredAsNull(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("insert into audit_logs").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "DELETE", "tasks", "task-9",
			nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	entry := &audit.Entry{
		Action:       audit.ActionDelete,
		ResourceType: "tasks",
		ResourceID:   "task-9",
	}
	if err := NewStore(db).AuditLog().Insert(context.Background(), entry); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
