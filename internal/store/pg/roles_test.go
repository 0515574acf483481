package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"opsdeck.io/internal/auth"
)

func TestRolesCreateDuplicateName(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("insert into roles").
		WithArgs(sqlmock.AnyArg(), "support", sqlmock.AnyArg(), "global", false).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "roles_name_key"})

	role := &auth.Role{Name: "support", Scope: auth.ScopeGlobal}
	err = NewStore(db).Roles().Create(context.Background(), role)
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRolesUpdateMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update roles").
		WithArgs("role-x", "support", sqlmock.AnyArg(), "global").
		WillReturnResult(sqlmock.NewResult(0, 0))

	role := &auth.Role{ID: "role-x", Name: "support", Scope: auth.ScopeGlobal}
	err = NewStore(db).Roles().Update(context.Background(), role)
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRolesSetPermissionsDropsUnknownIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from roles").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("delete from role_permissions").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role-1", "perm-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into role_permissions").
		WithArgs("role-1", "bogus").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("update roles set updated_at").
		WithArgs("role-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("from role_permissions").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "resource", "action", "description", "created_at"}).
			AddRow("perm-1", "tasks", "read", nil, now))
	mock.ExpectCommit()

	perms, err := NewStore(db).Roles().SetPermissions(context.Background(), "role-1", []string{"perm-1", "bogus"})
	if err != nil {
		t.Fatalf("SetPermissions: %v", err)
	}
	if len(perms) != 1 || perms[0].ID != "perm-1" {
		t.Fatalf("unexpected permissions: %+v", perms)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRolesSetPermissionsMissingRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from roles").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	_, err = NewStore(db).Roles().SetPermissions(context.Background(), "ghost", []string{"perm-1"})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
