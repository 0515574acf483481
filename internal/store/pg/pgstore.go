// Package pg implements the storage contracts on PostgreSQL through
// database/sql with the pgx stdlib driver.
package pg

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"opsdeck.io/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store owns the connection pool. Entity stores share it.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool. Used by tests with sqlmock.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users() *Users             { return &Users{db: s.db} }
func (s *Store) Roles() *Roles             { return &Roles{db: s.db} }
func (s *Store) Permissions() *Permissions { return &Permissions{db: s.db} }
func (s *Store) Teams() *Teams             { return &Teams{db: s.db} }
func (s *Store) Projects() *Projects       { return &Projects{db: s.db} }
func (s *Store) Tasks() *Tasks             { return &Tasks{db: s.db} }
func (s *Store) Documents() *Documents     { return &Documents{db: s.db} }
func (s *Store) AuditLog() *AuditLog       { return &AuditLog{db: s.db} }
func (s *Store) Dashboard() *Dashboard     { return &Dashboard{db: s.db} }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapWriteError translates constraint violations into domain sentinels.
func mapWriteError(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return auth.ErrConflict
		case pgErrForeignKeyViolation:
			return auth.ErrNotFound
		}
	}
	return err
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// teamSet is the array bound into "= any($n)" for team-scoped queries. A
// caller with no teams binds the empty array, which matches no rows.
func teamSet(scope auth.ScopeFilter) []string {
	if scope.TeamIDs == nil {
		return []string{}
	}
	return scope.TeamIDs
}
