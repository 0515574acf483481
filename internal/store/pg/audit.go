package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"opsdeck.io/internal/audit"
	"opsdeck.io/internal/auth"
	"opsdeck.io/internal/ids"
)

// AuditLog persists the append-only audit trail. Value snapshots are stored
// as jsonb.
type AuditLog struct {
	db *sql.DB
}

var _ audit.Store = (*AuditLog)(nil)

func marshalValues(values map[string]any) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal audit values: %w", err)
	}
	return raw, nil
}

func unmarshalValues(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *AuditLog) Insert(ctx context.Context, entry *audit.Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	oldValues, err := marshalValues(entry.OldValues)
	if err != nil {
		return err
	}
	newValues, err := marshalValues(entry.NewValues)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, `
		insert into audit_logs (id, user_id, action, resource_type, resource_id, old_values, new_values, ip_address, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at
	`, entry.ID, nullIfEmpty(entry.UserID), entry.Action, entry.ResourceType, entry.ResourceID,
		oldValues, newValues, nullIfEmpty(entry.IPAddress), nullIfEmpty(entry.UserAgent)).
		Scan(&entry.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

const auditSelect = `
	select a.id, a.user_id, u.name, u.email,
	       a.action, a.resource_type, a.resource_id,
	       a.old_values, a.new_values, a.ip_address, a.user_agent, a.created_at
	from audit_logs a
	left join users u on u.id = a.user_id
`

func (s *AuditLog) List(ctx context.Context, q audit.Query) ([]audit.Entry, int, error) {
	where := []string{}
	args := []any{}
	if q.ResourceType != "" {
		args = append(args, q.ResourceType)
		where = append(where, fmt.Sprintf("a.resource_type = $%d", len(args)))
	}
	if q.ResourceID != "" {
		args = append(args, q.ResourceID)
		where = append(where, fmt.Sprintf("a.resource_id = $%d", len(args)))
	}
	if q.UserID != "" {
		args = append(args, q.UserID)
		where = append(where, fmt.Sprintf("a.user_id = $%d", len(args)))
	}
	if q.Action != "" {
		args = append(args, q.Action)
		where = append(where, fmt.Sprintf("a.action = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " where " + strings.Join(where, " and ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from audit_logs a`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dir := "desc"
	if strings.EqualFold(q.SortOrder, "asc") {
		dir = "asc"
	}
	order := fmt.Sprintf(" order by a.created_at %s limit %d offset %d", dir, q.Limit, q.Offset())

	rows, err := s.db.QueryContext(ctx, auditSelect+clause+order, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *entry)
	}
	return entries, total, rows.Err()
}

func (s *AuditLog) Get(ctx context.Context, id string) (*audit.Entry, error) {
	row := s.db.QueryRowContext(ctx, auditSelect+` where a.id = $1`, id)
	entry, err := scanAuditEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *AuditLog) ResourceHistory(ctx context.Context, resourceType, resourceID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, auditSelect+`
		where a.resource_type = $1 and a.resource_id = $2
		order by a.created_at asc
	`, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanAuditEntry(row rowScanner) (*audit.Entry, error) {
	var (
		entry     audit.Entry
		userID    sql.NullString
		userName  sql.NullString
		userEmail sql.NullString
		oldRaw    []byte
		newRaw    []byte
		ip        sql.NullString
		agent     sql.NullString
	)
	err := row.Scan(&entry.ID, &userID, &userName, &userEmail,
		&entry.Action, &entry.ResourceType, &entry.ResourceID,
		&oldRaw, &newRaw, &ip, &agent, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.UserID = userID.String
	if userID.Valid && (userName.Valid || userEmail.Valid) {
		entry.User = &audit.Actor{
			ID:    userID.String,
			Name:  userName.String,
			Email: userEmail.String,
		}
	}
	entry.IPAddress = ip.String
	entry.UserAgent = agent.String
	if entry.OldValues, err = unmarshalValues(oldRaw); err != nil {
		return nil, err
	}
	if entry.NewValues, err = unmarshalValues(newRaw); err != nil {
		return nil, err
	}
	return &entry, nil
}
