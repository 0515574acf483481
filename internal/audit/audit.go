// Package audit records who changed what. Every mutation of a protected
// resource produces one entry carrying the acting user, the action, and
// before/after value snapshots with credentials stripped.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"opsdeck.io/internal/auth"
)

// Actions recorded in the trail.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
	ActionAssign = "ASSIGN"
)

// ValidAction reports whether a is a recordable action.
func ValidAction(a string) bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionAssign:
		return true
	}
	return false
}

// Actor is the user fragment attached to entries on read.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Entry is one persisted audit record.
type Entry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	User         *Actor         `json:"user,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType"`
	ResourceID   string         `json:"resourceId"`
	OldValues    map[string]any `json:"oldValues,omitempty"`
	NewValues    map[string]any `json:"newValues,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Query narrows audit list reads.
type Query struct {
	ResourceType string
	ResourceID   string
	UserID       string
	Action       string
	Page         int
	Limit        int
	SortOrder    string
}

// Normalize fills defaults and clamps the query to sane bounds.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.SortOrder != "ASC" && q.SortOrder != "asc" {
		q.SortOrder = "DESC"
	}
	return q
}

// Offset returns the row offset for the current page.
func (q Query) Offset() int { return (q.Page - 1) * q.Limit }

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, entry *Entry) error
	List(ctx context.Context, q Query) ([]Entry, int, error)
	Get(ctx context.Context, id string) (*Entry, error)
	ResourceHistory(ctx context.Context, resourceType, resourceID string) ([]Entry, error)
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwordHash":  true,
	"password_hash": true,
	"token":         true,
	"secret":        true,
}

// Sanitize strips credential-bearing keys from a value snapshot, including
// keys nested inside child maps. The input map is left untouched.
func Sanitize(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		if sensitiveKeys[k] {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Sanitize(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Recorder persists audit events and mirrors each one to the structured
// log. It satisfies the auth package's recorder contract.
type Recorder struct {
	store Store
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store Store) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	return &Recorder{store: store}, nil
}

// Record sanitizes and persists the event, then mirrors it to the log.
func (r *Recorder) Record(ctx context.Context, event auth.AuditEvent) error {
	action := strings.TrimSpace(event.Action)
	if !ValidAction(action) {
		return errors.New("audit: unknown action " + action)
	}
	if event.ResourceType == "" || event.ResourceID == "" {
		return errors.New("audit: resource type and id are required")
	}
	entry := &Entry{
		UserID:       event.ActorID,
		Action:       action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		OldValues:    Sanitize(event.OldValues),
		NewValues:    Sanitize(event.NewValues),
		IPAddress:    event.IP,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.Insert(ctx, entry); err != nil {
		return err
	}
	logEntry(ctx, entry, event.ActorEmail)
	return nil
}

// Store exposes the underlying store for read paths.
func (r *Recorder) Store() Store { return r.store }
