package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"opsdeck.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context so mirrored
// audit lines can be correlated with request logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// logEntry mirrors a persisted audit entry as one structured JSON log line.
func logEntry(ctx context.Context, entry *Entry, actorEmail string) {
	line := map[string]any{
		"ts":            time.Now().UTC().Format(time.RFC3339Nano),
		"type":          "audit",
		"action":        entry.Action,
		"resource_type": entry.ResourceType,
		"resource_id":   entry.ResourceID,
		"user_id":       entry.UserID,
	}
	if actorEmail != "" {
		line["user_email"] = actorEmail
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		line["request_id"] = rid
	}
	if entry.IPAddress != "" {
		line["ip"] = entry.IPAddress
	}
	data, err := json.Marshal(line)
	if err != nil {
		obs.Logger().Println(`{"type":"audit","error":"log marshal failed"}`)
		return
	}
	obs.Logger().Println(string(data))
}
