// Package sessionx is the client-side session shell for the opsdeck API.
// It owns the token pair, exposes an explicit Init/Refresh/Clear lifecycle
// and keeps the cached permission set current through scheduled refresh
// triggers instead of ambient global state.
package sessionx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrNoSession is returned when an operation needs tokens and none are held.
var ErrNoSession = errors.New("sessionx: no active session")

// ErrSessionExpired is returned when the refresh token no longer works. The
// session clears itself before returning it.
var ErrSessionExpired = errors.New("sessionx: session expired")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sessionx: %s (status %d)", e.Message, e.StatusCode)
}

// RoleSummary mirrors the role fragment embedded in session payloads.
type RoleSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Scope string `json:"scope"`
}

// TeamRef mirrors a team membership fragment.
type TeamRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is the sanitized user view returned by the server.
type User struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	IsActive  bool        `json:"isActive"`
	Role      RoleSummary `json:"role"`
	Teams     []TeamRef   `json:"teams"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Snapshot is the session state as of the last issuance. Permissions are a
// point-in-time copy; they stay valid until the access token expires or the
// next refresh replaces them.
type Snapshot struct {
	User             User      `json:"user"`
	Permissions      []string  `json:"permissions"`
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Client talks to one opsdeck API base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient constructs a Client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session holds the authenticated state. All methods are safe for
// concurrent use.
type Session struct {
	client *Client

	mu     sync.RWMutex
	snap   Snapshot
	active bool
	stop   chan struct{}

	onPermissionsChanged func(old, updated []string)
	onCleared            func()
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// OnPermissionsChanged registers a callback fired whenever a refresh or
// whoami call returns a permission set that differs from the cached one.
// The shell uses it to invalidate permission-gated views.
func OnPermissionsChanged(fn func(old, updated []string)) SessionOption {
	return func(s *Session) { s.onPermissionsChanged = fn }
}

// OnCleared registers a callback fired when the session state is dropped.
func OnCleared(fn func()) SessionOption {
	return func(s *Session) { s.onCleared = fn }
}

// NewSession constructs an empty session. Call Init or Resume to populate it.
func (c *Client) NewSession(opts ...SessionOption) *Session {
	s := &Session{client: c}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init authenticates with credentials and populates the session.
func (s *Session) Init(ctx context.Context, email, password string) (Snapshot, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := s.client.postSession(ctx, "/v1/auth/login", payload, "")
	if err != nil {
		return Snapshot{}, err
	}
	s.install(snap)
	return snap, nil
}

// Resume seeds the session from stored tokens without contacting the
// server. The next Refresh or Me call validates them.
func (s *Session) Resume(snap Snapshot) {
	s.install(snap)
}

// Refresh trades the refresh token for a fresh pair. A rejected refresh
// token clears the session and returns ErrSessionExpired.
func (s *Session) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	refreshToken := s.snap.RefreshToken
	active := s.active
	s.mu.RUnlock()
	if !active || refreshToken == "" {
		return Snapshot{}, ErrNoSession
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := s.client.postSession(ctx, "/v1/auth/refresh", payload, "")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			s.Clear()
			return Snapshot{}, ErrSessionExpired
		}
		return Snapshot{}, err
	}
	s.install(snap)
	return snap, nil
}

// Me fetches the current identity. The server reissues a token pair on
// every call, so this doubles as a permission re-sync.
func (s *Session) Me(ctx context.Context) (Snapshot, error) {
	resp, err := s.Do(ctx, http.MethodGet, "/v1/auth/me", nil)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := decodeSession(resp, &snap); err != nil {
		return Snapshot{}, err
	}
	s.install(snap)
	return snap, nil
}

// Clear drops all session state and stops the auto-refresh task if one is
// running.
func (s *Session) Clear() {
	s.mu.Lock()
	wasActive := s.active
	s.snap = Snapshot{}
	s.active = false
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
	if wasActive && s.onCleared != nil {
		s.onCleared()
	}
}

// Active reports whether the session holds tokens.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Permissions = append([]string(nil), s.snap.Permissions...)
	return snap
}

// Can evaluates the cached permission set against required permissions.
// Any one match suffices; an empty requirement always passes. Matching
// supports the exact pair, the resource wildcard "resource:*" and the
// super wildcard "*".
func (s *Session) Can(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	s.mu.RLock()
	held := s.snap.Permissions
	s.mu.RUnlock()
	for _, req := range required {
		for _, h := range held {
			if permissionMatches(h, req) {
				return true
			}
		}
	}
	return false
}

func permissionMatches(held, required string) bool {
	if held == "*" || held == required {
		return true
	}
	resource, ok := strings.CutSuffix(held, ":*")
	if !ok {
		return false
	}
	return strings.HasPrefix(required, resource+":")
}

// AutoRefresh starts a background task that refreshes the session at the
// given interval. The returned stop function cancels it; Clear cancels it
// too. Refresh failures are absorbed because a dead refresh token already
// clears the session.
func (s *Session) AutoRefresh(interval time.Duration) (stop func()) {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	ch := make(chan struct{})
	s.stop = ch
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ch:
				return
			case <-ticker.C:
				_, _ = s.Refresh(context.Background())
			}
		}
	}()

	return func() {
		s.mu.Lock()
		if s.stop == ch {
			s.stop = nil
		}
		s.mu.Unlock()
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

// VisibilityRegained refreshes immediately. The UI shell calls it when the
// app window regains focus so a stale permission set never survives a
// foreground switch.
func (s *Session) VisibilityRegained(ctx context.Context) error {
	_, err := s.Refresh(ctx)
	return err
}

// Do performs an authenticated request. On a 401 it refreshes once and
// retries; a second rejection clears the session and returns
// ErrSessionExpired. The refresh never loops.
func (s *Session) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	s.mu.RLock()
	token := s.snap.AccessToken
	active := s.active
	s.mu.RUnlock()
	if !active {
		return nil, ErrNoSession
	}

	resp, err := s.client.request(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	snap, err := s.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	resp, err = s.client.request(ctx, method, path, body, snap.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		s.Clear()
		return nil, ErrSessionExpired
	}
	return resp, nil
}

func (s *Session) install(snap Snapshot) {
	s.mu.Lock()
	old := s.snap.Permissions
	wasActive := s.active
	s.snap = snap
	s.active = true
	s.mu.Unlock()

	if s.onPermissionsChanged != nil && wasActive && !samePermissions(old, snap.Permissions) {
		s.onPermissionsChanged(old, snap.Permissions)
	}
}

func samePermissions(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, p := range a {
		seen[p]++
	}
	for _, p := range b {
		if seen[p] == 0 {
			return false
		}
		seen[p]--
	}
	return true
}

func (c *Client) request(ctx context.Context, method, path string, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.httpClient.Do(req)
}

func (c *Client) postSession(ctx context.Context, path string, body []byte, token string) (Snapshot, error) {
	resp, err := c.request(ctx, http.MethodPost, path, body, token)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := decodeSession(resp, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func decodeSession(resp *http.Response, snap *Snapshot) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp.StatusCode, raw)
	}
	return json.Unmarshal(raw, snap)
}

func parseErrorResponse(status int, raw []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)
	if body.Error == "" {
		body.Error = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: body.Error}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
