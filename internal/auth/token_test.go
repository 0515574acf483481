package auth

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func testUser() *User {
	return &User{
		ID:       "user-1",
		Email:    "manager@demo.com",
		Name:     "Manager User",
		IsActive: true,
		RoleID:   "role-manager",
		Role: Role{
			ID:    "role-manager",
			Name:  "Manager",
			Scope: ScopeTeam,
			Permissions: []Permission{
				{ID: "p1", Resource: ResourceTasks, Action: ActionRead},
				{ID: "p2", Resource: ResourceTasks, Action: ActionUpdate},
			},
		},
		Teams: []TeamRef{{ID: "team-eng", Name: "Engineering"}},
	}
}

func newTestIssuer(t *testing.T, opts ...IssuerOption) *Issuer {
	t.Helper()
	iss, err := NewIssuer("access-secret", "refresh-secret", opts...)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss
}

func TestNewIssuerRejectsBadSecrets(t *testing.T) {
	if _, err := NewIssuer("", "refresh"); err == nil {
		t.Fatalf("expected error for empty access secret")
	}
	if _, err := NewIssuer("access", ""); err == nil {
		t.Fatalf("expected error for empty refresh secret")
	}
	if _, err := NewIssuer("same", "same"); err == nil {
		t.Fatalf("expected error for identical secrets")
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	iss := newTestIssuer(t)
	pair, err := iss.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatalf("refresh token should outlive access token")
	}

	claims, err := iss.Verify(pair.AccessToken, AccessToken)
	if err != nil {
		t.Fatalf("Verify access: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Email != "manager@demo.com" {
		t.Fatalf("unexpected email: %s", claims.Email)
	}
	if claims.Role.Name != "Manager" || claims.Role.Scope != ScopeTeam {
		t.Fatalf("role was not preserved: %+v", claims.Role)
	}
	if !slices.Contains(claims.Permissions, "tasks:read") || !slices.Contains(claims.Permissions, "tasks:update") {
		t.Fatalf("permissions were not preserved: %v", claims.Permissions)
	}
	if !slices.Contains(claims.TeamIDs, "team-eng") {
		t.Fatalf("team ids were not preserved: %v", claims.TeamIDs)
	}

	if _, err := iss.Verify(pair.RefreshToken, RefreshToken); err != nil {
		t.Fatalf("Verify refresh: %v", err)
	}
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	iss := newTestIssuer(t)
	pair, err := iss.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := iss.Verify(pair.RefreshToken, AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}
	if _, err := iss.Verify(pair.AccessToken, RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted as refresh token: %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	issued := newTestIssuer(t, WithClock(func() time.Time { return past }))
	pair, err := issued.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	verifier := newTestIssuer(t)
	if _, err := verifier.Verify(pair.AccessToken, AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired access token accepted: %v", err)
	}
	// Refresh TTL is a week, so the hour-old refresh token still verifies.
	if _, err := verifier.Verify(pair.RefreshToken, RefreshToken); err != nil {
		t.Fatalf("refresh token should still be valid: %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	iss := newTestIssuer(t)
	pair, err := iss.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, err := NewIssuer("other-access", "other-refresh")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	if _, err := other.Verify(pair.AccessToken, AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token with foreign signature accepted: %v", err)
	}
	if _, err := iss.Verify("not-a-token", AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token accepted: %v", err)
	}
	if _, err := iss.Verify("", AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token accepted: %v", err)
	}
}

func TestIssueSnapshotsEmptySlices(t *testing.T) {
	iss := newTestIssuer(t)
	u := testUser()
	u.Teams = nil
	u.Role.Permissions = nil

	pair, err := iss.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := iss.Verify(pair.AccessToken, AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Permissions == nil || len(claims.Permissions) != 0 {
		t.Fatalf("expected empty permissions slice, got %v", claims.Permissions)
	}
	if claims.TeamIDs == nil || len(claims.TeamIDs) != 0 {
		t.Fatalf("expected empty team ids slice, got %v", claims.TeamIDs)
	}
}
