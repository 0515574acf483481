package httpapi

import (
	"net/http"
	"testing"

	"opsdeck.io/internal/audit"
	"opsdeck.io/internal/workspace"
)

func (f *fixture) seedAuditTrail(t *testing.T) *workspace.Team {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/teams", f.token(t, f.admin), map[string]any{
		"name": "Audited",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed team status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var team workspace.Team
	decodeBody(t, rec, &team)
	return &team
}

func TestAuditListAfterWrites(t *testing.T) {
	f := newFixture(t, Options{})
	team := f.seedAuditTrail(t)

	rec := f.do(t, http.MethodGet, "/v1/audit", f.token(t, f.admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var page struct {
		Data []audit.Entry  `json:"data"`
		Meta workspace.Meta `json:"meta"`
	}
	decodeBody(t, rec, &page)
	if len(page.Data) != 1 || page.Meta.Total != 1 {
		t.Fatalf("page = %+v, want one entry", page)
	}
	entry := page.Data[0]
	if entry.Action != audit.ActionCreate || entry.ResourceType != "teams" || entry.ResourceID != team.ID {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.UserID != f.admin.ID {
		t.Fatalf("userId = %q, want %q", entry.UserID, f.admin.ID)
	}
}

func TestAuditListFilters(t *testing.T) {
	f := newFixture(t, Options{})
	team := f.seedAuditTrail(t)
	token := f.token(t, f.admin)

	rec := f.do(t, http.MethodPatch, "/v1/teams/"+team.ID, token, map[string]any{
		"name": "Audited Twice",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/v1/audit?action=UPDATE", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var page struct {
		Data []audit.Entry `json:"data"`
	}
	decodeBody(t, rec, &page)
	if len(page.Data) != 1 || page.Data[0].Action != audit.ActionUpdate {
		t.Fatalf("data = %+v, want one UPDATE entry", page.Data)
	}
}

func TestAuditEntryByID(t *testing.T) {
	f := newFixture(t, Options{})
	f.seedAuditTrail(t)
	token := f.token(t, f.admin)

	id := f.auditlog.entries[0].ID
	rec := f.do(t, http.MethodGet, "/v1/audit/"+id, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var entry audit.Entry
	decodeBody(t, rec, &entry)
	if entry.ID != id {
		t.Fatalf("id = %q, want %q", entry.ID, id)
	}

	rec = f.do(t, http.MethodGet, "/v1/audit/missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing entry = %d, want 404", rec.Code)
	}
}

func TestAuditResourceHistory(t *testing.T) {
	f := newFixture(t, Options{})
	team := f.seedAuditTrail(t)
	token := f.token(t, f.admin)

	rec := f.do(t, http.MethodPatch, "/v1/teams/"+team.ID, token, map[string]any{
		"name": "Renamed",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/v1/audit/teams/"+team.ID+"/history", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Data []audit.Entry `json:"data"`
	}
	decodeBody(t, rec, &body)
	if len(body.Data) != 2 {
		t.Fatalf("history = %d entries, want 2", len(body.Data))
	}
}

func TestAuditRequiresPermission(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodGet, "/v1/audit", f.token(t, f.member), nil)
	wantError(t, rec, http.StatusForbidden, "Missing required permission: audit:read")
}

func TestAuditEntriesOmitCredentialValues(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(t, http.MethodPost, "/v1/roles", f.token(t, f.admin), map[string]any{
		"name": "Audited role",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	for _, e := range f.auditlog.entries {
		for key := range e.NewValues {
			if key == "password" || key == "token" || key == "secret" {
				t.Fatalf("sensitive key %q leaked into audit values", key)
			}
		}
	}
}
