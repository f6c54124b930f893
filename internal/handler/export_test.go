package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/family"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/store"
)

func TestExportGEDCOM(t *testing.T) {
	e := setupHandlers(t)
	admin := e.user(t, "admin@example.com", model.RoleAdmin)
	member := e.user(t, "ada@example.com", model.RoleMember)
	e.person(t, "Ada", 0, model.VisibilityFamily, day(1950, 3, 14))

	wantStatus(t, call(t, e.familyH.ExportGEDCOM, member, "GET", "/export/gedcom", nil), http.StatusForbidden)

	rec := call(t, e.familyH.ExportGEDCOM, admin, "GET", "/export/gedcom", nil)
	wantStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="family.ged"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Header().Get("X-Export-Degraded") != "" {
		t.Error("X-Export-Degraded set on a clean export")
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "0 HEAD\n") {
		t.Errorf("body does not start with a header: %q", body[:min(len(body), 40)])
	}
	if !strings.Contains(body, "1 NAME Ada /Okafor/") {
		t.Error("body is missing the individual record")
	}
	if !strings.HasSuffix(body, "0 TRLR\n") {
		t.Error("body does not end with a trailer")
	}

	entries, err := e.auditLog.List(store.AuditFilter{Action: model.AuditExport})
	if err != nil {
		t.Fatalf("audit List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("export audit entries = %d, want 1", len(entries))
	}
}

func TestExportGEDCOMWithGrant(t *testing.T) {
	e := setupHandlers(t)
	member := e.user(t, "ada@example.com", model.RoleMember)
	member.CanExport = true

	wantStatus(t, call(t, e.familyH.ExportGEDCOM, member, "GET", "/export/gedcom", nil), http.StatusOK)
}

func TestConsistencyEndpoint(t *testing.T) {
	e := setupHandlers(t)
	admin := e.user(t, "admin@example.com", model.RoleAdmin)
	// Two records that look like the same person.
	e.person(t, "Ada", 0, model.VisibilityFamily, day(1950, 3, 14))
	e.person(t, "Ada", 0, model.VisibilityFamily, day(1950, 3, 14))

	rec := call(t, e.familyH.Consistency, admin, "GET", "/api/consistency", nil)
	wantStatus(t, rec, http.StatusOK)
	var got struct {
		Issues []family.Issue           `json:"issues"`
		Counts map[family.IssueKind]int `json:"counts"`
	}
	decodeJSON(t, rec, &got)
	// One issue per member of the group.
	if got.Counts[family.IssueDuplicate] != 2 {
		t.Errorf("duplicate count = %d, want 2 (issues %+v)", got.Counts[family.IssueDuplicate], got.Issues)
	}
}

func TestStatsEndpoint(t *testing.T) {
	e := setupHandlers(t)
	member := e.user(t, "ada@example.com", model.RoleMember)
	mum := e.person(t, "Mum", 0, model.VisibilityFamily, day(1950, 1, 1))
	kid := e.person(t, "Kid", 0, model.VisibilityFamily, day(1980, 1, 1))
	e.link(t, mum.ID, kid.ID)

	rec := call(t, e.familyH.Stats, member, "GET", "/api/stats", nil)
	wantStatus(t, rec, http.StatusOK)
	var s family.Statistics
	decodeJSON(t, rec, &s)
	if s.TotalPeople != 2 || s.ParentChildRelations != 1 {
		t.Errorf("stats = %+v, want 2 people and 1 parent-child relation", s)
	}
}

func TestStatsCountsOnlyVisible(t *testing.T) {
	e := setupHandlers(t)
	admin := e.user(t, "admin@example.com", model.RoleAdmin)
	member := e.user(t, "ada@example.com", model.RoleMember)
	mum := e.person(t, "Mum", 0, model.VisibilityPrivate, day(1900, 1, 1))
	kid := e.person(t, "Kid", 0, model.VisibilityFamily, day(1980, 1, 1))
	e.link(t, mum.ID, kid.ID)

	tests := []struct {
		name     string
		ac       auth.AuthContext
		people   int
		edges    int
		earliest int
	}{
		{"member", member, 1, 0, 1980},
		{"admin", admin, 2, 1, 1900},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(t, e.familyH.Stats, tt.ac, "GET", "/api/stats", nil)
			wantStatus(t, rec, http.StatusOK)
			var s family.Statistics
			decodeJSON(t, rec, &s)
			if s.TotalPeople != tt.people || s.ParentChildRelations != tt.edges || s.OldestBirthYear != tt.earliest {
				t.Errorf("stats = %+v, want %d people, %d edges, oldest %d", s, tt.people, tt.edges, tt.earliest)
			}
		})
	}
}

func TestTreeEndpointMasksHidden(t *testing.T) {
	e := setupHandlers(t)
	member := e.user(t, "ada@example.com", model.RoleMember)
	mum := e.person(t, "Mum", 0, model.VisibilityPrivate, day(1950, 1, 1))
	kid := e.person(t, "Kid", 0, model.VisibilityFamily, day(1980, 1, 1))
	e.link(t, mum.ID, kid.ID)

	rec := call(t, e.familyH.Tree, member, "GET", "/api/tree", nil)
	wantStatus(t, rec, http.StatusOK)
	var tree family.TreeData
	decodeJSON(t, rec, &tree)
	if tree.RootPersonID != mum.ID {
		t.Errorf("RootPersonID = %d, want %d", tree.RootPersonID, mum.ID)
	}
	node := tree.Individuals[mum.ID]
	if node == nil || !node.Private || node.Name != "Private" {
		t.Errorf("hidden node = %+v, want masked", node)
	}
	if n := tree.Individuals[kid.ID]; n == nil || n.Private {
		t.Errorf("visible node = %+v", n)
	}

	// An explicit hidden root is a 404.
	wantStatus(t, call(t, e.familyH.Tree, member, "GET", "/api/tree?root="+idStr(mum.ID), nil), http.StatusNotFound)
}

func TestArchivesDisabled(t *testing.T) {
	e := setupHandlers(t)
	admin := e.user(t, "admin@example.com", model.RoleAdmin)

	rec := call(t, e.familyH.ListArchives, admin, "GET", "/api/archives", nil)
	wantStatus(t, rec, http.StatusOK)
	var got struct {
		Enabled  bool            `json:"enabled"`
		Archives []model.Archive `json:"archives"`
	}
	decodeJSON(t, rec, &got)
	if got.Enabled {
		t.Error("Enabled = true without S3 settings")
	}

	wantStatus(t, call(t, e.familyH.RunArchive, admin, "POST", "/api/archives/run", nil), http.StatusServiceUnavailable)
	wantStatus(t, call(t, e.familyH.DownloadArchive, admin, "GET", "/", nil, "id", "1"), http.StatusServiceUnavailable)
}
