package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/kinship/internal/archive"
	"github.com/dukerupert/kinship/internal/audit"
	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/database"
	"github.com/dukerupert/kinship/internal/family"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/notify"
	"github.com/dukerupert/kinship/internal/store"
	"github.com/dukerupert/kinship/internal/websocket"
)

type testEnv struct {
	people        *store.PersonStore
	parentChild   *store.ParentChildStore
	partnerships  *store.PartnershipStore
	proposals     *store.ProposalStore
	notifications *store.NotificationStore
	users         *store.UserStore
	sessions      *store.SessionStore
	invitations   *store.InvitationStore
	auditLog      *store.AuditStore

	personH       *PersonHandler
	relationshipH *RelationshipHandler
	proposalH     *ProposalHandler
	familyH       *FamilyHandler
	notificationH *NotificationHandler
	adminH        *AdminHandler
	authH         *AuthHandler
	pageH         *PageHandler
	pushH         *PushHandler
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func setupHandlers(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &testEnv{
		people:        store.NewPersonStore(db),
		parentChild:   store.NewParentChildStore(db),
		partnerships:  store.NewPartnershipStore(db),
		proposals:     store.NewProposalStore(db),
		notifications: store.NewNotificationStore(db),
		users:         store.NewUserStore(db),
		sessions:      store.NewSessionStore(db),
		invitations:   store.NewInvitationStore(db),
		auditLog:      store.NewAuditStore(db),
	}
	graphs := store.NewGraphStore(db)
	archives := store.NewArchiveStore(db)
	recorder := audit.NewRecorder(e.auditLog, logger)
	pushes := store.NewPushStore(db)
	notifier := notify.NewService(e.notifications, e.users, pushes, websocket.NewHub(logger), nil, nil, logger)
	exporter := family.NewExporter("KINSHIP", "Kinship")
	exporter.Now = func() time.Time { return fixedNow }
	mgr := archive.NewManager(archive.Config{}, graphs, archives, exporter, nil, logger)
	templates := NewTemplates(logger)

	e.personH = NewPersonHandler(e.people, graphs, recorder, notifier, logger)
	e.personH.now = func() time.Time { return fixedNow }
	e.relationshipH = NewRelationshipHandler(e.people, e.parentChild, e.partnerships, graphs, recorder, notifier, logger)
	e.proposalH = NewProposalHandler(e.proposals, e.people, recorder, notifier, logger)
	e.familyH = NewFamilyHandler(graphs, exporter, family.DefaultCheckConfig(), mgr, archives, recorder, nil, logger)
	e.familyH.now = func() time.Time { return fixedNow }
	e.notificationH = NewNotificationHandler(e.notifications, logger)
	e.adminH = NewAdminHandler(e.users, e.sessions, e.invitations, e.auditLog, recorder, notifier, "http://kin.test/", logger)
	e.authH = NewAuthHandler(e.users, e.sessions, e.invitations, recorder, notifier, templates, false, logger)
	e.pageH = NewPageHandler(e.people, graphs, e.proposals, e.notifications, templates, logger)
	e.pageH.now = func() time.Time { return fixedNow }
	e.pushH = NewPushHandler(pushes, nil, logger)
	return e
}

func (e *testEnv) user(t *testing.T, email string, role model.Role) auth.AuthContext {
	t.Helper()
	u, err := e.users.Create(email, strings.Split(email, "@")[0], "Tester", role, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return auth.FromUser(u, 0)
}

func (e *testEnv) person(t *testing.T, first string, owner int64, vis model.Visibility, born *time.Time) *model.Person {
	t.Helper()
	p := &model.Person{FirstName: first, LastName: "Okafor", Gender: model.GenderFemale, Visibility: vis, BirthDate: born}
	if owner != 0 {
		p.CreatedBy = &owner
		p.OwnedBy = &owner
	}
	created, err := e.people.Create(p)
	if err != nil {
		t.Fatalf("create person %s: %v", first, err)
	}
	return created
}

func (e *testEnv) link(t *testing.T, parent, child int64) *model.ParentChild {
	t.Helper()
	edge, err := e.parentChild.Create(&model.ParentChild{ParentID: parent, ChildID: child})
	if err != nil {
		t.Fatalf("link %d -> %d: %v", parent, child, err)
	}
	return edge
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// call runs h with ac in the request context. pathValues alternate name and
// value, e.g. "id", "3".
func call(t *testing.T, h http.HandlerFunc, ac auth.AuthContext, method, target string, body any, pathValues ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	if ac.Authenticated() {
		req = req.WithContext(auth.WithAuth(req.Context(), ac))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func postForm(t *testing.T, h http.HandlerFunc, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func idStr(id int64) string {
	return strconv.FormatInt(id, 10)
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}
