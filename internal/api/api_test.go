package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gitea.jw6.us/james/crmdesk/internal/auth"
	httperrors "gitea.jw6.us/james/crmdesk/internal/http/errors"
	"gitea.jw6.us/james/crmdesk/internal/store"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	st := store.New(store.NewFileBackend(filepath.Join(t.TempDir(), "db.json")), nil)
	svc := auth.NewService(st, auth.Options{BcryptCost: bcrypt.MinCost})
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		New(st, svc).Register(r, nil)
	})
	return r
}

func request(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func signup(t *testing.T, h http.Handler, name, email string) (auth.PublicUser, string) {
	t.Helper()
	rr := request(t, h, http.MethodPost, "/api/auth/signup", "", `{"name":"`+name+`","email":"`+email+`","password":"pw"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.User, resp.Token
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body httperrors.Body
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body.Error
}

func TestSignupErrors(t *testing.T) {
	h := newTestAPI(t)
	signup(t, h, "Ann", "ann@x.com")

	rr := request(t, h, http.MethodPost, "/api/auth/signup", "", `{"name":"Ann","email":"ann@x.com","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "duplicate_email", errorCode(t, rr))

	rr = request(t, h, http.MethodPost, "/api/auth/signup", "", `{"email":"b@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "missing_fields", errorCode(t, rr))

	rr = request(t, h, http.MethodPost, "/api/auth/signup", "", `{`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLoginFailure(t *testing.T) {
	h := newTestAPI(t)
	signup(t, h, "Ann", "ann@x.com")

	rr := request(t, h, http.MethodPost, "/api/auth/login", "", `{"email":"ann@x.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, rr))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestAPI(t)

	for _, path := range []string{"/api/user", "/api/contacts", "/api/leads", "/api/tasks", "/api/events", "/api/documents", "/api/emails"} {
		rr := request(t, h, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
		assert.Equal(t, "missing_token", errorCode(t, rr), path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	req.Header.Set("Authorization", "Token abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCollectionsAreOwnerScoped(t *testing.T) {
	h := newTestAPI(t)
	ann, annToken := signup(t, h, "Ann", "ann@x.com")
	_, bobToken := signup(t, h, "Bob", "bob@x.com")

	rr := request(t, h, http.MethodPost, "/api/contacts", annToken, `{"name":"Jane","userId":"`+"someone-else"+`","status":"Active"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var contact store.Contact
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &contact))
	assert.Equal(t, ann.ID, contact.UserID, "owner injection is ignored")

	rr = request(t, h, http.MethodGet, "/api/contacts", bobToken, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = request(t, h, http.MethodPut, "/api/contacts/"+contact.ID, bobToken, `{"name":"Hijacked"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = request(t, h, http.MethodDelete, "/api/contacts/"+contact.ID, bobToken, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = request(t, h, http.MethodGet, "/api/contacts", annToken, "")
	var contacts []store.Contact
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &contacts))
	require.Len(t, contacts, 1)
	assert.Equal(t, contact, contacts[0])
}

func TestCollectionUpdateAndDelete(t *testing.T) {
	h := newTestAPI(t)
	_, token := signup(t, h, "Ann", "ann@x.com")

	rr := request(t, h, http.MethodPost, "/api/tasks", token, `{"title":"Call Jane","status":"Not Started","assignee":"Ann"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var task store.Task
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &task))

	rr = request(t, h, http.MethodPut, "/api/tasks/"+task.ID, token, `{"id":"other","createdAt":"1999-01-01T00:00:00Z","status":"Completed"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated store.Task
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, task.RecordMeta, updated.RecordMeta)
	assert.Equal(t, "Completed", updated.Status)
	assert.Equal(t, "Call Jane", updated.Title)

	rr = request(t, h, http.MethodPut, "/api/tasks/"+task.ID, token, `{"status":"Done"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_failed", errorCode(t, rr))

	rr = request(t, h, http.MethodDelete, "/api/tasks/"+task.ID, token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())

	rr = request(t, h, http.MethodDelete, "/api/tasks/"+task.ID, token, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUserProfile(t *testing.T) {
	h := newTestAPI(t)
	_, token := signup(t, h, "Ann", "ann@x.com")

	rr := request(t, h, http.MethodPut, "/api/user", token, `{"title":"VP Sales","email":"new@x.com","passwordHash":"x"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var user auth.PublicUser
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	assert.Equal(t, "VP Sales", user.Title)
	assert.Equal(t, "Ann", user.Name)
	assert.Equal(t, "ann@x.com", user.Email, "email cannot change through the profile")

	rr = request(t, h, http.MethodPost, "/api/auth/login", "", `{"email":"ann@x.com","password":"pw"}`)
	assert.Equal(t, http.StatusOK, rr.Code, "password unchanged")
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	h := newTestAPI(t)
	_, token := signup(t, h, "Ann", "ann@x.com")

	for _, tok := range []string{token, token, ""} {
		rr := request(t, h, http.MethodPost, "/api/auth/logout", tok, "")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true}`, rr.Body.String())
	}
}

func TestRevokeOtherSessions(t *testing.T) {
	h := newTestAPI(t)
	_, keep := signup(t, h, "Ann", "ann@x.com")

	rr := request(t, h, http.MethodPost, "/api/auth/login", "", `{"email":"ann@x.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var other sessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &other))

	rr = request(t, h, http.MethodPost, "/api/auth/sessions/revoke-others", keep, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"revoked":1}`, rr.Body.String())

	assert.Equal(t, http.StatusOK, request(t, h, http.MethodGet, "/api/user", keep, "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(t, h, http.MethodGet, "/api/user", other.Token, "").Code)

	rr = request(t, h, http.MethodPost, "/api/auth/sessions/revoke-others", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestExports(t *testing.T) {
	h := newTestAPI(t)
	_, ann := signup(t, h, "Ann", "ann@x.com")
	_, bob := signup(t, h, "Bob", "bob@x.com")

	require.Equal(t, http.StatusCreated, request(t, h, http.MethodPost, "/api/events", ann, `{"title":"Kickoff","date":"2024-05-02","type":"meeting"}`).Code)
	require.Equal(t, http.StatusCreated, request(t, h, http.MethodPost, "/api/contacts", ann, `{"name":"Jane Doe","email":"jane@acme.com"}`).Code)

	rr := request(t, h, http.MethodGet, "/api/events/export.ics", ann, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "SUMMARY:Kickoff")

	rr = request(t, h, http.MethodGet, "/api/contacts/export.vcf", ann, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "FN:Jane Doe")

	rr = request(t, h, http.MethodGet, "/api/events/export.ics", bob, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "Kickoff", "exports are owner scoped")

	rr = request(t, h, http.MethodGet, "/api/contacts/export.vcf", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSignupAcceptsLongPassword(t *testing.T) {
	h := newTestAPI(t)
	password := strings.Repeat("x", 80)

	rr := request(t, h, http.MethodPost, "/api/auth/signup", "", `{"name":"Ann","email":"ann@x.com","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = request(t, h, http.MethodPost, "/api/auth/login", "", `{"email":"ann@x.com","password":"`+password+`"}`)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestLogoutToleratesStoreFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	st := store.New(store.NewFileBackend(path), nil)
	svc := auth.NewService(st, auth.Options{BcryptCost: bcrypt.MinCost})
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		New(st, svc).Register(r, nil)
	})
	_, token := signup(t, r, "Ann", "ann@x.com")

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	rr := request(t, r, http.MethodPost, "/api/auth/logout", token, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "logout could not persist")
}
