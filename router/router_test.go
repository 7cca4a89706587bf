package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"docshare/internal/auth"
	"docshare/socket"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "11111111-1111-1111-1111-111111111111"

type stubSessions struct{}

func (stubSessions) Current(_ context.Context, _ http.ResponseWriter, _ *http.Request) (*auth.User, error) {
	return nil, auth.ErrNoSession
}

func (stubSessions) Authenticate(token string) (*auth.User, error) {
	if token == "good" {
		return &auth.User{ID: userID, Email: "owner@example.com"}, nil
	}
	return nil, auth.ErrInvalidToken
}

func (stubSessions) SendMagicLink(context.Context, http.ResponseWriter, string) error { return nil }

func (stubSessions) CompleteSignIn(context.Context, http.ResponseWriter, *http.Request, string) (*auth.User, error) {
	return nil, auth.ErrMissingVerifier
}

func (stubSessions) SignOut(context.Context, http.ResponseWriter, *http.Request) error { return nil }

func setup(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h, err := Setup(db, socket.NewHub(nil), stubSessions{}, []string{"http://app.example"})
	require.NoError(t, err)
	return h, mock
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPublicRoutes(t *testing.T) {
	h, _ := setup(t)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/supabase-test", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestProtectedRoutes(t *testing.T) {
	h, _ := setup(t)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/ws?docId=x", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/doc/x", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/supabase-test", rr.Header().Get("Location"))
}

func TestListDocumentsThroughStack(t *testing.T) {
	h, mock := setup(t)
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('request.jwt.claims', $1, true)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, title, user_id, created_at FROM documents").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "user_id", "created_at"}).
			AddRow("22222222-2222-2222-2222-222222222222", "Notes", userID, created))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr := serve(h, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"title":"Notes"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCORSPreflight(t *testing.T) {
	h, _ := setup(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/documents", nil)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := serve(h, req)

	assert.Equal(t, "http://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}
