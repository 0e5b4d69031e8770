package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-auth/gatehouse/internal/app"
	"github.com/gatehouse-auth/gatehouse/internal/auth"
	"github.com/gatehouse-auth/gatehouse/internal/shared"
	_ "github.com/gatehouse-auth/gatehouse/testing"
)

const (
	testUserName     = "Jane Doe"
	testUserEmail    = "jane@example.org"
	testUserPassword = "aösdkfjgösdgäs"
)

type stubRepo struct {
	user            *auth.User
	sessionsCreated int
	sessionsDeleted int
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessionsCreated++
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.sessionsDeleted++
	return nil
}

func (s *stubRepo) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return 0, nil
}

func newTestRouter(t *testing.T, repo auth.Repository) (http.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := slog.Default()
	sessionManager := shared.NewSessionManager(redisClient, "test_session", time.Hour, false, false)
	service := auth.NewService(repo, logger, bcrypt.MinCost)
	handler := auth.NewHandler(logger, service, sessionManager, nil, nil)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		SessionManager: sessionManager,
		AuthHandler:    handler,
	})
	return router, sessionManager
}

func sampleUser(t *testing.T) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(testUserPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{ID: 1, Email: testUserEmail, Name: testUserName, PasswordHash: string(hashed), IsActive: true}
}

func postLogin(t *testing.T, router http.Handler, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res.Result()
}

func sessionCookie(res *http.Response, name string) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginSucceedsWithValidCredentials(t *testing.T) {
	router, sm := newTestRouter(t, &stubRepo{user: sampleUser(t)})

	res := postLogin(t, router, `{"email":"jane@example.org","password":"aösdkfjgösdgäs"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}

	cookie := sessionCookie(res, sm.CookieName())
	if cookie == nil || cookie.Value == "" {
		t.Fatalf("expected session cookie to be set")
	}

	var payload struct {
		Status string `json:"status"`
		User   struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Status != "ok" || payload.User.ID != 1 || payload.User.Email != testUserEmail {
		t.Fatalf("unexpected body: %+v", payload)
	}
}

func TestLoginFailsWithInvalidCredentials(t *testing.T) {
	router, sm := newTestRouter(t, &stubRepo{user: sampleUser(t)})

	res := postLogin(t, router, `{"email":"jane@example.org","password":"wrong-password"}`)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", res.StatusCode)
	}
	if cookie := sessionCookie(res, sm.CookieName()); cookie != nil {
		t.Fatalf("expected no session cookie, got %v", cookie)
	}
}

func TestLoginFailsWithUnknownEmailIdentically(t *testing.T) {
	router, sm := newTestRouter(t, &stubRepo{user: sampleUser(t)})

	knownRes := postLogin(t, router, `{"email":"jane@example.org","password":"wrong-password"}`)
	unknownRes := postLogin(t, router, `{"email":"nobody@example.org","password":"wrong-password"}`)

	if knownRes.StatusCode != http.StatusUnauthorized || unknownRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", knownRes.StatusCode, unknownRes.StatusCode)
	}
	if cookie := sessionCookie(unknownRes, sm.CookieName()); cookie != nil {
		t.Fatalf("expected no session cookie for unknown email")
	}

	// The two failure bodies must be byte-identical so responses cannot be
	// used to probe which emails are registered.
	knownBody, err := io.ReadAll(knownRes.Body)
	if err != nil {
		t.Fatalf("read known body: %v", err)
	}
	unknownBody, err := io.ReadAll(unknownRes.Body)
	if err != nil {
		t.Fatalf("read unknown body: %v", err)
	}
	if string(knownBody) != string(unknownBody) {
		t.Fatalf("failure responses differ: %q vs %q", knownBody, unknownBody)
	}
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	router, _ := newTestRouter(t, &stubRepo{user: sampleUser(t)})

	res := postLogin(t, router, `not-json`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", res.StatusCode)
	}

	res = postLogin(t, router, `{"email":"jane@example.org"}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing password, got %d", res.StatusCode)
	}
}

func TestLoginRejectsOtherMethods(t *testing.T) {
	router, _ := newTestRouter(t, &stubRepo{user: sampleUser(t)})

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/auth/login", nil)
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)
		if res.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status 405 for %s, got %d", method, res.Code)
		}
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	repo := &stubRepo{user: sampleUser(t)}
	router, sm := newTestRouter(t, repo)

	loginRes := postLogin(t, router, `{"email":"jane@example.org","password":"aösdkfjgösdgäs"}`)
	cookie := sessionCookie(loginRes, sm.CookieName())
	if cookie == nil {
		t.Fatalf("expected session cookie after login")
	}

	// The token resolves to the user while the session is live.
	meReq := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	meReq.AddCookie(cookie)
	meRes := httptest.NewRecorder()
	router.ServeHTTP(meRes, meReq)
	if meRes.Code != http.StatusOK {
		t.Fatalf("expected status 200 from /auth/me, got %d", meRes.Code)
	}

	logoutReq := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logoutReq.AddCookie(cookie)
	logoutRes := httptest.NewRecorder()
	router.ServeHTTP(logoutRes, logoutReq)
	if logoutRes.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 from logout, got %d", logoutRes.Code)
	}
	if repo.sessionsDeleted != 1 {
		t.Fatalf("expected session audit row removed, got %d", repo.sessionsDeleted)
	}

	// The old token is permanently dead.
	replayReq := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	replayReq.AddCookie(cookie)
	replayRes := httptest.NewRecorder()
	router.ServeHTTP(replayRes, replayReq)
	if replayRes.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 after logout, got %d", replayRes.Code)
	}

	// Logout stays idempotent when the token is already dead.
	againReq := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	againReq.AddCookie(cookie)
	againRes := httptest.NewRecorder()
	router.ServeHTTP(againRes, againReq)
	if againRes.Code != http.StatusNoContent {
		t.Fatalf("expected status 204 for repeated logout, got %d", againRes.Code)
	}
}

func TestMeRequiresSession(t *testing.T) {
	router, _ := newTestRouter(t, &stubRepo{user: sampleUser(t)})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", res.Code)
	}
}
