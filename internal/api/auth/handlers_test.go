package auth

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/heliosfit/gymdesk/internal/config"
	"github.com/heliosfit/gymdesk/internal/store"
	"github.com/heliosfit/gymdesk/internal/testutil"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func setupAuthTest(t *testing.T) *store.Queries {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Environment = "development"
	cfg.App.SecretKey = "test-secret-key"

	database := testutil.NewTestDB(t)
	Init(cfg, database.Queries)
	t.Cleanup(func() {
		appConfig = nil
		queries = nil
	})

	return database.Queries
}

func seedAdmin(t *testing.T, q *store.Queries, username, password string) store.Admin {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	admin, err := q.CreateAdmin(context.Background(), store.CreateAdminParams{
		Username:     username,
		Email:        username + "@example.com",
		Name:         "Test Admin",
		PasswordHash: hash,
		Role:         RoleOwner,
	})
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return admin
}

// postLogin uses a per-test client address so the login limiter state does not
// bleed across tests.
func postLogin(t *testing.T, remoteAddr, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.RemoteAddr = remoteAddr
	recorder := httptest.NewRecorder()
	HandleLogin(recorder, req)
	return recorder
}

func authCookie(recorder *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range recorder.Result().Cookies() {
		if c.Name == authCookieName {
			return c
		}
	}
	return nil
}

func TestHandleSetup_CreatesOwner(t *testing.T) {
	setupAuthTest(t)

	body := `{"username":"owner","email":"Owner@Example.com","name":"The Owner","password":"correct-horse"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/setup", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	HandleSetup(recorder, req)

	if recorder.Code != http.StatusCreated {
		t.Fatalf("status: %d, body: %s", recorder.Code, recorder.Body.String())
	}

	var env envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	var admin adminResponse
	if err := json.Unmarshal(env.Data, &admin); err != nil {
		t.Fatalf("decode admin: %v", err)
	}
	if admin.Role != RoleOwner {
		t.Errorf("role: %q", admin.Role)
	}
	if admin.Email != "owner@example.com" {
		t.Errorf("email not lowercased: %q", admin.Email)
	}
	if admin.Name != "The Owner" {
		t.Errorf("name: %q", admin.Name)
	}

	cookie := authCookie(recorder)
	if cookie == nil || cookie.Value == "" {
		t.Fatal("setup did not set the session cookie")
	}
	if cookie.Secure {
		t.Error("cookie must not be Secure in development")
	}
}

func TestHandleSetup_RejectedOnceAdminExists(t *testing.T) {
	q := setupAuthTest(t)
	seedAdmin(t, q, "owner", "correct-horse")

	body := `{"username":"intruder","email":"x@example.com","name":"X","password":"battery-staple"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/setup", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	HandleSetup(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status: %d", recorder.Code)
	}
}

func TestHandleSetup_ShortPassword(t *testing.T) {
	setupAuthTest(t)

	body := `{"username":"owner","email":"o@example.com","name":"O","password":"short"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/setup", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	HandleSetup(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", recorder.Code)
	}
}

func TestHandleLogin(t *testing.T) {
	q := setupAuthTest(t)
	seedAdmin(t, q, "owner", "correct-horse")

	recorder := postLogin(t, "10.1.0.1:1000", `{"identifier":"owner","password":"correct-horse"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", recorder.Code, recorder.Body.String())
	}
	if authCookie(recorder) == nil {
		t.Fatal("login did not set the session cookie")
	}

	// Email works as the identifier too.
	recorder = postLogin(t, "10.1.0.2:1000", `{"identifier":"owner@example.com","password":"correct-horse"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("email login status: %d", recorder.Code)
	}
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	q := setupAuthTest(t)
	seedAdmin(t, q, "owner", "correct-horse")

	recorder := postLogin(t, "10.1.0.3:1000", `{"identifier":"owner","password":"wrong-password"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d", recorder.Code)
	}

	recorder = postLogin(t, "10.1.0.3:1000", `{"identifier":"nobody","password":"wrong-password"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unknown identifier status: %d", recorder.Code)
	}
}

func TestHandleLogin_RateLimited(t *testing.T) {
	q := setupAuthTest(t)
	seedAdmin(t, q, "owner", "correct-horse")

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = postLogin(t, "10.1.0.4:1000", `{"identifier":"owner","password":"wrong-password"}`)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status after burst: %d", last.Code)
	}
}

func TestLoginLimiter_EvictsIdleClients(t *testing.T) {
	setupAuthTest(t)

	stale := time.Now().Add(-2 * loginLimiterIdleTTL)
	loginLimitersMu.Lock()
	loginLimiters["10.9.0.1"] = &loginLimiterEntry{
		limiter:  rate.NewLimiter(rate.Every(12*time.Second), 5),
		lastSeen: stale,
	}
	loginSweepAt = stale
	loginLimitersMu.Unlock()

	loginLimiter("10.9.0.2")

	loginLimitersMu.Lock()
	defer loginLimitersMu.Unlock()
	if _, ok := loginLimiters["10.9.0.1"]; ok {
		t.Error("idle client limiter was not evicted")
	}
	if _, ok := loginLimiters["10.9.0.2"]; !ok {
		t.Error("active client limiter missing")
	}
}

func TestHandleMe(t *testing.T) {
	q := setupAuthTest(t)
	admin := seedAdmin(t, q, "owner", "correct-horse")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req = req.WithContext(ContextWithAdmin(req.Context(), &Claims{
		AdminID:  admin.ID,
		Username: admin.Username,
		Role:     admin.Role,
	}))
	recorder := httptest.NewRecorder()

	HandleMe(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", recorder.Code, recorder.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(recorder.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	var me adminResponse
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode admin: %v", err)
	}
	if me.Username != "owner" {
		t.Errorf("username: %q", me.Username)
	}
}

func TestHandleMe_Unauthenticated(t *testing.T) {
	setupAuthTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	recorder := httptest.NewRecorder()

	HandleMe(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d", recorder.Code)
	}
}

func TestHandleLogout_ClearsCookie(t *testing.T) {
	setupAuthTest(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	recorder := httptest.NewRecorder()

	HandleLogout(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d", recorder.Code)
	}
	cookie := authCookie(recorder)
	if cookie == nil {
		t.Fatal("logout did not touch the session cookie")
	}
	if cookie.Value != "" || cookie.MaxAge != -1 {
		t.Errorf("cookie not cleared: value=%q maxAge=%d", cookie.Value, cookie.MaxAge)
	}
}
