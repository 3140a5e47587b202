package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/portfolio/internal/authz"
	"github.com/hitoshi/portfolio/internal/identity"
	"github.com/hitoshi/portfolio/internal/middleware"
	"github.com/hitoshi/portfolio/internal/model"
	"github.com/hitoshi/portfolio/internal/session"
	"github.com/hitoshi/portfolio/internal/techstack"
)

const (
	testAdminEmail = "admin@example.com"
	testPassword   = "pw"
)

// stubProvider はパスワード"pw"のみを受け付けるIdP。
type stubProvider struct{}

func (stubProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Credential, error) {
	if password != testPassword {
		return nil, model.NewAuthFailure(model.AuthFailureInvalidCredentials, nil)
	}
	e := email
	return &identity.Credential{
		IDToken:      "id-" + email,
		RefreshToken: "refresh-" + email,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         identity.User{UID: "uid-" + email, Email: &e},
	}, nil
}

func (stubProvider) Refresh(ctx context.Context, refreshToken string) (*identity.Credential, error) {
	return nil, errors.New("refresh not supported")
}

// memorySessions はテスト用のsession.Store実装。
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]model.BrowserSession
}

func (m *memorySessions) Create(ctx context.Context, s *model.BrowserSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memorySessions) FindByID(ctx context.Context, id string) (*model.BrowserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memorySessions) UpdateRefreshToken(ctx context.Context, id, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	s.RefreshToken = refreshToken
	s.ExpiresAt = expiresAt
	m.sessions[id] = s
	return nil
}

func (m *memorySessions) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type healthStub struct{ err error }

func (h healthStub) PingContext(ctx context.Context) error { return h.err }

// browser はCookieとCSRFトークンを保持するテスト用クライアント。
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
	csrf   string
}

func newTestServer(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()
	stack, err := techstack.Load()
	if err != nil {
		t.Fatalf("failed to load tech stack: %v", err)
	}

	registry := session.NewRegistry(
		stubProvider{},
		authz.NewPolicy(testAdminEmail),
		&memorySessions{sessions: make(map[string]model.BrowserSession)},
		session.RegistryConfig{GraceDelay: time.Hour},
		session.DenierHooks{},
		nil,
	)
	t.Cleanup(registry.Stop)

	srv := httptest.NewServer(NewRouter(&RouterDeps{
		Sessions:       registry,
		SessionManager: registry,
		HealthChecker:  healthStub{},
		Content:        &mockContent{},
		TechStack:      stack,
		Admin:          &mockAdminService{},
	}))
	t.Cleanup(srv.Close)
	return srv, registry
}

func newBrowser(t *testing.T, srv *httptest.Server) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	b := &browser{
		t:    t,
		base: srv.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	resp := b.request(http.MethodGet, "/api/csrf-token", nil)
	defer resp.Body.Close()
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Token == "" {
		t.Fatalf("failed to fetch CSRF token: %v", err)
	}
	b.csrf = body.Token
	return b
}

func (b *browser) request(method, path string, body any) *http.Response {
	b.t.Helper()
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			b.t.Fatalf("failed to encode body: %v", err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, b.base+path, r)
	if err != nil {
		b.t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.csrf != "" {
		req.Header.Set(middleware.CSRFHeaderName, b.csrf)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func (b *browser) status(method, path string, body any) int {
	b.t.Helper()
	resp := b.request(method, path, body)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode
}

func (b *browser) login(email, password string) int {
	b.t.Helper()
	return b.status(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password})
}

func TestRouter_AdminFlow(t *testing.T) {
	srv, registry := newTestServer(t)
	b := newBrowser(t, srv)

	if got := b.login(testAdminEmail, testPassword); got != http.StatusOK {
		t.Fatalf("login status = %d, want 200", got)
	}

	resp := b.request(http.MethodGet, "/auth/session", nil)
	var s sessionResponse
	json.NewDecoder(resp.Body).Decode(&s)
	resp.Body.Close()
	if s.Loading || s.Identity == nil || !s.Identity.IsAdmin {
		t.Errorf("unexpected session: %+v", s)
	}

	if got := b.status(http.MethodGet, "/admin", nil); got != http.StatusOK {
		t.Errorf("GET /admin = %d, want 200", got)
	}
	if got := b.status(http.MethodGet, "/api/admin/records/projects", nil); got != http.StatusOK {
		t.Errorf("GET records = %d, want 200", got)
	}
	project := map[string]any{"title": "t", "description": "d", "thumbnail": "https://x/1"}
	if got := b.status(http.MethodPost, "/api/admin/projects", project); got != http.StatusCreated {
		t.Errorf("POST project = %d, want 201", got)
	}

	if got := b.status(http.MethodPost, "/auth/logout", nil); got != http.StatusNoContent {
		t.Errorf("logout = %d, want 204", got)
	}
	if registry.Len() != 0 {
		t.Errorf("registry entries = %d after logout, want 0", registry.Len())
	}
	if got := b.status(http.MethodGet, "/api/admin/records/projects", nil); got != http.StatusUnauthorized {
		t.Errorf("GET records after logout = %d, want 401", got)
	}
}

func TestRouter_NonAdminIsDenied(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)

	if got := b.login("eve@example.com", testPassword); got != http.StatusForbidden {
		t.Fatalf("login status = %d, want 403", got)
	}

	resp := b.request(http.MethodGet, "/auth/session", nil)
	var s sessionResponse
	json.NewDecoder(resp.Body).Decode(&s)
	resp.Body.Close()
	if !s.SignOutPending || s.DeniedMessage != session.DeniedMessage("eve@example.com") {
		t.Errorf("unexpected session: %+v", s)
	}

	if got := b.status(http.MethodGet, "/api/admin/records/projects", nil); got != http.StatusForbidden {
		t.Errorf("GET records = %d, want 403", got)
	}

	resp = b.request(http.MethodGet, "/admin", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusTemporaryRedirect || resp.Header.Get("Location") != "/" {
		t.Errorf("GET /admin = %d %q, want 307 to /", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestRouter_WrongPassword(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)

	resp := b.request(http.MethodPost, "/auth/login", map[string]string{"email": testAdminEmail, "password": "nope"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var body middleware.ErrorResponseBody
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Code != string(model.AuthFailureInvalidCredentials) {
		t.Errorf("code = %q", body.Code)
	}
}

func TestRouter_AnonymousAndCSRF(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)

	if got := b.status(http.MethodGet, "/api/admin/records/projects", nil); got != http.StatusUnauthorized {
		t.Errorf("anonymous records = %d, want 401", got)
	}
	if got := b.status(http.MethodGet, "/admin", nil); got != http.StatusTemporaryRedirect {
		t.Errorf("anonymous /admin = %d, want 307", got)
	}

	b.csrf = ""
	if got := b.login(testAdminEmail, testPassword); got != http.StatusForbidden {
		t.Errorf("login without CSRF header = %d, want 403", got)
	}
}

func TestRouter_PublicEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	b := newBrowser(t, srv)

	for _, path := range []string{
		"/api/projects",
		"/api/projects/tags",
		"/api/blog-posts",
		"/blog/feed.xml",
		"/api/tech-stack",
		"/api/tech-stack/scores",
	} {
		if got := b.status(http.MethodGet, path, nil); got != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, got)
		}
	}

	resp := b.request(http.MethodGet, "/health", nil)
	defer resp.Body.Close()
	var health map[string]string
	json.NewDecoder(resp.Body).Decode(&health)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}
	if resp.Header.Get("Content-Security-Policy") == "" {
		t.Error("security headers missing")
	}
}

func TestHealthHandler_Degraded(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(healthStub{err: errors.New("down")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "degraded" {
		t.Errorf("status = %q, want degraded", body["status"])
	}
}
