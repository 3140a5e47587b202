package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/portfolio/internal/authz"
	"github.com/hitoshi/portfolio/internal/identity"
	"github.com/hitoshi/portfolio/internal/model"
	"github.com/hitoshi/portfolio/internal/session"
)

const adminEmail = "owner@example.com"

func strPtr(s string) *string { return &s }

type passwordProvider struct{}

func (passwordProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Credential, error) {
	return &identity.Credential{
		RefreshToken: "r",
		User:         identity.User{UID: "uid-" + email, Email: strPtr(email)},
	}, nil
}

func (passwordProvider) Refresh(ctx context.Context, refreshToken string) (*identity.Credential, error) {
	return nil, errors.New("unsupported")
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		state session.State
		want  Decision
	}{
		{"loading", session.State{Loading: true}, Pending},
		{"loading with identity", session.State{Loading: true, Identity: &model.Identity{IsAdmin: true}}, Pending},
		{"signed out", session.State{}, Redirect},
		{"non-admin", session.State{Identity: &model.Identity{UID: "u", IsAdmin: false}}, Redirect},
		{"admin", session.State{Identity: &model.Identity{UID: "u", IsAdmin: true}}, Admit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.state); got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

// newSession はDenier付きのSession Contextを組み立てる。
func newSession(t *testing.T, grace time.Duration) (*identity.Client, *session.Context) {
	t.Helper()
	client := identity.NewClient(passwordProvider{}, "", nil)
	sc := session.New(client, authz.NewPolicy(adminEmail))
	d := session.NewDenier(sc, grace, client.SignOutIf, session.DenierHooks{}, nil)
	t.Cleanup(func() {
		d.Stop()
		sc.Close()
	})
	return client, sc
}

type decisionLog struct {
	mu        sync.Mutex
	decisions []Decision
}

func (l *decisionLog) add(d Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, d)
}

func (l *decisionLog) snapshot() []Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Decision(nil), l.decisions...)
}

func TestWatch_AuthorizedSignIn_AdmitsOnNextUpdate(t *testing.T) {
	client, sc := newSession(t, 50*time.Millisecond)
	log := &decisionLog{}
	stop := Watch(sc, log.add)
	defer stop()

	client.Start(context.Background())
	if _, err := client.SignIn(context.Background(), identity.Credentials{Email: adminEmail, Password: "pw"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := log.snapshot()
	want := []Decision{Pending, Redirect, Admit}
	if len(got) != len(want) {
		t.Fatalf("decisions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("decision[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWatch_UnauthorizedSignIn_RedirectsThenSignsOut(t *testing.T) {
	client, sc := newSession(t, 50*time.Millisecond)
	log := &decisionLog{}
	stop := Watch(sc, log.add)
	defer stop()

	client.Start(context.Background())
	if _, err := client.SignIn(context.Background(), identity.Credentials{Email: "eve@example.com", Password: "pw"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := sc.State()
	if s.Identity == nil || s.Identity.IsAdmin {
		t.Fatalf("expected non-admin identity, got %+v", s.Identity)
	}
	if Evaluate(s) != Redirect {
		t.Error("guard should redirect the non-admin identity")
	}

	deadline := time.Now().Add(time.Second)
	for sc.State().Identity != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sc.State().Identity != nil {
		t.Error("identity should become absent after the grace delay")
	}
	for _, d := range log.snapshot() {
		if d == Admit {
			t.Error("non-admin must never be admitted")
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		wantStatus int
	}{
		{"admin admitted", adminEmail, http.StatusOK},
		{"non-admin redirected", "eve@example.com", http.StatusTemporaryRedirect},
		{"signed out redirected", "", http.StatusTemporaryRedirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, sc := newSession(t, time.Minute)
			client.Start(context.Background())
			if tt.email != "" {
				if _, err := client.SignIn(context.Background(), identity.Credentials{Email: tt.email, Password: "pw"}); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}

			g := New(func(r *http.Request) *session.Context { return sc })
			h := g.RequireAdmin(RedirectHome)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusTemporaryRedirect && rec.Header().Get("Location") != HomePath {
				t.Errorf("Location = %q, want %q", rec.Header().Get("Location"), HomePath)
			}
		})
	}
}

func TestRequireAdmin_WaitsWhilePending(t *testing.T) {
	client, sc := newSession(t, time.Minute)
	g := New(func(r *http.Request) *session.Context { return sc })
	h := g.RequireAdmin(RedirectHome)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		// 初期状態の確定前のサインインが最初の通知になる
		client.SignIn(context.Background(), identity.Credentials{Email: adminEmail, Password: "pw"})
	}()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireAdmin_PendingUntilRequestCancelled(t *testing.T) {
	_, sc := newSession(t, time.Minute)
	g := New(func(r *http.Request) *session.Context { return sc })
	called := false
	h := g.RequireAdmin(func(w http.ResponseWriter, r *http.Request, s session.State) {
		called = true
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run while pending")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if called {
		t.Error("deny must not be called before the decision is known")
	}
}

func TestRequireAdmin_NoSession_Denies(t *testing.T) {
	g := New(func(r *http.Request) *session.Context { return nil })
	h := g.RequireAdmin(RedirectHome)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a session")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rec.Code != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTemporaryRedirect)
	}
}
