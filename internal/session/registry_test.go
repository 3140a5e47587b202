package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/portfolio/internal/authz"
	"github.com/hitoshi/portfolio/internal/identity"
	"github.com/hitoshi/portfolio/internal/model"
)

// memoryStore はテスト用のStore実装。
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]model.BrowserSession
	findErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]model.BrowserSession)}
}

func (m *memoryStore) Create(ctx context.Context, s *model.BrowserSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memoryStore) FindByID(ctx context.Context, id string) (*model.BrowserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryStore) UpdateRefreshToken(ctx context.Context, id, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return errors.New("not found")
	}
	s.RefreshToken = refreshToken
	s.ExpiresAt = expiresAt
	m.sessions[id] = s
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memoryStore) token(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].RefreshToken
}

// restoringProvider はRefreshで保存済みトークンからユーザーを復元する。
type restoringProvider struct {
	stubProvider
}

func (restoringProvider) Refresh(ctx context.Context, refreshToken string) (*identity.Credential, error) {
	if refreshToken != "refresh-"+adminEmail {
		return nil, errors.New("invalid refresh token")
	}
	return &identity.Credential{
		RefreshToken: refreshToken,
		User:         identity.User{UID: "uid-admin", Email: strPtr(adminEmail)},
	}, nil
}

func newTestRegistry(store Store, provider identity.Provider) *Registry {
	r := NewRegistry(provider, authz.NewPolicy(adminEmail), store, RegistryConfig{
		MaxAge:     time.Hour,
		GraceDelay: testGrace,
	}, DenierHooks{}, nil)
	return r
}

func TestRegistry_Create_ResolvesImmediately(t *testing.T) {
	store := newMemoryStore()
	r := newTestRegistry(store, stubProvider{})
	defer r.Stop()

	e, err := r.Create(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == "" {
		t.Fatal("expected non-empty session ID")
	}
	if s := e.Context.State(); s.Loading || s.Identity != nil {
		t.Errorf("unexpected initial state %+v", s)
	}
	if _, err := store.FindByID(context.Background(), e.ID); err != nil {
		t.Errorf("session should be persisted: %v", err)
	}
}

func TestRegistry_SignIn_PersistsRefreshToken(t *testing.T) {
	store := newMemoryStore()
	r := newTestRegistry(store, stubProvider{})
	defer r.Stop()

	e, _ := r.Create(context.Background())
	if _, err := r.SignIn(context.Background(), e, identity.Credentials{Email: adminEmail, Password: "pw"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.token(e.ID); got != "refresh-"+adminEmail {
		t.Errorf("stored token = %q", got)
	}

	if err := r.SignOut(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.token(e.ID); got != "" {
		t.Errorf("stored token after sign-out = %q, want empty", got)
	}
}

func TestRegistry_Open_RestoresFromStore(t *testing.T) {
	store := newMemoryStore()
	store.Create(context.Background(), &model.BrowserSession{
		ID:           "persisted",
		RefreshToken: "refresh-" + adminEmail,
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	r := newTestRegistry(store, restoringProvider{})
	defer r.Stop()

	e, err := r.Open(context.Background(), "persisted")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := e.Context.WaitReady(ctx)
	if err != nil {
		t.Fatalf("restore did not complete: %v", err)
	}
	if s.Identity == nil || !s.Identity.IsAdmin {
		t.Errorf("expected restored admin identity, got %+v", s.Identity)
	}

	again, err := r.Open(context.Background(), "persisted")
	if err != nil || again != e {
		t.Errorf("second Open should return the cached entry")
	}
}

func TestRegistry_Open_UnknownOrExpired(t *testing.T) {
	store := newMemoryStore()
	store.Create(context.Background(), &model.BrowserSession{
		ID:        "expired",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	r := newTestRegistry(store, stubProvider{})
	defer r.Stop()

	for _, id := range []string{"missing", "expired"} {
		if _, err := r.Open(context.Background(), id); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Open(%q) error = %v, want ErrSessionNotFound", id, err)
		}
	}
}

func TestRegistry_Open_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.findErr = errors.New("connection refused")
	r := newTestRegistry(store, stubProvider{})
	defer r.Stop()

	_, err := r.Open(context.Background(), "any")
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestRegistry_ForcedSignOut_ClearsStoredToken(t *testing.T) {
	store := newMemoryStore()
	r := newTestRegistry(store, stubProvider{})
	defer r.Stop()

	e, _ := r.Create(context.Background())
	if _, err := r.SignIn(context.Background(), e, identity.Credentials{Email: "eve@example.com", Password: "pw"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.token(e.ID) == "" {
		t.Fatal("token should be persisted after sign-in")
	}

	if !waitFor(t, time.Second, func() bool { return e.Context.State().Identity == nil }) {
		t.Fatal("non-admin should be signed out after the grace delay")
	}
	if !waitFor(t, time.Second, func() bool { return store.token(e.ID) == "" }) {
		t.Error("forced sign-out should clear the stored token")
	}
}

func TestRegistry_Destroy(t *testing.T) {
	store := newMemoryStore()
	r := newTestRegistry(store, stubProvider{})
	defer r.Stop()

	e, _ := r.Create(context.Background())
	if err := r.Destroy(context.Background(), e.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	if s, _ := store.FindByID(context.Background(), e.ID); s != nil {
		t.Error("session should be deleted from the store")
	}
}

func TestRegistry_Sweep_EvictsIdleEntries(t *testing.T) {
	store := newMemoryStore()
	r := newTestRegistry(store, stubProvider{})
	defer r.Stop()

	e, _ := r.Create(context.Background())

	now := time.Now()
	r.now = func() time.Time { return now.Add(2 * r.config.IdleTimeout) }
	r.sweep()

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	if s, _ := store.FindByID(context.Background(), e.ID); s == nil {
		t.Error("evicted session should remain in the store")
	}
}

func TestRegistry_Open_ExpiredInMemoryEntry(t *testing.T) {
	store := newMemoryStore()
	r := newTestRegistry(store, stubProvider{})
	defer r.Stop()

	e, _ := r.Create(context.Background())
	if _, err := r.SignIn(context.Background(), e, identity.Credentials{Email: adminEmail, Password: "pw"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Open(context.Background(), e.ID); err != nil {
		t.Fatalf("unexpected error before expiry: %v", err)
	}

	now := time.Now()
	r.now = func() time.Time { return now.Add(2 * r.config.MaxAge) }
	store.Delete(context.Background(), e.ID)

	if _, err := r.Open(context.Background(), e.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Open after expiry error = %v, want ErrSessionNotFound", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	if e.Client.ObserverCount() != 0 {
		t.Error("expired entry should be torn down")
	}
}

func TestRegistry_Open_ExpiredEntryWithStoredRow(t *testing.T) {
	store := newMemoryStore()
	r := newTestRegistry(store, stubProvider{})
	defer r.Stop()

	e, _ := r.Create(context.Background())

	now := time.Now()
	r.now = func() time.Time { return now.Add(r.config.MaxAge + time.Minute) }

	if _, err := r.Open(context.Background(), e.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Open error = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistry_SignIn_ExtendsExpiry(t *testing.T) {
	store := newMemoryStore()
	r := newTestRegistry(store, stubProvider{})
	defer r.Stop()

	start := time.Now()
	r.now = func() time.Time { return start }
	e, _ := r.Create(context.Background())

	// 有効期限の直前にサインインすると、そこからMaxAge延長される
	signInAt := start.Add(r.config.MaxAge - time.Minute)
	r.now = func() time.Time { return signInAt }
	if _, err := r.SignIn(context.Background(), e, identity.Credentials{Email: adminEmail, Password: "pw"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.now = func() time.Time { return start.Add(r.config.MaxAge + time.Minute) }
	got, err := r.Open(context.Background(), e.ID)
	if err != nil || got != e {
		t.Fatalf("Open = (%v, %v), want the extended entry", got, err)
	}
}

func TestRegistry_Sweep_EvictsExpiredPendingEntry(t *testing.T) {
	store := newMemoryStore()
	r := NewRegistry(stubProvider{}, authz.NewPolicy(adminEmail), store, RegistryConfig{
		MaxAge:     time.Hour,
		GraceDelay: time.Hour,
	}, DenierHooks{}, nil)
	defer r.Stop()

	e, _ := r.Create(context.Background())
	if _, err := r.SignIn(context.Background(), e, identity.Credentials{Email: "eve@example.com", Password: "pw"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.Denier.Pending() {
		t.Fatal("forced sign-out should be pending")
	}

	now := time.Now()
	r.now = func() time.Time { return now.Add(2 * time.Hour) }
	r.sweep()

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistry_ForceSignOut_SkipsChangedIdentity(t *testing.T) {
	store := newMemoryStore()
	r := NewRegistry(stubProvider{}, authz.NewPolicy(adminEmail), store, RegistryConfig{
		MaxAge:     time.Hour,
		GraceDelay: time.Hour,
	}, DenierHooks{}, nil)
	defer r.Stop()

	e, _ := r.Create(context.Background())
	if _, err := r.SignIn(context.Background(), e, identity.Credentials{Email: adminEmail, Password: "pw"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done, err := r.ForceSignOut(context.Background(), e, "uid-eve@example.com")
	if err != nil || done {
		t.Fatalf("ForceSignOut = (%v, %v), want (false, nil)", done, err)
	}
	if s := e.Context.State(); s.Identity == nil || !s.Identity.IsAdmin {
		t.Errorf("admin should stay signed in, got %+v", s.Identity)
	}
	if got := store.token(e.ID); got != "refresh-"+adminEmail {
		t.Errorf("stored token = %q, want it kept", got)
	}

	done, err = r.ForceSignOut(context.Background(), e, "uid-"+adminEmail)
	if err != nil || !done {
		t.Fatalf("ForceSignOut = (%v, %v), want (true, nil)", done, err)
	}
	if got := store.token(e.ID); got != "" {
		t.Errorf("stored token = %q, want empty", got)
	}
}
