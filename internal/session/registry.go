package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/portfolio/internal/authz"
	"github.com/hitoshi/portfolio/internal/identity"
	"github.com/hitoshi/portfolio/internal/model"
)

// ErrSessionNotFound はブラウザセッションが存在しないか期限切れであることを表す。
var ErrSessionNotFound = errors.New("browser session not found")

// Store はブラウザセッションの永続化に必要なインターフェース。
// repository.BrowserSessionRepositoryの部分集合として定義する。
type Store interface {
	Create(ctx context.Context, s *model.BrowserSession) error
	FindByID(ctx context.Context, id string) (*model.BrowserSession, error)
	UpdateRefreshToken(ctx context.Context, id, refreshToken string, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// RegistryConfig はRegistryの設定。
type RegistryConfig struct {
	MaxAge         time.Duration // ブラウザセッションの有効期間
	GraceDelay     time.Duration // 強制サインアウトまでの猶予
	RestoreTimeout time.Duration // 永続化済みセッションの復元上限
	IdleTimeout    time.Duration // メモリ上のエントリを破棄するまでの無操作時間
	SweepInterval  time.Duration
}

// Entry はブラウザセッション1つ分のIdentity Client・Session Context・Denierの組。
type Entry struct {
	ID      string
	Client  *identity.Client
	Context *Context
	Denier  *Denier

	mu        sync.Mutex
	lastSeen  time.Time
	expiresAt time.Time
}

func (e *Entry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

// expired はnowがブラウザセッションの有効期限を過ぎているかを返す。
func (e *Entry) expired(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.expiresAt.After(now)
}

func (e *Entry) extend(expiresAt time.Time) {
	e.mu.Lock()
	e.expiresAt = expiresAt
	e.mu.Unlock()
}

func (e *Entry) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

// teardown は購読とタイマーを解放する。
func (e *Entry) teardown() {
	e.Denier.Stop()
	e.Context.Close()
}

// Registry はブラウザセッションIDとEntryの対応を管理する。
type Registry struct {
	provider identity.Provider
	policy   *authz.Policy
	store    Store
	config   RegistryConfig
	hooks    DenierHooks
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRegistry はRegistryを生成する。
func NewRegistry(provider identity.Provider, policy *authz.Policy, store Store, config RegistryConfig, hooks DenierHooks, logger *slog.Logger) *Registry {
	if config.MaxAge <= 0 {
		config.MaxAge = 7 * 24 * time.Hour
	}
	if config.RestoreTimeout <= 0 {
		config.RestoreTimeout = 10 * time.Second
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 30 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		provider: provider,
		policy:   policy,
		store:    store,
		config:   config,
		hooks:    hooks,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]*Entry),
		stopCh:   make(chan struct{}),
	}
}

// Create は新しいブラウザセッションを作成する。
// 初期状態は未サインインで、返却時点でLoadingは解消済み。
func (r *Registry) Create(ctx context.Context) (*Entry, error) {
	now := r.now()
	bs := &model.BrowserSession{
		ID:        uuid.NewString(),
		ExpiresAt: now.Add(r.config.MaxAge),
	}
	if err := r.store.Create(ctx, bs); err != nil {
		return nil, fmt.Errorf("failed to create browser session: %w", err)
	}

	e := r.newEntry(bs.ID, "", bs.ExpiresAt)
	e.Client.Start(ctx)

	r.mu.Lock()
	r.entries[e.ID] = e
	r.mu.Unlock()

	return e, nil
}

// Open は既存のブラウザセッションを返す。
// 有効期限を過ぎたセッションはメモリ上にあっても破棄し、ErrSessionNotFoundを返す。
// メモリ上にない場合はストアから復元し、Identity Clientの初期化をバックグラウンドで開始する。
// 復元直後のEntryは初期化が完了するまでLoading状態となる。
func (r *Registry) Open(ctx context.Context, id string) (*Entry, error) {
	if e := r.lookup(id); e != nil {
		return e, nil
	}

	bs, err := r.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find browser session: %w", err)
	}
	if bs == nil || !bs.ExpiresAt.After(r.now()) {
		return nil, ErrSessionNotFound
	}

	e := r.newEntry(bs.ID, bs.RefreshToken, bs.ExpiresAt)

	r.mu.Lock()
	if existing, ok := r.entries[id]; ok {
		// 並行リクエストが先に復元した
		r.mu.Unlock()
		e.teardown()
		if existing.expired(r.now()) {
			return nil, ErrSessionNotFound
		}
		existing.touch(r.now())
		return existing, nil
	}
	r.entries[id] = e
	r.mu.Unlock()

	go func() {
		restoreCtx, cancel := context.WithTimeout(context.Background(), r.config.RestoreTimeout)
		defer cancel()
		e.Client.Start(restoreCtx)
	}()

	return e, nil
}

// SignIn はEntryのIdentity Clientでサインインし、認証情報を永続化する。
// 永続化に失敗してもサインイン自体は成功として扱う。
func (r *Registry) SignIn(ctx context.Context, e *Entry, creds identity.Credentials) (*identity.User, error) {
	u, err := e.Client.SignIn(ctx, creds)
	if err != nil {
		return nil, err
	}

	expiresAt := r.now().Add(r.config.MaxAge)
	if err := r.store.UpdateRefreshToken(ctx, e.ID, e.Client.RefreshToken(), expiresAt); err != nil {
		r.logger.Error("failed to persist browser session",
			slog.String("session_id", e.ID),
			slog.String("error", err.Error()),
		)
		return u, nil
	}
	e.extend(expiresAt)
	return u, nil
}

// SignOut はEntryのIdentity Clientをサインアウトし、永続化済みの認証情報を消去する。
func (r *Registry) SignOut(ctx context.Context, e *Entry) error {
	if err := e.Client.SignOut(ctx); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return r.clearCredential(ctx, e)
}

// ForceSignOut はEntryのIdentityがuidのままである場合のみサインアウトし、
// 永続化済みの認証情報を消去する。サインアウトした場合はtrueを返す。
func (r *Registry) ForceSignOut(ctx context.Context, e *Entry, uid string) (bool, error) {
	done, err := e.Client.SignOutIf(ctx, uid)
	if err != nil {
		return false, fmt.Errorf("failed to sign out: %w", err)
	}
	if !done {
		return false, nil
	}
	return true, r.clearCredential(ctx, e)
}

func (r *Registry) clearCredential(ctx context.Context, e *Entry) error {
	expiresAt := r.now().Add(r.config.MaxAge)
	if err := r.store.UpdateRefreshToken(ctx, e.ID, "", expiresAt); err != nil {
		return fmt.Errorf("failed to clear browser session credential: %w", err)
	}
	e.extend(expiresAt)
	return nil
}

// Destroy はEntryを破棄し、ストアからも削除する。
func (r *Registry) Destroy(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		e.teardown()
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete browser session: %w", err)
	}
	return nil
}

// Len はメモリ上のEntry数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// StartSweep は無操作のEntryをメモリから破棄するバックグラウンド処理を開始する。
// ストア上のセッションは残るため、次のリクエストで復元される。
func (r *Registry) StartSweep() {
	go r.sweepLoop()
}

// Stop はバックグラウンド処理を停止し、すべてのEntryを破棄する。複数回呼び出しても安全。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)

		r.mu.Lock()
		entries := r.entries
		r.entries = make(map[string]*Entry)
		r.mu.Unlock()

		for _, e := range entries {
			e.teardown()
		}
	})
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

// sweep は有効期限切れのEntryと、最終アクセスからIdleTimeoutを超えたEntryを破棄する。
// 有効期限内であれば強制サインアウト待ちのEntryは破棄しない。
func (r *Registry) sweep() {
	now := r.now()
	cutoff := now.Add(-r.config.IdleTimeout)

	var evicted []*Entry
	r.mu.Lock()
	for id, e := range r.entries {
		idle := e.idleSince().Before(cutoff) && !e.Denier.Pending()
		if idle || e.expired(now) {
			evicted = append(evicted, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range evicted {
		e.teardown()
	}
	if len(evicted) > 0 {
		r.logger.Debug("evicted idle browser sessions",
			slog.Int("count", len(evicted)),
		)
	}
}

// lookup はメモリ上のEntryを返す。有効期限切れのEntryは破棄してnilを返す。
func (r *Registry) lookup(id string) *Entry {
	now := r.now()

	r.mu.Lock()
	e, ok := r.entries[id]
	if ok && e.expired(now) {
		delete(r.entries, id)
		r.mu.Unlock()
		e.teardown()
		r.logger.Debug("dropped expired browser session",
			slog.String("session_id", id),
		)
		return nil
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	e.touch(now)
	return e
}

// newEntry はEntryを組み立てる。Denierの強制サインアウトはRegistry経由で永続化まで行う。
func (r *Registry) newEntry(id, refreshToken string, expiresAt time.Time) *Entry {
	client := identity.NewClient(r.provider, refreshToken, r.logger.With(slog.String("session_id", id)))
	sc := New(client, r.policy)
	e := &Entry{
		ID:        id,
		Client:    client,
		Context:   sc,
		lastSeen:  r.now(),
		expiresAt: expiresAt,
	}
	e.Denier = NewDenier(sc, r.config.GraceDelay, func(ctx context.Context, uid string) (bool, error) {
		return r.ForceSignOut(ctx, e, uid)
	}, r.hooks, r.logger)
	return e
}
