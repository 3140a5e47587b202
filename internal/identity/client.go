// Package identity は外部IdPをラップするIdentity Clientを提供する。
//
// Clientはブラウザセッション1つにつき1つ生成され、サインイン状態の変化を
// 購読者へプッシュ通知する。Session Contextが状態変化を知る唯一の経路であり、
// ポーリングは行わない。
package identity

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/portfolio/internal/model"
)

// User はIdPが報告するサインイン済みプリンシパル。
// 管理者フラグは持たない（Session Contextが許可リストから算出する）。
type User struct {
	UID         string
	Email       *string
	DisplayName *string
	PhotoURL    *string
}

// clone は購読者ごとに独立したコピーを返す。
func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Credentials はメールアドレスとパスワードによるサインイン入力。
type Credentials struct {
	Email    string
	Password string
}

// Credential はIdPから発行された認証情報。
// RefreshTokenはブラウザセッションの永続化に使用する。
type Credential struct {
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// Provider は外部IdPのインターフェース。
type Provider interface {
	// SignInWithPassword はメールアドレスとパスワードで認証する。
	SignInWithPassword(ctx context.Context, email, password string) (*Credential, error)
	// Refresh はリフレッシュトークンから認証情報を再発行する。
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
}

// StateObserver はサインイン状態の購読インターフェース。
// Session Contextはこのインターフェースのみに依存する。
type StateObserver interface {
	ObserveState(fn func(*User)) (unsubscribe func())
}

// Client はIdPへのサインイン・サインアウトと状態通知を提供する。
//
// 状態通知はemitMuで直列化され、購読者には発行順に届く。
// 購読者のコールバック内からSignIn/SignOutを呼び出してはならない。
type Client struct {
	provider Provider
	logger   *slog.Logger

	// emitMu は状態の更新と購読者への通知を直列化する。
	emitMu sync.Mutex

	mu        sync.Mutex
	user      *User
	cred      *Credential
	resolved  bool
	observers map[uint64]func(*User)
	nextID    uint64

	restoreToken string
	startOnce    sync.Once
}

// NewClient はClientを生成する。
// refreshTokenには永続化済みのリフレッシュトークンを渡す。空の場合は未サインイン状態から始まる。
// 初期状態はStartを呼び出すまで確定しない。
func NewClient(provider Provider, refreshToken string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		provider:     provider,
		logger:       logger,
		observers:    make(map[uint64]func(*User)),
		restoreToken: refreshToken,
	}
}

// Start は初期状態を確定させる。2回目以降の呼び出しは何もしない。
// リフレッシュトークンがない場合は即座に未サインイン状態を通知する。
// ある場合はIdPで認証情報を再発行し、失敗した場合は未サインイン状態を通知する。
// Start完了前にSignInが成功した場合、復元結果は破棄される。
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		if c.restoreToken == "" {
			c.publishInitial(nil)
			return
		}

		cred, err := c.provider.Refresh(ctx, c.restoreToken)
		if err != nil {
			c.logger.Warn("failed to restore identity session",
				slog.String("error", err.Error()),
			)
			c.publishInitial(nil)
			return
		}
		c.publishInitial(cred)
	})
}

// SignIn はメールアドレスとパスワードでサインインする。
// 失敗時は常に*model.AuthFailureを返し、状態は変更しない。
// 成功時は購読者への通知が完了してから戻る。
func (c *Client) SignIn(ctx context.Context, creds Credentials) (*User, error) {
	cred, err := c.provider.SignInWithPassword(ctx, creds.Email, creds.Password)
	if err != nil {
		failure := ClassifyFailure(err)
		c.logger.Info("sign-in failed",
			slog.String("reason", string(failure.Code)),
		)
		return nil, failure
	}
	if cred == nil || cred.User.UID == "" {
		return nil, model.NewAuthFailure(model.AuthFailureUnknown, nil)
	}

	c.publish(cred)
	return cred.User.clone(), nil
}

// SignOut はIdPの認証情報を破棄し、未サインイン状態を通知する。
// IdPのREST APIはサーバー側のサインアウトを持たないため、認証情報の破棄のみで完結する。
func (c *Client) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.publish(nil)
	return nil
}

// SignOutIf は現在のユーザーがuidと一致する場合のみサインアウトする。
// 一致判定と未サインイン状態の通知はemitMu保持中に行うため、
// 判定後に別のIdentityへ切り替わることはない。サインアウトした場合はtrueを返す。
func (c *Client) SignOutIf(ctx context.Context, uid string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	match := c.user != nil && c.user.UID == uid
	c.mu.Unlock()
	if !match {
		return false, nil
	}
	c.emitLocked(nil)
	return true, nil
}

// ObserveState は状態変化の購読者を登録し、購読解除関数を返す。
// 初期状態が確定済みの場合、fnは登録時に現在の状態で1回呼び出される。
// 購読解除関数は複数回呼び出しても安全。
func (c *Client) ObserveState(fn func(*User)) func() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	resolved := c.resolved
	current := c.user.clone()
	c.mu.Unlock()

	if resolved {
		fn(current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// CurrentUser は現在のサインインユーザーを返す。未サインインの場合はnil。
func (c *Client) CurrentUser() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user.clone()
}

// RefreshToken は永続化用のリフレッシュトークンを返す。未サインインの場合は空文字列。
func (c *Client) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == nil {
		return ""
	}
	return c.cred.RefreshToken
}

// ObserverCount は登録中の購読者数を返す。テスト用。
func (c *Client) ObserverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers)
}

// publishInitial は初期状態が未確定の場合のみ状態を通知する。
func (c *Client) publishInitial(cred *Credential) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	already := c.resolved
	c.mu.Unlock()
	if already {
		return
	}
	c.emitLocked(cred)
}

// publish は状態を更新し購読者に通知する。
func (c *Client) publish(cred *Credential) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.emitLocked(cred)
}

// emitLocked はemitMu保持中に呼び出す。
func (c *Client) emitLocked(cred *Credential) {
	c.mu.Lock()
	c.cred = cred
	if cred != nil {
		u := cred.User
		c.user = &u
	} else {
		c.user = nil
	}
	c.resolved = true
	fns := make([]func(*User), 0, len(c.observers))
	ids := make([]uint64, 0, len(c.observers))
	for id := range c.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, c.observers[id])
	}
	current := c.user
	c.mu.Unlock()

	for _, fn := range fns {
		fn(current.clone())
	}
}

// compile-time interface check
var _ StateObserver = (*Client)(nil)
