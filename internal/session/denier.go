package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultGraceDelay は拒否メッセージを表示してから強制サインアウトするまでの猶予。
const DefaultGraceDelay = 3 * time.Second

// forcedSignOutTimeout は強制サインアウト1回あたりの上限時間。
const forcedSignOutTimeout = 10 * time.Second

// SignOutFunc は強制サインアウトを実行する関数。
// 現在のIdentityがuidと一致する場合のみサインアウトし、実行した場合はtrueを返す。
type SignOutFunc func(ctx context.Context, uid string) (bool, error)

// DenierHooks は拒否と強制サインアウトの発生を通知するフック。メトリクス用。
type DenierHooks struct {
	OnDenied        func()
	OnForcedSignOut func()
}

// Denier は管理者でないサインイン済みIdentityを検知し、
// 拒否メッセージを記録したうえで猶予時間後に強制サインアウトする。
//
// タイマーはIdentityが不在または管理者に変わったとき、およびStop時に取り消され、
// 取り消されたタイマーが発火することはない。発火と状態変化が競合した場合も、
// サインアウトは拒否したUIDに限定される。
type Denier struct {
	delay   time.Duration
	signOut SignOutFunc
	hooks   DenierHooks
	logger  *slog.Logger

	mu         sync.Mutex
	timer      *time.Timer
	pendingUID string
	generation uint64
	message    string
	stopped    bool

	unsubscribe func()
}

// NewDenier はDenierを生成し、Session Contextの購読を開始する。
func NewDenier(sc *Context, delay time.Duration, signOut SignOutFunc, hooks DenierHooks, logger *slog.Logger) *Denier {
	if delay <= 0 {
		delay = DefaultGraceDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Denier{
		delay:   delay,
		signOut: signOut,
		hooks:   hooks,
		logger:  logger,
	}
	d.unsubscribe = sc.Subscribe(d.observe)
	return d
}

// DeniedMessage は拒否メッセージを生成する。
func DeniedMessage(email string) string {
	return fmt.Sprintf("Access Denied: %s is not authorized", email)
}

func (d *Denier) observe(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || s.Loading {
		return
	}

	switch {
	case s.Identity == nil:
		// サインアウト済み。メッセージはログイン画面に残す
		d.cancelLocked()
	case s.Identity.IsAdmin:
		d.cancelLocked()
		d.message = ""
	default:
		if d.timer != nil && d.pendingUID == s.Identity.UID {
			return
		}
		d.cancelLocked()
		d.message = DeniedMessage(s.Identity.EmailOrEmpty())
		d.pendingUID = s.Identity.UID
		d.generation++
		gen := d.generation
		d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })

		d.logger.Warn("access denied for non-admin identity",
			slog.String("uid", s.Identity.UID),
		)
		if d.hooks.OnDenied != nil {
			d.hooks.OnDenied()
		}
	}
}

// fire はタイマー発火時に呼び出される。世代が一致しない場合は取り消し済みとして何もしない。
func (d *Denier) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.generation || d.timer == nil {
		d.mu.Unlock()
		return
	}
	uid := d.pendingUID
	d.timer = nil
	d.pendingUID = ""
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), forcedSignOutTimeout)
	defer cancel()

	done, err := d.signOut(ctx, uid)
	if err != nil {
		d.logger.Error("forced sign-out failed",
			slog.String("uid", uid),
			slog.String("error", err.Error()),
		)
		return
	}
	if !done {
		d.logger.Debug("forced sign-out skipped: identity changed",
			slog.String("uid", uid),
		)
		return
	}
	if d.hooks.OnForcedSignOut != nil {
		d.hooks.OnForcedSignOut()
	}
}

// cancelLocked は保留中のタイマーを取り消す。mu保持中に呼び出す。
func (d *Denier) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pendingUID = ""
	d.generation++
}

// Message は直近の拒否メッセージを返す。拒否されていない場合は空文字列。
func (d *Denier) Message() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.message
}

// Pending は強制サインアウトのタイマーが保留中かどうかを返す。
func (d *Denier) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop はタイマーを取り消し、購読を解除する。複数回呼び出しても安全。
func (d *Denier) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.cancelLocked()
	d.mu.Unlock()

	d.unsubscribe()
}
