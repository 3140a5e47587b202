// Package guard は管理画面へのナビゲーション可否を判定するRoute Guardを提供する。
package guard

import (
	"net/http"

	"github.com/hitoshi/portfolio/internal/session"
)

// Decision はRoute Guardの判定結果。
type Decision int

const (
	// Pending は初期状態が未確定のため判定を保留する。
	Pending Decision = iota
	// Admit は管理画面へのナビゲーションを許可する。
	Admit
	// Redirect は公開トップページへリダイレクトする。
	Redirect
)

// HomePath はRedirect時の遷移先。
const HomePath = "/"

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Admit:
		return "admit"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Evaluate はSession Contextの状態から判定を返す。
func Evaluate(s session.State) Decision {
	if s.Loading {
		return Pending
	}
	if s.Identity != nil && s.Identity.IsAdmin {
		return Admit
	}
	return Redirect
}

// Source はRoute Guardが購読する状態の供給元。
type Source interface {
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// Watch はSession Contextの変化のたびに判定をやり直し、fnに通知する。
// 判定が変わらない通知はfnに渡さない。返却される関数で購読を解除する。
func Watch(src Source, fn func(Decision)) (stop func()) {
	last := Decision(-1)
	return src.Subscribe(func(s session.State) {
		d := Evaluate(s)
		if d == last {
			return
		}
		last = d
		fn(d)
	})
}

// Resolver はリクエストに対応するSession Contextを返す。
// 対応するセッションがない場合はnilを返す。
type Resolver func(r *http.Request) *session.Context

// DenyFunc はRedirect判定時の応答を書き込む。
// identityが存在する場合は非管理者のサインイン済みユーザー。
type DenyFunc func(w http.ResponseWriter, r *http.Request, s session.State)

// Guard はRoute Guardのミドルウェアを提供する。
type Guard struct {
	resolve Resolver
}

// New はGuardを生成する。
func New(resolve Resolver) *Guard {
	return &Guard{resolve: resolve}
}

// RequireAdmin は管理者のみを通過させるミドルウェアを返す。
// Pending中はリクエストのコンテキストが終了するまで判定を待つ。
func (g *Guard) RequireAdmin(deny DenyFunc) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := g.resolve(r)
			if sc == nil {
				deny(w, r, session.State{})
				return
			}

			s, err := sc.WaitReady(r.Context())
			if err != nil {
				// 判定前にクライアントが切断したかタイムアウトした
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}

			if Evaluate(s) != Admit {
				deny(w, r, s)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RedirectHome はHomePathへの307リダイレクトを返すDenyFunc。
func RedirectHome(w http.ResponseWriter, r *http.Request, _ session.State) {
	http.Redirect(w, r, HomePath, http.StatusTemporaryRedirect)
}
