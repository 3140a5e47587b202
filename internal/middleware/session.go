// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/portfolio/internal/session"
)

// SessionCookieName はブラウザセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// entryContextKey はリクエストコンテキストにブラウザセッションを格納するためのキー。
var entryContextKey = contextKey("browser_session")

// SessionOpener はブラウザセッションの作成と取得に必要なインターフェース。
// session.Registryの部分集合として定義する。
type SessionOpener interface {
	Create(ctx context.Context) (*session.Entry, error)
	Open(ctx context.Context, id string) (*session.Entry, error)
}

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int // 秒
}

// NewSessionMiddleware はCookieのブラウザセッションを読み込むミドルウェアを返す。
// セッションがない、または失効している場合はセッションなしで次に進む。
// 失効したCookieは削除する。
func NewSessionMiddleware(opener SessionOpener, config SessionConfig) func(next http.Handler) http.Handler {
	return newSessionMiddleware(opener, config, false)
}

// NewEnsureSessionMiddleware はブラウザセッションを必ず用意するミドルウェアを返す。
// 有効なセッションがない場合は新規作成してCookieを発行する。ログイン操作で使用する。
func NewEnsureSessionMiddleware(opener SessionOpener, config SessionConfig) func(next http.Handler) http.Handler {
	return newSessionMiddleware(opener, config, true)
}

func newSessionMiddleware(opener SessionOpener, config SessionConfig, create bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var entry *session.Entry

			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				entry, err = opener.Open(r.Context(), cookie.Value)
				switch {
				case errors.Is(err, session.ErrSessionNotFound):
					if !create {
						ClearSessionCookie(w, config)
					}
				case err != nil:
					slog.Error("failed to open browser session",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
			}

			if entry == nil && create {
				var err error
				entry, err = opener.Create(r.Context())
				if err != nil {
					slog.Error("failed to create browser session",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				SetSessionCookie(w, entry.ID, config)
			}

			if entry == nil {
				next.ServeHTTP(w, r)
				return
			}

			annotateSession(r.Context(), entry.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithEntry(r.Context(), entry)))
		})
	}
}

// SetSessionCookie はセッションCookieを設定する。
func SetSessionCookie(w http.ResponseWriter, id string, config SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.MaxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, config SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// EntryFromContext はリクエストコンテキストからブラウザセッションを取得する。
// セッションミドルウェアを通過していない場合やセッションがない場合はnilを返す。
func EntryFromContext(ctx context.Context) *session.Entry {
	e, _ := ctx.Value(entryContextKey).(*session.Entry)
	return e
}

// ContextWithEntry はコンテキストにブラウザセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithEntry(ctx context.Context, e *session.Entry) context.Context {
	return context.WithValue(ctx, entryContextKey, e)
}

// SessionContextFromRequest はリクエストに対応するSession Contextを返す。
// guard.Resolverとして使用する。
func SessionContextFromRequest(r *http.Request) *session.Context {
	e := EntryFromContext(r.Context())
	if e == nil {
		return nil
	}
	return e.Context
}
