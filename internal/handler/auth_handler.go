package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/portfolio/internal/identity"
	"github.com/hitoshi/portfolio/internal/metrics"
	"github.com/hitoshi/portfolio/internal/middleware"
	"github.com/hitoshi/portfolio/internal/model"
	"github.com/hitoshi/portfolio/internal/session"
)

// サインイン結果のメトリクスラベル。失敗時はAuthFailureのコードを使う。
const (
	signInOutcomeAdmin  = "admin"
	signInOutcomeDenied = "denied"
)

// SessionManager は認証ハンドラーが必要とするブラウザセッション操作。
// session.Registryの部分集合として定義する。
type SessionManager interface {
	SignIn(ctx context.Context, e *session.Entry, creds identity.Credentials) (*identity.User, error)
	SignOut(ctx context.Context, e *session.Entry) error
	Destroy(ctx context.Context, id string) error
}

// AuthHandler はログイン・ログアウト・セッション状態のHTTPハンドラー。
type AuthHandler struct {
	sessions SessionManager
	cookie   middleware.SessionConfig
	metrics  metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions SessionManager, cookie middleware.SessionConfig, collector metrics.MetricsCollector) *AuthHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &AuthHandler{
		sessions: sessions,
		cookie:   cookie,
		metrics:  collector,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse はセッション状態のAPIレスポンス。
type sessionResponse struct {
	Loading        bool              `json:"loading"`
	Identity       *identityResponse `json:"identity"`
	DeniedMessage  string            `json:"deniedMessage,omitempty"`
	SignOutPending bool              `json:"signOutPending"`
}

// Login はメールアドレスとパスワードでサインインする。
// POST /auth/login
//
// 認証失敗は401、許可リスト外のユーザーは403を返す。
// 403の場合、猶予時間後にサーバー側で強制サインアウトされる。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	entry := middleware.EntryFromContext(r.Context())
	if entry == nil {
		slog.Error("login reached without a browser session")
		middleware.WriteInternalServerError(w)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, model.NewInvalidRequestError())
		return
	}

	_, err := h.sessions.SignIn(r.Context(), entry, identity.Credentials{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		var failure *model.AuthFailure
		if errors.As(err, &failure) {
			h.metrics.RecordSignIn(string(failure.Code))
			slog.Info("sign-in failed",
				slog.String("session_id", entry.ID),
				slog.String("code", string(failure.Code)),
			)
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
				Code:     string(failure.Code),
				Message:  failure.Message(),
				Category: "auth",
				Action:   "Check your email and password and try again.",
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	state := entry.Context.State()
	if state.Identity == nil || !state.Identity.IsAdmin {
		h.metrics.RecordSignIn(signInOutcomeDenied)
		handleServiceError(w, model.NewAccessDeniedError(state.Identity.EmailOrEmpty()))
		return
	}

	h.metrics.RecordSignIn(signInOutcomeAdmin)
	slog.Info("admin signed in",
		slog.String("session_id", entry.ID),
		slog.String("uid", state.Identity.UID),
	)
	writeJSON(w, http.StatusOK, h.toSessionResponse(entry, state))
}

// Logout はサインアウトしてブラウザセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if entry := middleware.EntryFromContext(r.Context()); entry != nil {
		if err := h.sessions.SignOut(r.Context(), entry); err != nil {
			// サインアウトに失敗してもセッションは破棄する
			slog.Error("failed to sign out", slog.String("error", err.Error()))
		}
		if err := h.sessions.Destroy(r.Context(), entry.ID); err != nil {
			slog.Error("failed to destroy browser session", slog.String("error", err.Error()))
		}
	}

	middleware.ClearSessionCookie(w, h.cookie)
	w.WriteHeader(http.StatusNoContent)
}

// Session は現在のセッション状態を返す。
// GET /auth/session?wait=true
//
// wait=trueの場合は初期状態が確定するまで待つ（リクエストのコンテキストが上限）。
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	entry := middleware.EntryFromContext(r.Context())
	if entry == nil {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}

	state := entry.Context.State()
	if r.URL.Query().Get("wait") == "true" {
		var err error
		state, err = entry.Context.WaitReady(r.Context())
		if err != nil {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.toSessionResponse(entry, state))
}

func (h *AuthHandler) toSessionResponse(entry *session.Entry, state session.State) sessionResponse {
	resp := sessionResponse{
		Loading:  state.Loading,
		Identity: toIdentityResponse(state.Identity),
	}
	if entry.Denier != nil {
		resp.DeniedMessage = entry.Denier.Message()
		resp.SignOutPending = entry.Denier.Pending()
	}
	return resp
}
