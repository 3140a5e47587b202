package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/portfolio/internal/guard"
	"github.com/hitoshi/portfolio/internal/metrics"
	"github.com/hitoshi/portfolio/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Sessions          middleware.SessionOpener
	SessionConfig     middleware.SessionConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	SecureHeaders     bool
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler // nilの場合は/metricsを公開しない

	// ヘルスチェック
	HealthChecker HealthChecker

	// 認証
	SessionManager SessionManager

	// コンテンツ
	Content       ContentLister
	TechStack     TechStackCatalogue
	ContentConfig ContentHandlerConfig

	// 管理画面
	Admin AdminService
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → CSRF → (Guard)
//
// ログインのみセッションを新規作成する。管理画面はRoute Guardの内側に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecureHeaders))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	contentHandler := NewContentHandler(deps.Content, deps.TechStack, deps.ContentConfig)
	authHandler := NewAuthHandler(deps.SessionManager, deps.SessionConfig, deps.Metrics)
	adminHandler := NewAdminHandler(deps.Admin)
	g := guard.New(middleware.SessionContextFromRequest)

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 公開コンテンツ（セッション不要） ---
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
	r.Route("/api/projects", func(r chi.Router) {
		r.Get("/", contentHandler.ListProjects)
		r.Get("/tags", contentHandler.ListProjectTags)
	})
	r.Get("/api/blog-posts", contentHandler.ListBlogPosts)
	r.Get("/blog/feed.xml", contentHandler.BlogFeed)
	r.Route("/api/tech-stack", func(r chi.Router) {
		r.Get("/", contentHandler.ListTechStack)
		r.Get("/scores", contentHandler.TechStackScores)
	})

	// --- 認証 ---
	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.With(middleware.NewEnsureSessionMiddleware(deps.Sessions, deps.SessionConfig)).Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.Sessions, deps.SessionConfig))
			r.Post("/logout", authHandler.Logout)
			r.Get("/session", authHandler.Session)
		})
	})

	// --- 管理画面（Session → CSRF → Route Guard） ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Sessions, deps.SessionConfig))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// ページはトップへリダイレクト
		r.With(g.RequireAdmin(guard.RedirectHome)).Get("/admin", adminHandler.Workspace)

		// APIはJSONで拒否
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(g.RequireAdmin(DenyAPI))

			r.Get("/records/{kind}", adminHandler.ListRecords)
			r.Post("/projects", adminHandler.CreateProject)
			r.Delete("/projects/{id}", adminHandler.DeleteProject)
			r.Post("/blog-posts", adminHandler.CreateBlogPost)
			r.Delete("/blog-posts/{id}", adminHandler.DeleteBlogPost)
		})
	})

	return r
}
