package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/portfolio/internal/authz"
	"github.com/hitoshi/portfolio/internal/config"
	"github.com/hitoshi/portfolio/internal/content"
	"github.com/hitoshi/portfolio/internal/database"
	"github.com/hitoshi/portfolio/internal/handler"
	"github.com/hitoshi/portfolio/internal/identity"
	"github.com/hitoshi/portfolio/internal/logger"
	"github.com/hitoshi/portfolio/internal/metrics"
	"github.com/hitoshi/portfolio/internal/middleware"
	"github.com/hitoshi/portfolio/internal/repository"
	"github.com/hitoshi/portfolio/internal/security"
	"github.com/hitoshi/portfolio/internal/session"
	"github.com/hitoshi/portfolio/internal/techstack"
	"github.com/hitoshi/portfolio/internal/worker/cleanup"
)

const (
	startupPingTimeout = 5 * time.Second
	shutdownTimeout    = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。serveはctxがキャンセルされるとグレースフルシャットダウンする。
func Run(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		if isMigrateDown(args) {
			return runMigrateDown(cfg)
		}
		return runMigrate(cfg)
	case CommandCleanup:
		return runCleanup(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// server はserveモードで組み立てた依存関係一式。
type server struct {
	handler  http.Handler
	registry *session.Registry
	cleanup  *cleanup.SessionCleanupJob
}

// buildServer はDB接続から全依存関係をワイヤリングする。
// DBへの接続確認は行わない（到達不能な場合もフォールバックで応答する）。
func buildServer(cfg *config.Config, db *sqlx.DB, reg *prometheus.Registry) (*server, error) {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. リポジトリの初期化
	projectRepo := repository.NewPostgresProjectRepo(db)
	blogPostRepo := repository.NewPostgresBlogPostRepo(db)
	browserSessionRepo := repository.NewPostgresBrowserSessionRepo(db)

	// 3. Identity Provider
	verifier := identity.NewJWKSVerifier(identity.JWKSVerifierConfig{
		ProjectID: cfg.FirebaseProjectID,
		JWKSURL:   cfg.JWKSURL,
		Timeout:   cfg.IdentityTimeout,
	})
	provider := identity.NewFirebaseProvider(identity.FirebaseConfig{
		APIKey:             cfg.FirebaseAPIKey,
		ProjectID:          cfg.FirebaseProjectID,
		Timeout:            cfg.IdentityTimeout,
		IdentityToolkitURL: cfg.IdentityToolkitURL,
		SecureTokenURL:     cfg.SecureTokenURL,
	}, verifier)

	// 4. ブラウザセッション
	registry := session.NewRegistry(
		provider,
		authz.NewPolicy(cfg.AdminEmail),
		browserSessionRepo,
		session.RegistryConfig{
			MaxAge:         time.Duration(cfg.SessionMaxAge) * time.Second,
			GraceDelay:     cfg.SignOutGraceDelay,
			RestoreTimeout: cfg.IdentityTimeout,
			SweepInterval:  cfg.SessionCleanupInterval,
		},
		session.DenierHooks{
			OnDenied:        collector.RecordAccessDenied,
			OnForcedSignOut: collector.RecordForcedSignOut,
		},
		slog.Default(),
	)

	// 5. コンテンツ
	contentService := content.NewService(
		projectRepo, blogPostRepo,
		security.NewHTMLSanitizer(),
		collector,
		cfg.ContentFetchTimeout,
		slog.Default(),
	)
	stack, err := techstack.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load tech stack: %w", err)
	}

	// 6. ルーターの構築
	sessionCfg := middleware.SessionConfig{
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
		MaxAge:       cfg.SessionMaxAge,
	}
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:        slog.Default(),
		Sessions:      registry,
		SessionConfig: sessionCfg,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		SecureHeaders:     cfg.CookieSecure,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),

		HealthChecker:  db,
		SessionManager: registry,

		Content:   contentService,
		TechStack: stack,
		ContentConfig: handler.ContentHandlerConfig{
			BaseURL:         cfg.BaseURL,
			FeedTitle:       cfg.FeedTitle,
			FeedDescription: cfg.FeedDescription,
		},

		Admin: contentService,
	})

	return &server{
		handler:  router,
		registry: registry,
		cleanup:  cleanup.NewSessionCleanupJob(db, slog.Default()),
	}, nil
}

// newMetricsRegistry はプロセス・ランタイムのメトリクスを含むレジストリを生成する。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(ctx, db, startupPingTimeout); err != nil {
		// 到達不能でも公開コンテンツはフォールバックで配信できるため起動を続ける
		slog.Warn("database unreachable at startup", slog.String("error", err.Error()))
	} else {
		slog.Info("database connection established")
	}

	// 2. 依存関係のワイヤリング
	srv, err := buildServer(cfg, db, newMetricsRegistry())
	if err != nil {
		return err
	}
	srv.registry.StartSweep()
	defer srv.registry.Stop()

	// 3. 期限切れブラウザセッションの定期削除
	jobCtx, cancelJobs := context.WithCancel(ctx)
	jobDone := make(chan struct{})
	go func() {
		defer close(jobDone)
		srv.cleanup.Start(jobCtx, cfg.SessionCleanupInterval)
	}()
	defer func() {
		cancelJobs()
		<-jobDone
	}()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("API server starting",
		slog.String("addr", server.Addr),
	)
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runMigrateDown は直近のマイグレーションを1つ取り消す。
func runMigrateDown(cfg *config.Config) error {
	slog.Info("rolling back the latest database migration",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration rollback failed: %w", err)
	}

	slog.Info("database migration rolled back")
	return nil
}

// runCleanup は期限切れブラウザセッションの削除を1回実行する。
func runCleanup(ctx context.Context, cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(ctx, db, startupPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := cleanup.NewSessionCleanupJob(db, slog.Default()).Run(ctx); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// URLとして解釈できない場合は全体をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
