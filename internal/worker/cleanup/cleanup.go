// Package cleanup は期限切れブラウザセッションの自動削除ジョブを提供する。
// 有効期限を過ぎたbrowser_sessionsの行を定期的に削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sqlx.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DefaultInterval はserve内でジョブを実行する間隔。
const DefaultInterval = time.Hour

// SessionCleanupJob は期限切れブラウザセッションの削除ジョブ。
// 冪等な削除処理であり、何度実行しても結果は変わらない。
type SessionCleanupJob struct {
	db     Executor
	logger *slog.Logger
	// GracePeriod は期限切れ後も行を残す時間（デフォルト: 24時間）。
	// 期限切れ直後のリクエストでCookieを確実に破棄するために残す。
	GracePeriod time.Duration
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。
func NewSessionCleanupJob(db Executor, logger *slog.Logger) *SessionCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionCleanupJob{
		db:          db,
		logger:      logger,
		GracePeriod: 24 * time.Hour,
	}
}

// Run はexpires_atがGracePeriodより前のセッションを削除し、削除件数を返す。
func (j *SessionCleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	interval := fmt.Sprintf("%d seconds", int64(j.GracePeriod/time.Second))

	query := `DELETE FROM browser_sessions WHERE expires_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("failed to clean up browser sessions",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to delete expired browser sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}

	j.logger.Info("browser session cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Duration("grace_period", j.GracePeriod),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start はジョブを即座に1回実行し、その後intervalごとに実行する。
// ctxがキャンセルされるまでブロックする。
func (j *SessionCleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
