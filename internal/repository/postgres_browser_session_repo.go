package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/portfolio/internal/model"
)

// PostgresBrowserSessionRepo はPostgreSQLを使用したブラウザセッションリポジトリ。
type PostgresBrowserSessionRepo struct {
	db *sqlx.DB
}

// NewPostgresBrowserSessionRepo はPostgresBrowserSessionRepoを生成する。
func NewPostgresBrowserSessionRepo(db *sqlx.DB) *PostgresBrowserSessionRepo {
	return &PostgresBrowserSessionRepo{db: db}
}

// Create はブラウザセッションを作成する。
func (r *PostgresBrowserSessionRepo) Create(ctx context.Context, s *model.BrowserSession) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO browser_sessions (id, refresh_token, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)`,
		s.ID, s.RefreshToken, s.ExpiresAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create browser session: %w", err)
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// FindByID は指定IDのセッションを取得する。存在しないか期限切れの場合はnilを返す。
// CookieのセッションIDは任意の文字列になり得るため、UUIDでない場合もnilを返す。
func (r *PostgresBrowserSessionRepo) FindByID(ctx context.Context, id string) (*model.BrowserSession, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	s := &model.BrowserSession{}
	err := r.db.QueryRowxContext(ctx,
		`SELECT id, refresh_token, expires_at, created_at, updated_at
		 FROM browser_sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&s.ID, &s.RefreshToken, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find browser session: %w", err)
	}
	return s, nil
}

// UpdateRefreshToken はリフレッシュトークンと有効期限を更新する。
func (r *PostgresBrowserSessionRepo) UpdateRefreshToken(ctx context.Context, id, refreshToken string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE browser_sessions
		 SET refresh_token = $2, expires_at = $3, updated_at = now()
		 WHERE id = $1`,
		id, refreshToken, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update browser session: %w", err)
	}
	return requireAffected(result)
}

// Delete は指定IDのセッションを削除する。存在しない場合もエラーにしない。
func (r *PostgresBrowserSessionRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM browser_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete browser session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BrowserSessionRepository = (*PostgresBrowserSessionRepo)(nil)
