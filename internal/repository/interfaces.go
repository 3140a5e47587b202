// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/portfolio/internal/model"
)

// ProjectRepository はプロジェクトの永続化インターフェース。
type ProjectRepository interface {
	// List は全プロジェクトをcreated_at降順（同時刻はID降順）で返す。
	List(ctx context.Context) ([]model.Project, error)
	// Create はプロジェクトを作成する。IDはリポジトリが採番してpに設定する。
	// CreatedAtがゼロ値の場合は現在時刻を設定する。
	Create(ctx context.Context, p *model.Project) error
	// Delete は指定IDのプロジェクトを削除する。
	// 該当がない場合はmodel.ErrRecordNotFoundを返す。
	Delete(ctx context.Context, id string) error
}

// BlogPostRepository はブログ記事の永続化インターフェース。
type BlogPostRepository interface {
	// List は全記事をpublished_at降順（同時刻はID降順）で返す。
	List(ctx context.Context) ([]model.BlogPost, error)
	// FindBySlug はslugで記事を検索する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.BlogPost, error)
	// Create は記事を作成する。IDはリポジトリが採番してbに設定する。
	Create(ctx context.Context, b *model.BlogPost) error
	// Delete は指定IDの記事を削除する。
	// 該当がない場合はmodel.ErrRecordNotFoundを返す。
	Delete(ctx context.Context, id string) error
}

// BrowserSessionRepository はブラウザセッションの永続化インターフェース。
type BrowserSessionRepository interface {
	// Create はブラウザセッションを作成する。
	Create(ctx context.Context, s *model.BrowserSession) error
	// FindByID は指定IDのセッションを取得する。存在しないか期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.BrowserSession, error)
	// UpdateRefreshToken はリフレッシュトークンと有効期限を更新する。
	UpdateRefreshToken(ctx context.Context, id, refreshToken string, expiresAt time.Time) error
	// Delete は指定IDのセッションを削除する。
	Delete(ctx context.Context, id string) error
}
