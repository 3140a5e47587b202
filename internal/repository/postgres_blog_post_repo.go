package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hitoshi/portfolio/internal/model"
)

const blogPostColumns = `id, title, excerpt, content, cover_image, tags, published_at, slug`

// blogPostRow はblog_postsテーブルの1行。
type blogPostRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Excerpt     string         `db:"excerpt"`
	Content     string         `db:"content"`
	CoverImage  string         `db:"cover_image"`
	Tags        pq.StringArray `db:"tags"`
	PublishedAt time.Time      `db:"published_at"`
	Slug        string         `db:"slug"`
}

func (r blogPostRow) toModel() model.BlogPost {
	return model.BlogPost{
		ID:          r.ID,
		Title:       r.Title,
		Excerpt:     r.Excerpt,
		Content:     r.Content,
		CoverImage:  r.CoverImage,
		Tags:        []string(r.Tags),
		PublishedAt: r.PublishedAt,
		Slug:        r.Slug,
	}
}

// PostgresBlogPostRepo はPostgreSQLを使用したブログ記事リポジトリ。
type PostgresBlogPostRepo struct {
	db *sqlx.DB
}

// NewPostgresBlogPostRepo はPostgresBlogPostRepoを生成する。
func NewPostgresBlogPostRepo(db *sqlx.DB) *PostgresBlogPostRepo {
	return &PostgresBlogPostRepo{db: db}
}

// List は全記事をpublished_at降順（同時刻はID降順）で返す。
func (r *PostgresBlogPostRepo) List(ctx context.Context) ([]model.BlogPost, error) {
	var rows []blogPostRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+blogPostColumns+`
		 FROM blog_posts
		 ORDER BY published_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list blog posts: %w", err)
	}

	posts := make([]model.BlogPost, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, row.toModel())
	}
	return posts, nil
}

// FindBySlug はslugで記事を検索する。見つからない場合はnilを返す。
func (r *PostgresBlogPostRepo) FindBySlug(ctx context.Context, slug string) (*model.BlogPost, error) {
	var row blogPostRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+blogPostColumns+` FROM blog_posts WHERE slug = $1`,
		slug,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find blog post by slug: %w", err)
	}

	post := row.toModel()
	return &post, nil
}

// Create は記事を作成し、採番したIDをbに設定する。
func (r *PostgresBlogPostRepo) Create(ctx context.Context, b *model.BlogPost) error {
	id := uuid.NewString()
	publishedAt := b.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}
	tags := b.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO blog_posts (`+blogPostColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, b.Title, b.Excerpt, b.Content, b.CoverImage, pq.Array(tags), publishedAt, b.Slug,
	)
	if err != nil {
		return fmt.Errorf("failed to create blog post: %w", err)
	}

	b.ID = id
	b.Tags = tags
	b.PublishedAt = publishedAt
	return nil
}

// Delete は指定IDの記事を削除する。
func (r *PostgresBlogPostRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.ErrRecordNotFound
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM blog_posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete blog post: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ BlogPostRepository = (*PostgresBlogPostRepo)(nil)
