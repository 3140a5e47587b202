package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hitoshi/portfolio/internal/model"
)

// projectRow はprojectsテーブルの1行。
type projectRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Thumbnail   string         `db:"thumbnail"`
	Tags        pq.StringArray `db:"tags"`
	LiveURL     sql.NullString `db:"live_url"`
	GithubURL   sql.NullString `db:"github_url"`
	Featured    bool           `db:"featured"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r projectRow) toModel() model.Project {
	return model.Project{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Thumbnail:   r.Thumbnail,
		Tags:        []string(r.Tags),
		LiveURL:     nullStringPtr(r.LiveURL),
		GithubURL:   nullStringPtr(r.GithubURL),
		Featured:    r.Featured,
		CreatedAt:   r.CreatedAt,
	}
}

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db *sqlx.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sqlx.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

// List は全プロジェクトをcreated_at降順（同時刻はID降順）で返す。
func (r *PostgresProjectRepo) List(ctx context.Context) ([]model.Project, error) {
	var rows []projectRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, title, description, thumbnail, tags, live_url, github_url, featured, created_at
		 FROM projects
		 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	projects := make([]model.Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, row.toModel())
	}
	return projects, nil
}

// Create はプロジェクトを作成し、採番したIDをpに設定する。
func (r *PostgresProjectRepo) Create(ctx context.Context, p *model.Project) error {
	id := uuid.NewString()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, title, description, thumbnail, tags, live_url, github_url, featured, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, p.Title, p.Description, p.Thumbnail, pq.Array(tags),
		ptrNullString(p.LiveURL), ptrNullString(p.GithubURL), p.Featured, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	p.ID = id
	p.Tags = tags
	p.CreatedAt = createdAt
	return nil
}

// Delete は指定IDのプロジェクトを削除する。
func (r *PostgresProjectRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return model.ErrRecordNotFound
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireAffected(result)
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)
