// Package content はポートフォリオのコンテンツ（プロジェクト・ブログ記事）を提供する。
//
// 一覧取得は失敗しない。ストアのエラー・タイムアウト・0件の場合は
// 埋め込みのサンプルレコードにフォールバックし、警告ログとメトリクスのみを残す。
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/portfolio/internal/metrics"
	"github.com/hitoshi/portfolio/internal/model"
	"github.com/hitoshi/portfolio/internal/repository"
	"github.com/hitoshi/portfolio/internal/security"
)

// コレクション名。ログとメトリクスのラベルに使用する。
const (
	CollectionProjects  = "projects"
	CollectionBlogPosts = "blogPosts"
)

// DefaultFetchTimeout は一覧取得1回あたりのストア呼び出しの上限時間。
const DefaultFetchTimeout = 5 * time.Second

// maxSlugSuffix はslug重複時に付与する連番の上限。
const maxSlugSuffix = 50

// Service はコンテンツリポジトリのサービス層。
type Service struct {
	projects     repository.ProjectRepository
	blogPosts    repository.BlogPostRepository
	sanitizer    security.HTMLSanitizer
	metrics      metrics.MetricsCollector
	validate     *validator.Validate
	fetchTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewService はServiceを生成する。
// fetchTimeoutが0以下の場合はDefaultFetchTimeoutを使用する。
func NewService(
	projects repository.ProjectRepository,
	blogPosts repository.BlogPostRepository,
	sanitizer security.HTMLSanitizer,
	collector metrics.MetricsCollector,
	fetchTimeout time.Duration,
	logger *slog.Logger,
) *Service {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New()
	// エラーメッセージのフィールド名をJSON名に揃える
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return &Service{
		projects:     projects,
		blogPosts:    blogPosts,
		sanitizer:    sanitizer,
		metrics:      collector,
		validate:     v,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// ListProjects はプロジェクト一覧をcreatedAt降順（同時刻はID降順）で返す。
func (s *Service) ListProjects(ctx context.Context) []model.Project {
	start := time.Now()
	projects, err := fetchWithTimeout(ctx, s.fetchTimeout, s.projects.List)
	s.metrics.RecordContentFetchLatency(CollectionProjects, time.Since(start))

	if err != nil || len(projects) == 0 {
		s.recordFallback(CollectionProjects, err)
		projects = FallbackProjects()
	}
	SortProjects(projects)
	return projects
}

// ListBlogPosts はブログ記事一覧をpublishedAt降順（同時刻はID降順）で返す。
func (s *Service) ListBlogPosts(ctx context.Context) []model.BlogPost {
	start := time.Now()
	posts, err := fetchWithTimeout(ctx, s.fetchTimeout, s.blogPosts.List)
	s.metrics.RecordContentFetchLatency(CollectionBlogPosts, time.Since(start))

	if err != nil || len(posts) == 0 {
		s.recordFallback(CollectionBlogPosts, err)
		posts = FallbackBlogPosts()
	}
	SortBlogPosts(posts)
	return posts
}

func (s *Service) recordFallback(collection string, err error) {
	s.metrics.RecordContentFallback(collection)
	if err != nil {
		s.logger.Warn("content store unavailable, serving fallback records",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Warn("content store is empty, serving fallback records",
		slog.String("collection", collection),
	)
}

// fetchWithTimeout はストア呼び出しをtimeoutで打ち切る。
// ストアがコンテキストを無視してもtimeout後に呼び出し元へ戻る。
func fetchWithTimeout[T any](ctx context.Context, timeout time.Duration, fetch func(context.Context) ([]T, error)) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		records []T
		err     error
	}
	done := make(chan result, 1)
	go func() {
		records, err := fetch(ctx)
		done <- result{records: records, err: err}
	}()

	select {
	case r := <-done:
		return r.records, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("content fetch aborted: %w", ctx.Err())
	}
}

// SortProjects はcreatedAt降順、同時刻はID降順に並べ替える。
func SortProjects(projects []model.Project) {
	slices.SortStableFunc(projects, func(a, b model.Project) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

// SortBlogPosts はpublishedAt降順、同時刻はID降順に並べ替える。
func SortBlogPosts(posts []model.BlogPost) {
	slices.SortStableFunc(posts, func(a, b model.BlogPost) int {
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

// CreateProject はプロジェクトを検証して保存し、採番済みのレコードを返す。
func (s *Service) CreateProject(ctx context.Context, draft model.ProjectDraft) (*model.Project, error) {
	draft.Title = s.sanitizer.PlainText(draft.Title)
	draft.Description = s.sanitizer.PlainText(draft.Description)
	draft.Thumbnail = strings.TrimSpace(draft.Thumbnail)
	draft.Tags = normalizeTags(draft.Tags)
	draft.LiveURL = normalizeOptionalURL(draft.LiveURL)
	draft.GithubURL = normalizeOptionalURL(draft.GithubURL)

	if err := s.validateDraft(draft); err != nil {
		return nil, err
	}
	if err := security.ValidateLink(draft.Thumbnail, true); err != nil {
		return nil, model.NewInvalidURLError("thumbnail", err.Error())
	}
	if draft.LiveURL != nil {
		if err := security.ValidateLink(*draft.LiveURL, false); err != nil {
			return nil, model.NewInvalidURLError("liveUrl", err.Error())
		}
	}
	if draft.GithubURL != nil {
		if err := security.ValidateLink(*draft.GithubURL, false); err != nil {
			return nil, model.NewInvalidURLError("githubUrl", err.Error())
		}
	}

	p := &model.Project{
		Title:       draft.Title,
		Description: draft.Description,
		Thumbnail:   draft.Thumbnail,
		Tags:        draft.Tags,
		LiveURL:     draft.LiveURL,
		GithubURL:   draft.GithubURL,
		Featured:    draft.Featured,
		CreatedAt:   s.timestamp(),
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, model.NewInternalError(fmt.Errorf("failed to store project: %w", err))
	}

	s.logger.Info("project created",
		slog.String("id", p.ID),
		slog.String("title", p.Title),
	)
	return p, nil
}

// CreateBlogPost はブログ記事を検証して保存し、採番済みのレコードを返す。
// 本文HTMLはサニタイズしてから保存する。slug未指定の場合はタイトルから生成する。
func (s *Service) CreateBlogPost(ctx context.Context, draft model.BlogPostDraft) (*model.BlogPost, error) {
	draft.Title = s.sanitizer.PlainText(draft.Title)
	draft.Excerpt = s.sanitizer.PlainText(draft.Excerpt)
	draft.Content = strings.TrimSpace(s.sanitizer.Sanitize(draft.Content))
	draft.CoverImage = strings.TrimSpace(draft.CoverImage)
	draft.Tags = normalizeTags(draft.Tags)

	if err := s.validateDraft(draft); err != nil {
		return nil, err
	}
	if err := security.ValidateLink(draft.CoverImage, true); err != nil {
		return nil, model.NewInvalidURLError("coverImage", err.Error())
	}

	base := Slugify(draft.Slug)
	if base == "" {
		base = Slugify(draft.Title)
	}
	if base == "" {
		return nil, model.NewValidationError("slug", "could not derive a slug from the title")
	}
	slug, err := s.uniqueSlug(ctx, base)
	if err != nil {
		return nil, err
	}

	publishedAt := s.timestamp()
	if draft.PublishedAt != nil {
		publishedAt = draft.PublishedAt.Truncate(time.Microsecond)
	}

	b := &model.BlogPost{
		Title:       draft.Title,
		Excerpt:     draft.Excerpt,
		Content:     draft.Content,
		CoverImage:  draft.CoverImage,
		Tags:        draft.Tags,
		PublishedAt: publishedAt,
		Slug:        slug,
	}
	if err := s.blogPosts.Create(ctx, b); err != nil {
		return nil, model.NewInternalError(fmt.Errorf("failed to store blog post: %w", err))
	}

	s.logger.Info("blog post created",
		slog.String("id", b.ID),
		slog.String("slug", b.Slug),
	)
	return b, nil
}

// uniqueSlug は既存記事と重複しないslugを返す。重複時は"-2"以降の連番を付与する。
func (s *Service) uniqueSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 2; i <= maxSlugSuffix+1; i++ {
		existing, err := s.blogPosts.FindBySlug(ctx, candidate)
		if err != nil {
			return "", model.NewInternalError(fmt.Errorf("failed to check slug: %w", err))
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", model.NewValidationError("slug", "too many posts share this slug")
}

// DeleteProject は指定IDのプロジェクトを削除する。
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	return s.deleteRecord(ctx, model.RecordKindProject, id, s.projects.Delete)
}

// DeleteBlogPost は指定IDのブログ記事を削除する。
func (s *Service) DeleteBlogPost(ctx context.Context, id string) error {
	return s.deleteRecord(ctx, model.RecordKindBlogPost, id, s.blogPosts.Delete)
}

func (s *Service) deleteRecord(ctx context.Context, kind model.RecordKind, id string, del func(context.Context, string) error) error {
	if err := del(ctx, id); err != nil {
		if errors.Is(err, model.ErrRecordNotFound) {
			return model.NewRecordNotFoundError(kind, id)
		}
		return model.NewInternalError(fmt.Errorf("failed to delete %s: %w", kind, err))
	}
	s.logger.Info("content record deleted",
		slog.String("kind", string(kind)),
		slog.String("id", id),
	)
	return nil
}

// ParseKind は管理画面のURLで使う種別名（projects / blog-posts）をRecordKindに変換する。
func ParseKind(name string) (model.RecordKind, bool) {
	switch name {
	case "projects":
		return model.RecordKindProject, true
	case "blog-posts":
		return model.RecordKindBlogPost, true
	}
	return "", false
}

// ListRecords は管理画面に表示するレコード一覧を返す。
// 一覧取得と同じくフォールバックが適用される。
func (s *Service) ListRecords(ctx context.Context, kind model.RecordKind) ([]model.ContentRecord, error) {
	switch kind {
	case model.RecordKindProject:
		projects := s.ListProjects(ctx)
		records := make([]model.ContentRecord, len(projects))
		for i := range projects {
			records[i] = model.ProjectRecord(&projects[i])
		}
		return records, nil
	case model.RecordKindBlogPost:
		posts := s.ListBlogPosts(ctx)
		records := make([]model.ContentRecord, len(posts))
		for i := range posts {
			records[i] = model.BlogPostRecord(&posts[i])
		}
		return records, nil
	}
	return nil, model.NewInvalidKindError(string(kind))
}

// validateDraft はドラフトの必須項目を検証し、最初の違反をAPIErrorとして返す。
func (s *Service) validateDraft(draft any) error {
	err := s.validate.Struct(draft)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(fe.Field(), fmt.Sprintf("failed on '%s' validation", fe.Tag()))
	}
	return model.NewInternalError(fmt.Errorf("failed to validate draft: %w", err))
}

// normalizeTags はタグの前後の空白を除去し、空のタグと重複を取り除く。
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// normalizeOptionalURL は空文字のURLを未指定として扱う。
func normalizeOptionalURL(u *string) *string {
	if u == nil {
		return nil
	}
	v := strings.TrimSpace(*u)
	if v == "" {
		return nil
	}
	return &v
}

// timestamp は保存用の現在時刻を返す。Postgresのtimestamptzに合わせてマイクロ秒に切り捨てる。
func (s *Service) timestamp() time.Time {
	return s.now().Truncate(time.Microsecond)
}
