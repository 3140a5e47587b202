package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/portfolio/internal/content"
	"github.com/hitoshi/portfolio/internal/model"
	"github.com/hitoshi/portfolio/internal/techstack"
)

// maxListLimit はlimitパラメータの上限。
const maxListLimit = 100

// ContentLister は公開ページのコンテンツ取得に必要なサービスインターフェース。
// 一覧取得は失敗しない（フォールバックを返す）。
type ContentLister interface {
	ListProjects(ctx context.Context) []model.Project
	ListBlogPosts(ctx context.Context) []model.BlogPost
}

// TechStackCatalogue は技術スタックの取得に必要なインターフェース。
type TechStackCatalogue interface {
	Categories() []string
	Items(category string) []techstack.Item
	Scores() []techstack.CategoryScore
}

// ContentHandlerConfig は公開コンテンツハンドラーの設定。
type ContentHandlerConfig struct {
	BaseURL         string
	FeedTitle       string
	FeedDescription string
}

// ContentHandler は公開コンテンツのHTTPハンドラー。
type ContentHandler struct {
	content ContentLister
	stack   TechStackCatalogue
	config  ContentHandlerConfig
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(content ContentLister, stack TechStackCatalogue, config ContentHandlerConfig) *ContentHandler {
	return &ContentHandler{content: content, stack: stack, config: config}
}

// ListProjects はプロジェクト一覧を返す。
// GET /api/projects?q=&tag=&limit=
func (h *ContentHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		handleServiceError(w, model.NewValidationError("limit", err.Error()))
		return
	}

	projects := content.FilterProjects(h.content.ListProjects(r.Context()), content.ProjectFilter{
		Query: q.Get("q"),
		Tag:   q.Get("tag"),
		Limit: limit,
	})
	writeJSON(w, http.StatusOK, toProjectResponses(projects))
}

// ListProjectTags はプロジェクトのタグ一覧を返す。先頭は絞り込みなしを示すAll。
// GET /api/projects/tags
func (h *ContentHandler) ListProjectTags(w http.ResponseWriter, r *http.Request) {
	tags := append([]string{content.AllTags}, content.CollectTags(h.content.ListProjects(r.Context()))...)
	writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

// ListBlogPosts はブログ記事一覧を返す。
// GET /api/blog-posts?limit=
func (h *ContentHandler) ListBlogPosts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		handleServiceError(w, model.NewValidationError("limit", err.Error()))
		return
	}

	posts := h.content.ListBlogPosts(r.Context())
	if limit > 0 && limit < len(posts) {
		posts = posts[:limit]
	}
	resp := make([]blogPostResponse, len(posts))
	for i := range posts {
		resp[i] = toBlogPostResponse(&posts[i], content.ReadingMinutes(posts[i].Content))
	}
	writeJSON(w, http.StatusOK, resp)
}

// BlogFeed はブログ記事のRSSフィードを返す。
// GET /blog/feed.xml
func (h *ContentHandler) BlogFeed(w http.ResponseWriter, r *http.Request) {
	body, err := content.BuildFeed(content.FeedConfig{
		Title:       h.config.FeedTitle,
		Description: h.config.FeedDescription,
		BaseURL:     h.config.BaseURL,
	}, h.content.ListBlogPosts(r.Context()))
	if err != nil {
		slog.Error("failed to build blog feed", slog.String("error", err.Error()))
		handleServiceError(w, model.NewInternalError(err))
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// ListTechStack は技術スタックを返す。
// GET /api/tech-stack?category=
func (h *ContentHandler) ListTechStack(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": h.stack.Categories(),
		"items":      h.stack.Items(r.URL.Query().Get("category")),
	})
}

// TechStackScores はカテゴリごとの平均習熟度を返す。
// GET /api/tech-stack/scores
func (h *ContentHandler) TechStackScores(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stack.Scores())
}

// parseLimit はlimitパラメータを解析する。未指定の場合は0（制限なし）。
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, errLimitRange
	}
	return n, nil
}

var errLimitRange = fmt.Errorf("must be an integer between 1 and %d", maxListLimit)
