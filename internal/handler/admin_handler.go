package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/portfolio/internal/content"
	"github.com/hitoshi/portfolio/internal/middleware"
	"github.com/hitoshi/portfolio/internal/model"
	"github.com/hitoshi/portfolio/internal/session"
)

// AdminService は管理画面ハンドラーが必要とするサービスインターフェース。
type AdminService interface {
	ListRecords(ctx context.Context, kind model.RecordKind) ([]model.ContentRecord, error)
	CreateProject(ctx context.Context, draft model.ProjectDraft) (*model.Project, error)
	CreateBlogPost(ctx context.Context, draft model.BlogPostDraft) (*model.BlogPost, error)
	DeleteProject(ctx context.Context, id string) error
	DeleteBlogPost(ctx context.Context, id string) error
}

// AdminHandler は管理画面のHTTPハンドラー。
// すべてのルートはRoute Guardの内側に配置する。
type AdminHandler struct {
	service AdminService
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminService) *AdminHandler {
	return &AdminHandler{service: service}
}

// workspaceTab は管理画面のタブ。
type workspaceTab struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

var workspaceTabs = []workspaceTab{
	{Kind: "projects", Label: "Projects"},
	{Kind: "blog-posts", Label: "Blog Posts"},
}

// Workspace は管理画面の概要（ヘッダーのユーザー情報とタブ）を返す。
// GET /admin
func (h *AdminHandler) Workspace(w http.ResponseWriter, r *http.Request) {
	var id *identityResponse
	if entry := middleware.EntryFromContext(r.Context()); entry != nil {
		id = toIdentityResponse(entry.Context.State().Identity)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity": id,
		"tabs":     workspaceTabs,
	})
}

// ListRecords は種別ごとのレコード一覧を返す。
// GET /api/admin/records/{kind}
func (h *AdminHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "kind")
	kind, ok := content.ParseKind(name)
	if !ok {
		handleServiceError(w, model.NewInvalidKindError(name))
		return
	}

	records, err := h.service.ListRecords(r.Context(), kind)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]recordResponse, len(records))
	for i, rec := range records {
		resp[i] = toRecordResponse(rec, content.ReadingMinutes)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateProject はプロジェクトを作成する。
// POST /api/admin/projects
func (h *AdminHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var draft model.ProjectDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		handleServiceError(w, model.NewInvalidRequestError())
		return
	}

	p, err := h.service.CreateProject(r.Context(), draft)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectResponse(p))
}

// CreateBlogPost はブログ記事を作成する。
// POST /api/admin/blog-posts
func (h *AdminHandler) CreateBlogPost(w http.ResponseWriter, r *http.Request) {
	var draft model.BlogPostDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		handleServiceError(w, model.NewInvalidRequestError())
		return
	}

	b, err := h.service.CreateBlogPost(r.Context(), draft)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBlogPostResponse(b, content.ReadingMinutes(b.Content)))
}

// DeleteProject はプロジェクトを削除する。
// DELETE /api/admin/projects/{id}
func (h *AdminHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBlogPost はブログ記事を削除する。
// DELETE /api/admin/blog-posts/{id}
func (h *AdminHandler) DeleteBlogPost(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBlogPost(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DenyAPI は管理APIのRoute Guard拒否応答。
// 非管理者のサインイン済みユーザーには403、未サインインには401を返す。
func DenyAPI(w http.ResponseWriter, r *http.Request, s session.State) {
	if s.Identity != nil {
		handleServiceError(w, model.NewAccessDeniedError(s.Identity.EmailOrEmpty()))
		return
	}
	handleServiceError(w, model.NewUnauthorizedError())
}
