// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/portfolio/internal/middleware"
	"github.com/hitoshi/portfolio/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvにデコードする。未知のフィールドは拒否する。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError && apiErr.Err != nil {
			slog.Error("internal server error", slog.String("error", apiErr.Err.Error()))
		}
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeAccessDenied, model.ErrCodeCSRF:
		return http.StatusForbidden
	case model.ErrCodeInvalidRequest, model.ErrCodeValidationFailed, model.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case model.ErrCodeInvalidKind, model.ErrCodeRecordNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// epochMillis はタイムスタンプをエポックミリ秒に変換する。
func epochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// --- レスポンス型 ---

// projectResponse はプロジェクトのAPIレスポンス。
type projectResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Thumbnail   string   `json:"thumbnail"`
	Tags        []string `json:"tags"`
	LiveURL     *string  `json:"liveUrl,omitempty"`
	GithubURL   *string  `json:"githubUrl,omitempty"`
	Featured    bool     `json:"featured"`
	CreatedAt   int64    `json:"createdAt"`
}

// blogPostResponse はブログ記事のAPIレスポンス。
type blogPostResponse struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Excerpt        string   `json:"excerpt"`
	Content        string   `json:"content"`
	CoverImage     string   `json:"coverImage"`
	Tags           []string `json:"tags"`
	PublishedAt    int64    `json:"publishedAt"`
	Slug           string   `json:"slug"`
	ReadingMinutes int      `json:"readingMinutes"`
}

// recordResponse は管理画面の一覧に表示するレコード。
// kindに対応するproject / blogPostのどちらか一方のみを含む。
type recordResponse struct {
	Kind      model.RecordKind  `json:"kind"`
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Summary   string            `json:"summary"`
	ImageURL  string            `json:"imageUrl"`
	Timestamp int64             `json:"timestamp"`
	Tags      []string          `json:"tags"`
	Project   *projectResponse  `json:"project,omitempty"`
	BlogPost  *blogPostResponse `json:"blogPost,omitempty"`
}

// identityResponse はサインイン中のユーザー情報。
type identityResponse struct {
	UID         string  `json:"uid"`
	Email       *string `json:"email"`
	DisplayName *string `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
	IsAdmin     bool    `json:"isAdmin"`
}

func toProjectResponse(p *model.Project) projectResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return projectResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Thumbnail:   p.Thumbnail,
		Tags:        tags,
		LiveURL:     p.LiveURL,
		GithubURL:   p.GithubURL,
		Featured:    p.Featured,
		CreatedAt:   epochMillis(p.CreatedAt),
	}
}

func toProjectResponses(projects []model.Project) []projectResponse {
	out := make([]projectResponse, len(projects))
	for i := range projects {
		out[i] = toProjectResponse(&projects[i])
	}
	return out
}

func toBlogPostResponse(b *model.BlogPost, readingMinutes int) blogPostResponse {
	tags := b.Tags
	if tags == nil {
		tags = []string{}
	}
	return blogPostResponse{
		ID:             b.ID,
		Title:          b.Title,
		Excerpt:        b.Excerpt,
		Content:        b.Content,
		CoverImage:     b.CoverImage,
		Tags:           tags,
		PublishedAt:    epochMillis(b.PublishedAt),
		Slug:           b.Slug,
		ReadingMinutes: readingMinutes,
	}
}

func toRecordResponse(r model.ContentRecord, readingMinutes func(string) int) recordResponse {
	resp := recordResponse{
		Kind:      r.Kind,
		ID:        r.ID(),
		Title:     r.Title(),
		Summary:   r.Summary(),
		ImageURL:  r.ImageURL(),
		Timestamp: epochMillis(r.Timestamp()),
		Tags:      r.Tags(),
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	switch r.Kind {
	case model.RecordKindProject:
		p := toProjectResponse(r.Project)
		resp.Project = &p
	case model.RecordKindBlogPost:
		b := toBlogPostResponse(r.BlogPost, readingMinutes(r.BlogPost.Content))
		resp.BlogPost = &b
	}
	return resp
}

func toIdentityResponse(id *model.Identity) *identityResponse {
	if id == nil {
		return nil
	}
	return &identityResponse{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
		IsAdmin:     id.IsAdmin,
	}
}
