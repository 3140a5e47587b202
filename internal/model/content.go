package model

import "time"

// Project はポートフォリオに掲載するプロジェクトを表す。
type Project struct {
	ID          string
	Title       string
	Description string
	Thumbnail   string
	Tags        []string
	LiveURL     *string
	GithubURL   *string
	Featured    bool
	CreatedAt   time.Time
}

// BlogPost はブログ記事を表す。
type BlogPost struct {
	ID          string
	Title       string
	Excerpt     string
	Content     string // サニタイズ済みHTML
	CoverImage  string
	Tags        []string
	PublishedAt time.Time
	Slug        string
}

// ProjectDraft はID未採番のプロジェクト入力を表す。
// IDと作成日時はストアが採番する。
type ProjectDraft struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Thumbnail   string   `json:"thumbnail" validate:"required"`
	Tags        []string `json:"tags" validate:"dive,required"`
	LiveURL     *string  `json:"liveUrl,omitempty"`
	GithubURL   *string  `json:"githubUrl,omitempty"`
	Featured    bool     `json:"featured"`
}

// BlogPostDraft はID未採番のブログ記事入力を表す。
// PublishedAtが未指定の場合は作成時刻、Slugが未指定の場合はタイトルから生成する。
type BlogPostDraft struct {
	Title       string     `json:"title" validate:"required"`
	Excerpt     string     `json:"excerpt" validate:"required"`
	Content     string     `json:"content" validate:"required"`
	CoverImage  string     `json:"coverImage" validate:"required"`
	Tags        []string   `json:"tags" validate:"dive,required"`
	Slug        string     `json:"slug"`
	PublishedAt *time.Time `json:"-"`
}

// RecordKind はコンテンツレコードの種別を表す。
type RecordKind string

const (
	// RecordKindProject はプロジェクトレコード。
	RecordKindProject RecordKind = "project"
	// RecordKindBlogPost はブログ記事レコード。
	RecordKindBlogPost RecordKind = "blog_post"
)

// ContentRecord はプロジェクトとブログ記事のタグ付きユニオン。
// Kindに対応するフィールドのみが非nilとなる。
// 管理画面はKindで分岐し、フィールドの有無を推測しない。
type ContentRecord struct {
	Kind     RecordKind
	Project  *Project
	BlogPost *BlogPost
}

// ProjectRecord はプロジェクトをContentRecordに包む。
func ProjectRecord(p *Project) ContentRecord {
	return ContentRecord{Kind: RecordKindProject, Project: p}
}

// BlogPostRecord はブログ記事をContentRecordに包む。
func BlogPostRecord(b *BlogPost) ContentRecord {
	return ContentRecord{Kind: RecordKindBlogPost, BlogPost: b}
}

// ID はレコードIDを返す。
func (r ContentRecord) ID() string {
	switch r.Kind {
	case RecordKindProject:
		return r.Project.ID
	case RecordKindBlogPost:
		return r.BlogPost.ID
	}
	return ""
}

// Title はタイトルを返す。
func (r ContentRecord) Title() string {
	switch r.Kind {
	case RecordKindProject:
		return r.Project.Title
	case RecordKindBlogPost:
		return r.BlogPost.Title
	}
	return ""
}

// Summary は一覧表示用の説明文を返す。
// プロジェクトはdescription、ブログ記事はexcerpt。
func (r ContentRecord) Summary() string {
	switch r.Kind {
	case RecordKindProject:
		return r.Project.Description
	case RecordKindBlogPost:
		return r.BlogPost.Excerpt
	}
	return ""
}

// ImageURL は一覧表示用の画像URLを返す。
// プロジェクトはthumbnail、ブログ記事はcoverImage。
func (r ContentRecord) ImageURL() string {
	switch r.Kind {
	case RecordKindProject:
		return r.Project.Thumbnail
	case RecordKindBlogPost:
		return r.BlogPost.CoverImage
	}
	return ""
}

// Timestamp は並び順に使う日時を返す。
func (r ContentRecord) Timestamp() time.Time {
	switch r.Kind {
	case RecordKindProject:
		return r.Project.CreatedAt
	case RecordKindBlogPost:
		return r.BlogPost.PublishedAt
	}
	return time.Time{}
}

// Tags はタグ一覧を返す。
func (r ContentRecord) Tags() []string {
	switch r.Kind {
	case RecordKindProject:
		return r.Project.Tags
	case RecordKindBlogPost:
		return r.BlogPost.Tags
	}
	return nil
}
