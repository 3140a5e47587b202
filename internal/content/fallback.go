package content

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/portfolio/internal/model"
)

//go:embed fallback.yaml
var fallbackYAML []byte

type fallbackProject struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Thumbnail   string    `yaml:"thumbnail"`
	Tags        []string  `yaml:"tags"`
	GithubURL   *string   `yaml:"githubUrl"`
	LiveURL     *string   `yaml:"liveUrl"`
	Featured    bool      `yaml:"featured"`
	CreatedAt   time.Time `yaml:"createdAt"`
}

type fallbackBlogPost struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Excerpt     string    `yaml:"excerpt"`
	Content     string    `yaml:"content"`
	CoverImage  string    `yaml:"coverImage"`
	Tags        []string  `yaml:"tags"`
	PublishedAt time.Time `yaml:"publishedAt"`
	Slug        string    `yaml:"slug"`
}

type fallbackDocument struct {
	Projects  []fallbackProject  `yaml:"projects"`
	BlogPosts []fallbackBlogPost `yaml:"blogPosts"`
}

// fallbackData はパッケージ初期化時に1回だけパースしたサンプルレコード。
// 呼び出し側には毎回ディープコピーを返す。
var fallbackData = mustLoadFallback(fallbackYAML)

func mustLoadFallback(raw []byte) fallbackDocument {
	var doc fallbackDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		panic(fmt.Sprintf("invalid fallback content: %v", err))
	}
	if len(doc.Projects) == 0 || len(doc.BlogPosts) == 0 {
		panic("fallback content must contain at least one project and one blog post")
	}
	return doc
}

// FallbackProjects はサンプルのプロジェクト一覧のコピーを返す。
func FallbackProjects() []model.Project {
	out := make([]model.Project, 0, len(fallbackData.Projects))
	for _, p := range fallbackData.Projects {
		out = append(out, model.Project{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Thumbnail:   p.Thumbnail,
			Tags:        cloneStrings(p.Tags),
			LiveURL:     cloneStringPtr(p.LiveURL),
			GithubURL:   cloneStringPtr(p.GithubURL),
			Featured:    p.Featured,
			CreatedAt:   p.CreatedAt,
		})
	}
	return out
}

// FallbackBlogPosts はサンプルのブログ記事一覧のコピーを返す。
func FallbackBlogPosts() []model.BlogPost {
	out := make([]model.BlogPost, 0, len(fallbackData.BlogPosts))
	for _, b := range fallbackData.BlogPosts {
		out = append(out, model.BlogPost{
			ID:          b.ID,
			Title:       b.Title,
			Excerpt:     b.Excerpt,
			Content:     b.Content,
			CoverImage:  b.CoverImage,
			Tags:        cloneStrings(b.Tags),
			PublishedAt: b.PublishedAt,
			Slug:        b.Slug,
		})
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
