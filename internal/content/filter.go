package content

import (
	"slices"
	"strings"

	"github.com/hitoshi/portfolio/internal/model"
)

// AllTags はタグ絞り込みを行わないことを示すタグ名。
const AllTags = "All"

// ProjectFilter はプロジェクト一覧の絞り込み条件。
type ProjectFilter struct {
	// Query はタイトルまたは説明文に含まれる文字列（大文字小文字を区別しない）。
	Query string
	// Tag は完全一致で絞り込むタグ。空またはAllTagsの場合は絞り込まない。
	Tag string
	// Limit は返す件数の上限。0以下の場合は制限しない。
	Limit int
}

// FilterProjects は条件に一致するプロジェクトを元の順序のまま返す。
func FilterProjects(projects []model.Project, f ProjectFilter) []model.Project {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	tag := f.Tag
	if tag == AllTags {
		tag = ""
	}

	out := make([]model.Project, 0, len(projects))
	for _, p := range projects {
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Title), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		if tag != "" && !slices.Contains(p.Tags, tag) {
			continue
		}
		out = append(out, p)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// CollectTags はプロジェクトに付与されたタグを初出順に重複なく返す。
func CollectTags(projects []model.Project) []string {
	seen := make(map[string]struct{})
	tags := []string{}
	for _, p := range projects {
		for _, t := range p.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	return tags
}
