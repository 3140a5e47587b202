// Package techstack は技術スタックのカタログを提供する。
package techstack

import (
	_ "embed"
	"fmt"
	"math"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var catalogueYAML []byte

// AllCategories はカテゴリ絞り込みを行わないことを示す値。
const AllCategories = "All"

// Item は技術スタックの1項目。Proficiencyは1〜100。
type Item struct {
	Name        string `yaml:"name" json:"name"`
	Icon        string `yaml:"icon" json:"icon"`
	Category    string `yaml:"category" json:"category"`
	Proficiency int    `yaml:"proficiency" json:"proficiency"`
}

// CategoryScore はカテゴリごとの平均習熟度。
type CategoryScore struct {
	Category string `json:"subject"`
	Score    int    `json:"A"`
	FullMark int    `json:"fullMark"`
}

// Catalogue は埋め込みの技術スタック一覧。
type Catalogue struct {
	categories []string
	items      []Item
}

type catalogueDocument struct {
	Categories []string `yaml:"categories"`
	Items      []Item   `yaml:"items"`
}

// Load は埋め込みのカタログを読み込む。
func Load() (*Catalogue, error) {
	return Parse(catalogueYAML)
}

// Parse はYAMLからカタログを生成する。
// 未定義のカテゴリや範囲外の習熟度を含む場合はエラーを返す。
func Parse(raw []byte) (*Catalogue, error) {
	var doc catalogueDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse tech stack catalogue: %w", err)
	}
	for _, it := range doc.Items {
		if !slices.Contains(doc.Categories, it.Category) {
			return nil, fmt.Errorf("tech stack item %q has unknown category %q", it.Name, it.Category)
		}
		if it.Proficiency < 1 || it.Proficiency > 100 {
			return nil, fmt.Errorf("tech stack item %q has proficiency %d outside 1-100", it.Name, it.Proficiency)
		}
	}
	return &Catalogue{categories: doc.Categories, items: doc.Items}, nil
}

// Categories はカテゴリ一覧を定義順に返す。
func (c *Catalogue) Categories() []string {
	return slices.Clone(c.categories)
}

// Items はcategoryに属する項目を返す。空またはAllCategoriesの場合は全件。
func (c *Catalogue) Items(category string) []Item {
	if category == "" || category == AllCategories {
		return slices.Clone(c.items)
	}
	out := []Item{}
	for _, it := range c.items {
		if it.Category == category {
			out = append(out, it)
		}
	}
	return out
}

// Scores はカテゴリごとの平均習熟度（四捨五入）を定義順に返す。
// 項目のないカテゴリは0。
func (c *Catalogue) Scores() []CategoryScore {
	scores := make([]CategoryScore, 0, len(c.categories))
	for _, cat := range c.categories {
		sum, n := 0, 0
		for _, it := range c.items {
			if it.Category == cat {
				sum += it.Proficiency
				n++
			}
		}
		avg := 0
		if n > 0 {
			avg = int(math.Round(float64(sum) / float64(n)))
		}
		scores = append(scores, CategoryScore{Category: cat, Score: avg, FullMark: 100})
	}
	return scores
}
