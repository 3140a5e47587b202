// Package security はコンテンツの安全性に関する機能を提供する。
//
// ブログ記事の本文は管理画面から入力されたHTMLをそのまま公開ページに描画するため、
// 保存前に許可リストベースのポリシーでサニタイズする。
package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer はHTMLサニタイズのインターフェース。
type HTMLSanitizer interface {
	// Sanitize は記事本文のHTMLから許可されていない要素と属性を除去する。
	Sanitize(rawHTML string) string
	// PlainText はタグをすべて除去したテキストを返す。タイトルや概要に使用する。
	PlainText(raw string) string
}

// httpsOnly はimgのsrcに許可するURLの形式。
var httpsOnly = regexp.MustCompile(`^https://`)

// htmlSanitizer はHTMLSanitizerの実装。
type htmlSanitizer struct {
	article *bluemonday.Policy
	strict  *bluemonday.Policy
}

// NewHTMLSanitizer はHTMLSanitizerを生成する。
// 記事本文のポリシー:
//   - 見出し h2〜h4、段落、リスト、引用、コード、強調、水平線
//   - a: href（http/https）、target="_blank"とrel="noopener noreferrer"を付与
//   - img: src（httpsのみ）とalt
func NewHTMLSanitizer() *htmlSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h2", "h3", "h4",
		"p", "br", "hr", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src").Matching(httpsOnly).OnElements("img")
	p.AllowAttrs("alt").OnElements("img")

	return &htmlSanitizer{
		article: p,
		strict:  bluemonday.StrictPolicy(),
	}
}

// Sanitize は記事本文のHTMLをサニタイズする。
func (s *htmlSanitizer) Sanitize(rawHTML string) string {
	return s.article.Sanitize(rawHTML)
}

// PlainText はタグを除去し前後の空白を取り除いたテキストを返す。
// エスケープされた文字実体は元の文字に戻す。
func (s *htmlSanitizer) PlainText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(raw)))
}

// compile-time interface check
var _ HTMLSanitizer = (*htmlSanitizer)(nil)
