package content

import (
	"strings"

	"golang.org/x/net/html"
)

// wordsPerMinute は読了時間の計算に使う1分あたりの単語数。
const wordsPerMinute = 200

// ReadingMinutes は記事本文HTMLの読了時間（分）を返す。最小値は1。
func ReadingMinutes(contentHTML string) int {
	words := len(strings.Fields(ExtractText(contentHTML)))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

// ExtractText はHTMLからテキストノードのみを連結して返す。
// ブロック要素の境界は空白として扱う。
func ExtractText(contentHTML string) string {
	z := html.NewTokenizer(strings.NewReader(contentHTML))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOFを含め、これ以上読めない時点までのテキストを返す
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if isSkippedElement(string(name)) {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if isSkippedElement(string(name)) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func isSkippedElement(name string) bool {
	return name == "script" || name == "style"
}
