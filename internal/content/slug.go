package content

import (
	"strings"
	"unicode"
)

// Slugify はタイトルからURL用のslugを生成する。
// ASCII英数字以外は区切りとしてハイフンにまとめ、前後のハイフンを除去する。
func Slugify(title string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(title) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
