package cover

import (
	"strings"
	"unicode"
)

const maxSlugRunes = 200

var slugReplacer = strings.NewReplacer(
	"[", "(", "]", ")",
	"<", "(", ">", ")",
	" ", "_", "-", "_",
	":", "", "\"", "", "/", "", "\\", "",
	"|", "", "?", "", "*", "",
)

// Sanitize turns a title into the file name stem used for cover renditions.
func Sanitize(title string) string {
	slug := slugReplacer.Replace(title)
	slug = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, slug)

	if runes := []rune(slug); len(runes) > maxSlugRunes {
		slug = string(runes[:maxSlugRunes])
	}
	if slug == "" || slug == "." || slug == ".." {
		slug = "_"
	}
	return slug
}
