// Package format renders chat text for Telegram parse modes.
package format

import (
	"regexp"
	"strings"
)

const mdV2Specials = "_*[]()~`>#+-=|{}.!\\"

var mdV2Re = regexp.MustCompile("([" + regexp.QuoteMeta(mdV2Specials) + "])")

// EscapeMarkdownV2 escapes every MarkdownV2 special character in text.
func EscapeMarkdownV2(text string) string {
	return mdV2Re.ReplaceAllString(text, `\$1`)
}

// BoldToMarkdownV2 converts text using **bold** spans into MarkdownV2,
// escaping everything else. An unpaired marker is kept as literal text.
func BoldToMarkdownV2(text string) string {
	parts := strings.Split(text, "**")
	if len(parts)%2 == 0 {
		// Odd number of markers: treat the last one as literal.
		last := len(parts) - 1
		parts[last-1] = parts[last-1] + "**" + parts[last]
		parts = parts[:last]
	}
	var b strings.Builder
	for i, p := range parts {
		if i%2 == 1 && p != "" {
			b.WriteString("*")
			b.WriteString(EscapeMarkdownV2(p))
			b.WriteString("*")
			continue
		}
		b.WriteString(EscapeMarkdownV2(p))
	}
	return b.String()
}
