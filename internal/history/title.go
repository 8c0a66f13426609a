package history

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxTitleLen bounds auto-derived conversation titles.
const MaxTitleLen = 60

// DefaultTitle is used when the first message carries no usable text.
const DefaultTitle = "New Conversation"

// DeriveTitle builds a conversation title from the first user message:
// NFC-normalized, whitespace collapsed, truncated at a word boundary.
func DeriveTitle(content string) string {
	fields := strings.Fields(norm.NFC.String(content))
	if len(fields) == 0 {
		return DefaultTitle
	}
	clean := strings.Join(fields, " ")
	if len([]rune(clean)) <= MaxTitleLen {
		return clean
	}

	const ellipsis = "..."
	budget := MaxTitleLen - len(ellipsis)

	var b strings.Builder
	for _, word := range fields {
		add := len([]rune(word))
		if b.Len() > 0 {
			add++ // joining space
		}
		if len([]rune(b.String()))+add > budget {
			break
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(word)
	}
	if b.Len() == 0 {
		// Single word longer than the budget, hard cut.
		runes := []rune(fields[0])
		return string(runes[:budget]) + ellipsis
	}
	return b.String() + ellipsis
}
