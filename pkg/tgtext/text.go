// Package tgtext has small text helpers for Telegram Markdown messages.
package tgtext

import (
	"strings"
	"time"
)

// markdownSpecials are the characters Telegram's legacy Markdown mode
// treats as formatting. Escaping keeps user-controlled strings (commit
// messages, repo descriptions) from breaking the message layout.
const markdownSpecials = "_*`["

// EscapeMarkdown backslash-escapes Markdown formatting characters.
func EscapeMarkdown(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Truncate returns s cut to at most max runes, ending in "..." when cut.
func Truncate(s string, max int) string {
	if max <= 3 {
		max = 4
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// FirstLine returns s up to the first newline.
func FirstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// FormatTime renders a timestamp the way replies display dates.
// The zero time renders as "Unknown date".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "Unknown date"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
