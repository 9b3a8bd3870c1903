// Package mailtext turns decoded message bodies into plain text for extraction.
package mailtext

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptStyle = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blockBreak  = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/tr|/li|/h[1-6]|/table)[^>]*>`)
	anyTag      = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML removes tags with a naive filter and unescapes entities.
// Block-level closers become line breaks so labeled fields stay on their own line.
func StripHTML(s string) string {
	s = scriptStyle.ReplaceAllString(s, " ")
	s = blockBreak.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return Compact(s)
}

// Compact collapses runs of spaces inside each line and drops blank lines
func Compact(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Body picks the text to hand to extraction: stripped HTML when present, plain text otherwise
func Body(htmlBody, plainBody string) string {
	if strings.TrimSpace(htmlBody) != "" {
		return StripHTML(htmlBody)
	}
	return Compact(plainBody)
}
