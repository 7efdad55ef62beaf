// Package sanitize cleans admin and respondent input before it is stored.
package sanitize

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict = bluemonday.StrictPolicy()
	rich   = richPolicy()
)

func richPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Text strips every tag and control character and trims surrounding space.
// The result is plain text, to be escaped again on output.
func Text(s string) string {
	s = html.UnescapeString(strict.Sanitize(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// Line is Text collapsed to a single line.
func Line(s string) string {
	return strings.Join(strings.Fields(Text(s)), " ")
}

// HTML keeps the markup a post editor would allow and drops scripts, event
// handlers and the like.
func HTML(s string) string {
	return strings.TrimSpace(rich.Sanitize(s))
}

// Email lowercases the domain and trims the address.
func Email(s string) string {
	s = strings.TrimSpace(s)
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return s
	}
	return s[:at+1] + strings.ToLower(s[at+1:])
}

// URL accepts http(s), mailto and relative links; anything else becomes empty.
func URL(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(lower, "mailto:"),
		strings.HasPrefix(lower, "/"):
		return s
	}
	return ""
}

// Color accepts #rgb and #rrggbb hex colors.
func Color(s string) string {
	s = strings.TrimSpace(s)
	if len(s) != 4 && len(s) != 7 || s[0] != '#' {
		return ""
	}
	for _, r := range s[1:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return ""
		}
	}
	return strings.ToLower(s)
}
