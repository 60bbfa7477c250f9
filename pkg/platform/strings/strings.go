// Package strings provides string manipulation utilities.
package strings

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseList splits a comma-separated operator argument into trimmed, non-empty
// values. Duplicates are dropped case-insensitively; the first spelling wins.
//
// Example:
//
//	ParseList(" Alice Brown, charlie davis,, Alice brown ")
//	// Returns: []string{"Alice Brown", "charlie davis"}
func ParseList(arg string) []string {
	if strings.TrimSpace(arg) == "" {
		return nil
	}
	return DedupeFold(strings.Split(arg, ","))
}

// DedupeFold removes empty values and case-insensitive duplicates, trimming
// whitespace from each element. Order is preserved.
func DedupeFold(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

var underscores = regexp.MustCompile(`_+`)

// SafeFilename turns a person or vendor name into a filesystem-safe token:
// letters, digits, hyphens and underscores survive, spaces become
// underscores and everything else is replaced.
//
// Example:
//
//	SafeFilename("Jane O'Doe (HR)")
//	// Returns: "Jane_O_Doe_HR_"
func SafeFilename(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			return r
		case r == ' ':
			return ' '
		default:
			return '_'
		}
	}, name)
	mapped = strings.ReplaceAll(strings.TrimSpace(mapped), " ", "_")
	return underscores.ReplaceAllString(mapped, "_")
}

// Truncate shortens s to at most max runes, ending with "..." when cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}

var (
	htmlBreak     = regexp.MustCompile(`(?i)<br\s*/?>|<p[^>]*>|</p>`)
	htmlTag       = regexp.MustCompile(`<[^>]+>`)
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
)

// StripHTML converts an HTML fragment (ticket bodies, rich-text comments) to
// plain text. Paragraphs and breaks become newlines; entities are decoded
// after tags are removed so escaped angle brackets survive as text.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = htmlBreak.ReplaceAllString(s, "\n")
	s = htmlTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankLineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
