package redaction

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"dsar/internal/domain"
)

type pattern struct {
	key   string
	runes int
	label Label
	email bool
	// mention patterns only match right after a mention sigil.
	mention bool
	re      *regexp.Regexp
}

type span struct {
	start, end int
	label      Label
}

// Redact returns text with every registered fragment replaced by its label.
//
// Fragments are tried longest first against the original text, and a span
// once claimed cannot be claimed again, so a full name is never split by a
// shorter first-name or surname fragment. Matching is case-insensitive and
// only whole tokens (or whole emails and numbers) are replaced. The subject
// is never registered, so subject mentions pass through untouched.
func (e *Engine) Redact(text string) string {
	if text == "" || len(e.forward) == 0 {
		return text
	}

	claimed := make([]bool, len(text))
	var spans []span

	for _, p := range e.sortedPatterns() {
		for pos := 0; pos < len(text); {
			loc := p.re.FindStringIndex(text[pos:])
			if loc == nil {
				break
			}
			start, end := pos+loc[0], pos+loc[1]
			if end > start && onBoundary(text, start, end, p.email) &&
				(!p.mention || afterSigil(text, start)) && isFree(claimed, start, end) {
				for i := start; i < end; i++ {
					claimed[i] = true
				}
				spans = append(spans, span{start: start, end: end, label: p.label})
				pos = end
				continue
			}
			_, size := utf8.DecodeRuneInString(text[start:])
			pos = start + max(size, 1)
		}
	}

	if len(spans) == 0 {
		return text
	}
	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.start])
		b.WriteString(string(s.label))
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// RedactRecord derives a redacted copy of r. Content, category and every
// structured field value are rewritten; r itself is left untouched.
func (e *Engine) RedactRecord(r domain.Record) domain.Record {
	out := r.Clone()
	out.Content = e.Redact(out.Content)
	out.Category = e.Redact(out.Category)
	for k, v := range out.Fields {
		out.Fields[k] = e.Redact(v)
	}
	return out
}

// RedactProfile derives a redacted copy of a profile. Profile values can
// carry third parties (manager, reviewer, assistant).
func (e *Engine) RedactProfile(p domain.Profile) domain.Profile {
	if p == nil {
		return nil
	}
	out := make(domain.Profile, len(p))
	for i, f := range p {
		out[i] = domain.ProfileField{Name: f.Name, Value: e.Redact(f.Value)}
	}
	return out
}

// DiscoverRecord runs Discover over every text field of r.
func (e *Engine) DiscoverRecord(r domain.Record) int {
	n := e.Discover(r.Content)
	for _, v := range r.Fields {
		n += e.Discover(v)
	}
	return n
}

func (e *Engine) sortedPatterns() []pattern {
	if !e.stale && e.patterns != nil {
		return e.patterns
	}

	patterns := make([]pattern, 0, len(e.forward))
	for k, l := range e.forward {
		raw := e.raw[k]
		_, mention := e.mentionOnly[k]
		re := compilePattern(raw)
		if mention {
			re = regexp.MustCompile(regexp.QuoteMeta(raw))
		}
		patterns = append(patterns, pattern{
			key:     k,
			runes:   utf8.RuneCountInString(k),
			label:   l,
			email:   strings.Contains(k, "@"),
			mention: mention,
			re:      re,
		})
	}
	slices.SortFunc(patterns, func(a, b pattern) int {
		if a.runes != b.runes {
			return b.runes - a.runes
		}
		return strings.Compare(a.key, b.key)
	})

	e.patterns = patterns
	e.stale = false
	return patterns
}

// compilePattern matches raw case-insensitively, tolerating any run of
// whitespace where raw has a single space.
func compilePattern(raw string) *regexp.Regexp {
	parts := strings.Fields(raw)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(parts, `\s+`))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// onBoundary enforces whole-token matching. Edges that are word runes must
// not touch another word rune, and a match may not be the local part or the
// domain of some email. Emails additionally may not be the tail of a longer
// local part or the head of a longer domain.
func onBoundary(text string, start, end int, email bool) bool {
	first, _ := utf8.DecodeRuneInString(text[start:])
	last, _ := utf8.DecodeLastRuneInString(text[:end])

	if start > 0 {
		prev, size := utf8.DecodeLastRuneInString(text[:start])
		if prev == '@' && start-size > 0 {
			// "x@acme" is an email domain; "<@U123>" is a mention.
			beforeAt, _ := utf8.DecodeLastRuneInString(text[:start-size])
			if isWordRune(beforeAt) {
				return false
			}
		}
		if isWordRune(first) && isWordRune(prev) {
			return false
		}
		if email && strings.ContainsRune(".+-%", prev) {
			return false
		}
	}

	if end < len(text) {
		next, size := utf8.DecodeRuneInString(text[end:])
		if next == '@' {
			return false
		}
		if isWordRune(last) && isWordRune(next) {
			return false
		}
		if email && (next == '.' || next == '-') && end+size < len(text) {
			after, _ := utf8.DecodeRuneInString(text[end+size:])
			if isWordRune(after) {
				return false
			}
		}
	}
	return true
}

// afterSigil reports whether the match at start follows "@" or "~", as in
// "<@U1>", "@u1" or "[~u1]".
func afterSigil(text string, start int) bool {
	if start == 0 {
		return false
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:start])
	return prev == '@' || prev == '~'
}

func isFree(claimed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if claimed[i] {
			return false
		}
	}
	return true
}
