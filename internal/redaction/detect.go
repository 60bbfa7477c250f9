package redaction

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Detector finds redactable values in free text. Whatever it returns is
// registered under its category with the usual idempotent labeling, so a
// detector only decides what looks like PII, never how it is labelled.
type Detector interface {
	Category() Category
	Find(text string) []string
}

// PatternDetector is a regexp-backed Detector with an optional filter for
// rejecting look-alikes.
type PatternDetector struct {
	category Category
	re       *regexp.Regexp
	accept   func(text string, start, end int) bool
}

// NewPatternDetector compiles expr into a detector for category.
func NewPatternDetector(category Category, expr string) (*PatternDetector, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile %s detector: %w", category, err)
	}
	return &PatternDetector{category: category, re: re}, nil
}

func (d *PatternDetector) Category() Category { return d.category }

// Find returns the distinct matches in order of first appearance.
func (d *PatternDetector) Find(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, loc := range d.re.FindAllStringIndex(text, -1) {
		if d.accept != nil && !d.accept(text, loc[0], loc[1]) {
			continue
		}
		m := strings.TrimSpace(text[loc[0]:loc[1]])
		if _, ok := seen[m]; ok || m == "" {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

var (
	emailExpr = `[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`
	// Phone candidates: optional "+", then digits, spaces, dots, dashes and
	// parentheses, ending on a digit. acceptPhone does the real filtering.
	phoneExpr = `\+?[\d(][\d() .\-]{5,}\d`

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}$`),
		regexp.MustCompile(`^\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}$`),
		regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2} \d{1,2}$`),
	}
)

// EmailDetector finds email addresses.
func EmailDetector() *PatternDetector {
	return &PatternDetector{
		category: CategoryEmail,
		re:       regexp.MustCompile(emailExpr),
	}
}

// PhoneDetector finds phone numbers. It deliberately under-matches: a
// candidate needs 7 to 15 digits, a leading "+" or at least one separator,
// must not read as a date, and must not be dot-only separated (IP addresses,
// version strings, epoch timestamps).
func PhoneDetector() *PatternDetector {
	return &PatternDetector{
		category: CategoryPhone,
		re:       regexp.MustCompile(phoneExpr),
		accept:   acceptPhone,
	}
}

// DefaultDetectors is the detector set engines start with.
func DefaultDetectors() []Detector {
	return []Detector{EmailDetector(), PhoneDetector()}
}

func acceptPhone(text string, start, end int) bool {
	candidate := strings.TrimSpace(text[start:end])

	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(prev) || strings.ContainsRune(".-+/:", prev) {
			return false
		}
	}
	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(next) {
			return false
		}
	}

	digits := phoneDigits(candidate)
	if len(digits) < minPhoneDigits || len(digits) > 15 {
		return false
	}

	separators := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '+' {
			return -1
		}
		return r
	}, candidate)
	if !strings.HasPrefix(candidate, "+") && separators == "" {
		return false
	}
	if separators != "" && strings.Trim(separators, ".") == "" {
		return false
	}

	for _, re := range datePatterns {
		if re.MatchString(candidate) {
			return false
		}
	}
	return true
}
