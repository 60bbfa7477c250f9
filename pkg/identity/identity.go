// Package identity normalizes the ways a person shows up in a vendor export
// (display names, emails, native ids) into comparable tokens.
//
// Two identities are the same person when their normalized emails match, their
// source-native ids match, or their sets of significant name tokens are
// identical. A shared surname alone is never a match.
package identity

import (
	"errors"
	"slices"
	"strings"
	"unicode"
)

// minSignificantTokenLen filters out initials and particles ("J", "de", "Jr").
const minSignificantTokenLen = 3

// ErrEmptyIdentity is returned by Validate when no identifying field is set.
var ErrEmptyIdentity = errors.New("identity requires an id, display name or email")

// Identity is a normalized handle for a person or bot within one source.
type Identity struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	IsBot       bool   `json:"is_bot,omitempty"`
}

// Validate enforces that at least one identifying field is present.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.ID) == "" &&
		strings.TrimSpace(i.DisplayName) == "" &&
		strings.TrimSpace(i.Email) == "" {
		return ErrEmptyIdentity
	}
	return nil
}

// IsZero reports whether no identifying field is set.
func (i Identity) IsZero() bool {
	return i.Validate() != nil
}

// String renders the identity for logs and ambiguity reports.
func (i Identity) String() string {
	name := strings.TrimSpace(i.DisplayName)
	if name == "" {
		name = "Unknown"
	}
	switch {
	case i.Email != "":
		return name + " (" + i.Email + ")"
	case i.ID != "":
		return name + " (" + i.ID + ")"
	default:
		return name
	}
}

// NameToken is the comparable form of a display name.
type NameToken struct {
	// Full is the lower-cased name with collapsed whitespace.
	Full string
	// Significant holds the sorted, de-duplicated tokens longer than two runes.
	Significant []string
}

// IsZero reports whether the name had no content at all.
func (t NameToken) IsZero() bool {
	return t.Full == ""
}

// Equal reports whether both tokens carry the same non-empty significant set.
func (t NameToken) Equal(other NameToken) bool {
	if len(t.Significant) == 0 || len(other.Significant) == 0 {
		return false
	}
	return slices.Equal(t.Significant, other.Significant)
}

// NormalizeName lower-cases and trims a display name and splits it into its
// significant tokens. Punctuation separates tokens; apostrophes and hyphens
// inside a token are kept so "O'Neil" and "Smith-Jones" stay whole.
func NormalizeName(raw string) NameToken {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-')
	})
	if len(fields) == 0 {
		return NameToken{}
	}

	seen := make(map[string]struct{}, len(fields))
	significant := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "'-")
		if len([]rune(f)) < minSignificantTokenLen {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		significant = append(significant, f)
	}
	slices.Sort(significant)

	return NameToken{
		Full:        CollapseSpace(strings.ToLower(raw)),
		Significant: significant,
	}
}

// NormalizeEmail case-folds both the local part and the domain. Surrounding
// angle brackets and a "mailto:" prefix are stripped. Strings without an "@"
// normalize to the empty string.
func NormalizeEmail(raw string) string {
	e := strings.TrimSpace(raw)
	e = strings.TrimPrefix(strings.TrimSuffix(e, ">"), "<")
	e = strings.ToLower(e)
	e = strings.TrimPrefix(e, "mailto:")
	at := strings.LastIndexByte(e, '@')
	if at <= 0 || at == len(e)-1 {
		return ""
	}
	return e
}

// NormalizeID trims a source-native id. Ids are compared case-sensitively
// because several vendors (Slack, Salesforce) use case-significant ids.
func NormalizeID(raw string) string {
	return strings.TrimSpace(raw)
}

// CollapseSpace trims s and replaces internal whitespace runs with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SamePerson applies the matching rule: email, then id, then the full set of
// significant name tokens.
func SamePerson(a, b Identity) bool {
	if ea, eb := NormalizeEmail(a.Email), NormalizeEmail(b.Email); ea != "" && ea == eb {
		return true
	}
	if ia, ib := NormalizeID(a.ID), NormalizeID(b.ID); ia != "" && ia == ib {
		return true
	}
	return NormalizeName(a.DisplayName).Equal(NormalizeName(b.DisplayName))
}
