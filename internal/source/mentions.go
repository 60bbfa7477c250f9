package source

import (
	"regexp"
	"slices"
	"strings"

	"dsar/internal/domain"
	"dsar/pkg/identity"
)

// MentionMatcher decides how a piece of content relates to the subject when
// the subject did not author it. Access rights cover content that mentions,
// names or emails the subject, not only what they wrote.
type MentionMatcher struct {
	tokens []string
	name   *regexp.Regexp
	email  string
}

// NewMentionMatcher builds a matcher for subject. mentionTokens are the
// vendor's literal mention markup for the subject, e.g. "<@U123>" for Slack
// or "[~557058:abc]" for Jira.
func NewMentionMatcher(subject identity.Identity, mentionTokens ...string) *MentionMatcher {
	m := &MentionMatcher{
		email: identity.NormalizeEmail(subject.Email),
	}
	for _, t := range mentionTokens {
		if t = strings.TrimSpace(t); t != "" {
			m.tokens = append(m.tokens, strings.ToLower(t))
		}
	}
	if name := identity.CollapseSpace(subject.DisplayName); len([]rune(name)) >= 3 {
		parts := strings.Fields(name)
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		m.name = regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}_])` + strings.Join(parts, `\s+`) + `($|[^\p{L}\p{N}_])`)
	}
	return m
}

// Relationships returns the mention relationships found in texts, in a fixed
// order: mentioned, named, email_referenced.
func (m *MentionMatcher) Relationships(texts ...string) []domain.Relationship {
	var mentioned, named, emailed bool
	for _, text := range texts {
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)
		if !mentioned && slices.ContainsFunc(m.tokens, func(t string) bool { return strings.Contains(lower, t) }) {
			mentioned = true
		}
		if !named && m.name != nil && m.name.MatchString(text) {
			named = true
		}
		if !emailed && m.email != "" && strings.Contains(lower, m.email) {
			emailed = true
		}
	}

	var out []domain.Relationship
	if mentioned {
		out = append(out, domain.RelationshipMentioned)
	}
	if named {
		out = append(out, domain.RelationshipNamed)
	}
	if emailed {
		out = append(out, domain.RelationshipEmailReferenced)
	}
	return out
}

// Relate merges roles the adapter already knows (author, requester) with
// mentions found in texts. A nil result means the content is unrelated to
// the subject and must not be disclosed.
func (m *MentionMatcher) Relate(roles []domain.Relationship, texts ...string) []domain.Relationship {
	out := slices.Clone(roles)
	for _, r := range m.Relationships(texts...) {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
