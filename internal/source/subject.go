package source

import (
	"fmt"
	"slices"

	"dsar/pkg/identity"
)

// ResolveSubject picks the one candidate the query designates.
//
// A candidate whose email equals the query email wins outright. Otherwise a
// candidate matches when its significant name tokens include all of the
// query's, so "Jane Doe" finds "Jane Mary Doe" but never "Jane Smith". No
// match is ErrSubjectNotFound; several matches that the email cannot
// separate are an *AmbiguousSubjectError.
func ResolveSubject(q SubjectQuery, candidates []identity.Identity) (identity.Identity, error) {
	if err := q.Validate(); err != nil {
		return identity.Identity{}, err
	}

	email := identity.NormalizeEmail(q.Email)
	if email != "" {
		byEmail := dedupe(filter(candidates, func(c identity.Identity) bool {
			return identity.NormalizeEmail(c.Email) == email
		}))
		if len(byEmail) == 1 {
			return byEmail[0], nil
		}
		if len(byEmail) > 1 {
			return identity.Identity{}, &AmbiguousSubjectError{Query: q, Candidates: byEmail}
		}
	}

	want := identity.NormalizeName(q.Name)
	byName := dedupe(filter(candidates, func(c identity.Identity) bool {
		return nameCovers(identity.NormalizeName(c.DisplayName), want)
	}))

	switch len(byName) {
	case 0:
		return identity.Identity{}, fmt.Errorf("%w: %q", ErrSubjectNotFound, q.Name)
	case 1:
		return byName[0], nil
	default:
		return identity.Identity{}, &AmbiguousSubjectError{Query: q, Candidates: byName}
	}
}

// nameCovers reports whether have contains every significant token of want.
// A query made only of short tokens falls back to comparing full names.
func nameCovers(have, want identity.NameToken) bool {
	if len(want.Significant) == 0 {
		return want.Full != "" && have.Full == want.Full
	}
	for _, tok := range want.Significant {
		if !slices.Contains(have.Significant, tok) {
			return false
		}
	}
	return true
}

func filter(in []identity.Identity, keep func(identity.Identity) bool) []identity.Identity {
	var out []identity.Identity
	for _, c := range in {
		if !c.IsBot && keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// dedupe collapses repeated sightings of the same account.
func dedupe(in []identity.Identity) []identity.Identity {
	var out []identity.Identity
	for _, c := range in {
		if !slices.ContainsFunc(out, func(o identity.Identity) bool {
			return c.ID != "" && o.ID == c.ID
		}) {
			out = append(out, c)
		}
	}
	return out
}
