// Package redaction assigns stable placeholder labels to every third party in
// one source export and substitutes them into arbitrary text.
//
// An Engine is scoped to exactly one (subject, source) run. It is not safe for
// concurrent use and must never be shared between runs: each run builds its
// own engine, so labels are consistent within a source and independent across
// sources.
package redaction

import (
	"log/slog"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"dsar/pkg/identity"
)

const (
	// minPatternRunes keeps very short fragments (initials, "Al") out of the
	// substitution table, where they would match inside unrelated text.
	minPatternRunes = 3
	// minPhoneDigits rejects extensions and short codes.
	minPhoneDigits = 7
)

type entry struct {
	label    Label
	category Category
	original string
	aliases  []string
	id       string
	email    string
}

// Engine holds the redaction map for one (subject, source) run.
type Engine struct {
	subjectName   identity.NameToken
	subjectEmail  string
	subjectID     string
	subjectPhones map[string]struct{}

	counters Stats
	entries  map[Label]*entry
	order    []Label

	// forward maps a lower-cased text fragment to its label; raw keeps the
	// fragment as first seen so patterns are compiled from real text.
	forward map[string]Label
	raw     map[string]string
	// mentionOnly holds forward keys (short or numeric ids) that are only
	// substituted right after a mention sigil such as "<@" or "[~".
	mentionOnly map[string]struct{}

	byID    map[string]Label
	byEmail map[string]Label
	byName  map[string]Label
	byPhone map[string]Label

	detectors []Detector
	logger    *slog.Logger

	patterns []pattern
	stale    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for allocation debug output. Labels and
// categories are logged; original values never are.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDetectors replaces the default email and phone detectors used by
// Discover.
func WithDetectors(detectors ...Detector) Option {
	return func(e *Engine) {
		e.detectors = detectors
	}
}

// WithSubjectPhones marks phone numbers that belong to the subject so
// Discover and RegisterPhone never label them.
func WithSubjectPhones(phones ...string) Option {
	return func(e *Engine) {
		for _, p := range phones {
			if d := phoneDigits(p); len(d) >= minPhoneDigits {
				e.subjectPhones[d] = struct{}{}
			}
		}
	}
}

// NewEngine builds an engine protecting subject. The subject is resolved
// before construction and never changes afterwards.
func NewEngine(subject identity.Identity, opts ...Option) *Engine {
	e := &Engine{
		subjectName:   identity.NormalizeName(subject.DisplayName),
		subjectEmail:  identity.NormalizeEmail(subject.Email),
		subjectID:     identity.NormalizeID(subject.ID),
		subjectPhones: make(map[string]struct{}),
		counters:      newStats(),
		entries:       make(map[Label]*entry),
		forward:       make(map[string]Label),
		raw:           make(map[string]string),
		mentionOnly:   make(map[string]struct{}),
		byID:          make(map[string]Label),
		byEmail:       make(map[string]Label),
		byName:        make(map[string]Label),
		byPhone:       make(map[string]Label),
		detectors:     DefaultDetectors(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsSubject reports whether any supplied field matches the subject. With
// every field empty it reports false: nobody is treated as the subject by
// omission.
func (e *Engine) IsSubject(name, email, id string) bool {
	if strings.TrimSpace(name) == "" && strings.TrimSpace(email) == "" && strings.TrimSpace(id) == "" {
		return false
	}
	if n := identity.NormalizeEmail(email); n != "" && n == e.subjectEmail {
		return true
	}
	if n := identity.NormalizeID(id); n != "" && n == e.subjectID {
		return true
	}
	return identity.NormalizeName(name).Equal(e.subjectName)
}

// RegisterIdentity labels a system identity. It returns false, and records
// nothing, when the identity is the subject. Repeated registrations of the
// same person return the first label: by id first, then by normalized email,
// then by normalized name when neither side carries a conflicting id or email.
func (e *Engine) RegisterIdentity(id, name, email string, isBot bool) (Label, bool) {
	id = identity.NormalizeID(id)
	name = identity.CollapseSpace(name)
	normEmail := identity.NormalizeEmail(email)

	if e.IsSubject(name, normEmail, id) {
		return "", false
	}
	if id == "" && name == "" && normEmail == "" {
		return "", false
	}

	if id != "" {
		if l, ok := e.byID[id]; ok {
			e.attach(e.entries[l], id, name, normEmail)
			return l, true
		}
	}

	if ent := e.findCompatible(id, name, normEmail, isBot); ent != nil {
		e.attach(ent, id, name, normEmail)
		return ent.label, true
	}

	category := CategoryUser
	if isBot {
		category = CategoryBot
	}
	original := firstNonEmpty(name, normEmail, id)
	ent := e.allocate(category, original)
	e.attach(ent, id, name, normEmail)
	return ent.label, true
}

// findCompatible looks for an already-registered person this identity is a
// different representation of. Two ids that differ always mean two people,
// whatever their names say.
func (e *Engine) findCompatible(id, name, normEmail string, isBot bool) *entry {
	compatible := func(ent *entry) bool {
		if !ent.category.isPerson() || (ent.category == CategoryBot) != isBot {
			return false
		}
		return id == "" || ent.id == "" || ent.id == id
	}

	if normEmail != "" {
		if l, ok := e.byEmail[normEmail]; ok {
			if ent := e.entries[l]; compatible(ent) {
				return ent
			}
		}
		return nil
	}

	if key := nameKey(name); key != "" {
		if l, ok := e.byName[key]; ok {
			if ent := e.entries[l]; compatible(ent) {
				return ent
			}
		}
	}
	return nil
}

// RegisterExternalName labels a free-text name with no system identity. A
// name that already belongs to a registered person reuses that label.
func (e *Engine) RegisterExternalName(name string) (Label, bool) {
	name = identity.CollapseSpace(name)
	if utf8.RuneCountInString(name) < minPatternRunes {
		return "", false
	}
	if e.IsSubject(name, "", "") || e.isSubjectNamePart(name) {
		return "", false
	}
	if l, ok := e.forward[fragmentKey(name)]; ok {
		return l, true
	}
	key := nameKey(name)
	if l, ok := e.byName[key]; ok && key != "" {
		e.bind(e.entries[l], name, true)
		return l, true
	}

	ent := e.allocate(CategoryExternal, name)
	e.bind(ent, name, true)
	e.bindNameParts(ent, name)
	if key != "" {
		e.byName[key] = ent.label
	}
	return ent.label, true
}

// RegisterEmail labels a standalone email address. The subject's email is
// refused; an email already carried by a registered identity reuses its label.
func (e *Engine) RegisterEmail(email string) (Label, bool) {
	n := identity.NormalizeEmail(email)
	if n == "" || n == e.subjectEmail {
		return "", false
	}
	if l, ok := e.byEmail[n]; ok {
		return l, true
	}

	ent := e.allocate(CategoryEmail, n)
	ent.email = n
	e.byEmail[n] = ent.label
	e.bind(ent, n, true)
	return ent.label, true
}

// RegisterPhone labels a phone number. Numbers with the same digits share a
// label whatever their formatting; every observed formatting is substituted.
func (e *Engine) RegisterPhone(phone string) (Label, bool) {
	phone = identity.CollapseSpace(phone)
	digits := phoneDigits(phone)
	if len(digits) < minPhoneDigits {
		return "", false
	}
	if _, ok := e.subjectPhones[digits]; ok {
		return "", false
	}
	if l, ok := e.byPhone[digits]; ok {
		e.bind(e.entries[l], phone, true)
		return l, true
	}

	ent := e.allocate(CategoryPhone, phone)
	e.byPhone[digits] = ent.label
	e.bind(ent, phone, true)
	return ent.label, true
}

// RegisterID labels a standalone identifier such as an account or employee
// number. An id already registered for an identity reuses that label. Ids
// shorter than three runes are only substituted in mention context.
func (e *Engine) RegisterID(value string) (Label, bool) {
	value = identity.NormalizeID(value)
	if value == "" || value == e.subjectID {
		return "", false
	}
	if l, ok := e.byID[value]; ok {
		return l, true
	}

	ent := e.allocate(CategoryID, value)
	ent.id = value
	e.byID[value] = ent.label
	if utf8.RuneCountInString(value) >= minPatternRunes {
		e.bind(ent, value, true)
	} else {
		e.bindMention(ent, value)
	}
	return ent.label, true
}

// Discover runs the configured detectors over text and registers whatever
// they find. It returns how many new labels were allocated.
func (e *Engine) Discover(text string) int {
	if text == "" || len(e.detectors) == 0 {
		return 0
	}
	before := len(e.order)
	for _, d := range e.detectors {
		for _, match := range d.Find(text) {
			switch d.Category() {
			case CategoryEmail:
				e.RegisterEmail(match)
			case CategoryPhone:
				e.RegisterPhone(match)
			case CategoryID:
				e.RegisterID(match)
			default:
				e.RegisterExternalName(match)
			}
		}
	}
	return len(e.order) - before
}

// Lookup returns the label a text fragment is substituted with.
func (e *Engine) Lookup(value string) (Label, bool) {
	l, ok := e.forward[fragmentKey(value)]
	return l, ok
}

// Key snapshots the reverse map, in allocation order.
func (e *Engine) Key() Key {
	key := make(Key, 0, len(e.order))
	for _, l := range e.order {
		ent := e.entries[l]
		key = append(key, Entry{
			Label:         ent.label,
			OriginalValue: ent.original,
			EntityType:    ent.category,
			Aliases:       append([]string(nil), ent.aliases...),
		})
	}
	return key
}

// Stats returns the number of labels allocated per category.
func (e *Engine) Stats() Stats {
	return e.counters.Clone()
}

// Len is the number of distinct labels allocated.
func (e *Engine) Len() int {
	return len(e.order)
}

func (e *Engine) allocate(category Category, original string) *entry {
	e.counters[category]++
	ent := &entry{
		label:    NewLabel(category, e.counters[category]),
		category: category,
		original: original,
	}
	e.entries[ent.label] = ent
	e.order = append(e.order, ent.label)
	if e.logger != nil {
		e.logger.Debug("redaction label allocated",
			"label", ent.label.String(),
			"category", string(category),
		)
	}
	return ent
}

// attach binds every identifying field of a person to its label and fills
// the lookup indexes. Fields already bound to another label keep that label.
func (e *Engine) attach(ent *entry, id, name, normEmail string) {
	if id != "" {
		if _, ok := e.byID[id]; !ok {
			e.byID[id] = ent.label
		}
		if ent.id == "" {
			ent.id = id
		}
		if isTextualID(id) {
			e.bind(ent, id, true)
		} else {
			e.bindMention(ent, id)
		}
	}
	if name != "" {
		if key := nameKey(name); key != "" {
			if _, ok := e.byName[key]; !ok {
				e.byName[key] = ent.label
			}
		}
		e.bind(ent, name, utf8.RuneCountInString(name) >= minPatternRunes)
		e.bindNameParts(ent, name)
	}
	if normEmail != "" {
		if owner, ok := e.byEmail[normEmail]; !ok {
			e.byEmail[normEmail] = ent.label
		} else if owner != ent.label && e.entries[owner].category == CategoryEmail {
			e.adoptEmail(ent, e.entries[owner], normEmail)
		}
		if ent.email == "" {
			ent.email = normEmail
		}
		e.bind(ent, normEmail, true)
	}
}

// bind records value as a fragment of ent. Textual fragments enter the
// substitution table; the rest are kept as audit aliases only.
func (e *Engine) bind(ent *entry, value string, textual bool) {
	value = identity.CollapseSpace(value)
	if value == "" {
		return
	}
	k := fragmentKey(value)
	if owner, taken := e.forward[k]; taken && owner != ent.label {
		return
	}
	if _, mention := e.mentionOnly[k]; mention && textual {
		delete(e.mentionOnly, k)
		e.stale = true
	}
	if _, taken := e.forward[k]; !taken && textual {
		e.forward[k] = ent.label
		e.raw[k] = value
		e.stale = true
	}
	if !strings.EqualFold(value, ent.original) && !containsFold(ent.aliases, value) {
		ent.aliases = append(ent.aliases, value)
	}
}

// bindMention records id as a fragment of ent that is only substituted in
// mention context. A fragment another label already owns is left alone.
func (e *Engine) bindMention(ent *entry, id string) {
	k := fragmentKey(id)
	if _, taken := e.forward[k]; !taken {
		e.forward[k] = ent.label
		e.raw[k] = id
		e.mentionOnly[k] = struct{}{}
		e.stale = true
	}
	e.bind(ent, id, false)
}

// bindNameParts binds the first and last tokens of a multi-word name, so
// "thanks Bob" is caught as well as "Bob Leeson". Tokens of the subject's
// own name are never bound, and a token another person already owns keeps
// its first owner.
func (e *Engine) bindNameParts(ent *entry, name string) {
	if strings.ContainsRune(name, '@') {
		return
	}
	parts := nameTokens(name)
	if len(parts) < 2 {
		return
	}
	for _, p := range []string{parts[0], parts[len(parts)-1]} {
		if utf8.RuneCountInString(p) < minPatternRunes || strings.IndexFunc(p, unicode.IsLetter) < 0 {
			continue
		}
		if slices.Contains(e.subjectName.Significant, strings.ToLower(p)) {
			continue
		}
		e.bind(ent, p, true)
	}
}

// adoptEmail moves a standalone email label's address onto the person it
// turned out to belong to. The standalone entry stays in the key so text
// already redacted with it can still be decoded.
func (e *Engine) adoptEmail(person, standalone *entry, normEmail string) {
	if !person.category.isPerson() {
		return
	}
	e.byEmail[normEmail] = person.label
	if k := fragmentKey(normEmail); e.forward[k] == standalone.label {
		e.forward[k] = person.label
		e.stale = true
	}
	if e.logger != nil {
		e.logger.Debug("redaction email adopted",
			"label", person.label.String(),
			"from", standalone.label.String(),
		)
	}
}

// isSubjectNamePart reports whether name is nothing but tokens of the
// subject's own name, such as a bare first name.
func (e *Engine) isSubjectNamePart(name string) bool {
	tok := identity.NormalizeName(name)
	if len(tok.Significant) == 0 {
		return false
	}
	for _, t := range tok.Significant {
		if !slices.Contains(e.subjectName.Significant, t) {
			return false
		}
	}
	return true
}

// nameTokens splits a display name the way identity.NormalizeName does,
// keeping the original case.
func nameTokens(name string) []string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-')
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'-"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func fragmentKey(value string) string {
	return strings.ToLower(identity.CollapseSpace(value))
}

func nameKey(name string) string {
	tok := identity.NormalizeName(name)
	if len(tok.Significant) > 0 {
		return strings.Join(tok.Significant, " ")
	}
	return tok.Full
}

// isTextualID keeps purely numeric and very short ids out of plain-text
// matching: "2" or "1234" in free text is far more often a count than a
// person. Such ids are still substituted in mention context.
func isTextualID(id string) bool {
	if utf8.RuneCountInString(id) < minPatternRunes {
		return false
	}
	return strings.IndexFunc(id, unicode.IsLetter) >= 0
}

func phoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
