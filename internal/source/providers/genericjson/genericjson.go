// Package genericjson is the fallback adapter for JSON exports from vendors
// without a dedicated adapter. It finds person-like objects anywhere in the
// document and treats objects that point at the subject as records.
package genericjson

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strconv"
	"strings"

	"dsar/internal/domain"
	"dsar/internal/source"
	"dsar/pkg/identity"
	platformstrings "dsar/pkg/platform/strings"
)

// Vendor is the display name used in reports.
const Vendor = "Generic_JSON"

const (
	maxContentLen = 1000
	maxKindLen    = 30
)

var (
	nameKeys      = []string{"name", "fullname", "full_name", "displayname", "display_name"}
	usernameKeys  = []string{"username", "user_name"}
	emailKeys     = []string{"email", "emailaddress", "email_address", "mail"}
	firstNameKeys = []string{"firstname", "first_name"}
	lastNameKeys  = []string{"lastname", "last_name"}
	idKeys        = []string{"id", "_id", "userid", "user_id"}
	ownerKeys     = []string{"userid", "user_id", "authorid", "author_id", "ownerid", "owner_id"}
	ownerEmail    = []string{"email", "useremail", "user_email", "authoremail", "author_email"}
	dateKeys      = []string{"date", "created", "createdat", "created_at", "timestamp"}
	kindKeys      = []string{"type", "action", "event"}
	contentKeys   = []string{"content", "text", "body", "message"}
)

// profileFields maps report labels to the keys that may carry them.
var profileFields = []struct {
	label string
	keys  []string
}{
	{"ID", idKeys},
	{"Name", nameKeys},
	{"Email", emailKeys},
	{"Phone", []string{"phone", "phonenumber", "phone_number", "mobile"}},
	{"Title", []string{"title", "jobtitle", "job_title", "role"}},
	{"Company", []string{"company", "organization", "org"}},
	{"Created", []string{"created", "createdat", "created_at", "datecreated"}},
	{"Updated", []string{"updated", "updatedat", "updated_at", "lastmodified"}},
}

// object is a JSON object with its location in the document.
type object struct {
	path   string
	fields map[string]any
}

// get returns the first scalar value under any of keys, compared
// case-insensitively.
func (o object) get(keys ...string) (string, string, bool) {
	for _, want := range keys {
		for k, v := range o.fields {
			if strings.EqualFold(k, want) {
				if s, ok := scalar(v); ok && s != "" {
					return k, s, true
				}
			}
		}
	}
	return "", "", false
}

func (o object) value(keys ...string) string {
	_, v, _ := o.get(keys...)
	return v
}

func (o object) has(keys ...string) bool {
	_, _, ok := o.get(keys...)
	return ok
}

func (o object) personLike() bool {
	_, _, hasName := o.get(append(append([]string{}, nameKeys...), usernameKeys...)...)
	_, _, hasEmail := o.get(emailKeys...)
	_, _, hasFirst := o.get(firstNameKeys...)
	return hasName || hasEmail || hasFirst
}

func (o object) identity() identity.Identity {
	name := o.value(nameKeys...)
	if name == "" {
		name = identity.CollapseSpace(o.value(firstNameKeys...) + " " + o.value(lastNameKeys...))
	}
	if name == "" {
		name = o.value(usernameKeys...)
	}
	return identity.Identity{
		ID:          source.FirstNonEmpty(o.value(idKeys...), o.path, "$"),
		DisplayName: name,
		Email:       o.value(emailKeys...),
	}
}

// Adapter implements source.Adapter for arbitrary JSON.
type Adapter struct {
	logger *slog.Logger
}

// New creates the generic JSON adapter.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{logger: logger}
}

func (a *Adapter) Vendor() string { return Vendor }

func (a *Adapter) Capabilities() source.Capabilities {
	return source.Capabilities{
		Formats:     []source.Format{source.FormatJSON},
		Description: "Any JSON document; people and their records are detected by field names",
	}
}

func (a *Adapter) Extract(ctx context.Context, exportPath string, q source.SubjectQuery) (*domain.Export, error) {
	var doc any
	if err := source.ReadJSONFile(Vendor, exportPath, &doc); err != nil {
		return nil, err
	}

	var objects []object
	walk(doc, "", func(o object) { objects = append(objects, o) })

	var identities []identity.Identity
	people := make(map[string]object)
	for _, o := range objects {
		if !o.personLike() {
			continue
		}
		id := o.identity()
		if id.DisplayName == "" && id.Email == "" {
			continue
		}
		if _, seen := people[id.ID]; seen {
			continue
		}
		// Embedded references ("author": {...}) without their own id repeat
		// a person already seen elsewhere.
		if o.value(idKeys...) == "" && slices.ContainsFunc(identities, func(other identity.Identity) bool {
			return identity.SamePerson(id, other)
		}) {
			continue
		}
		people[id.ID] = o
		identities = append(identities, id)
	}
	if len(identities) == 0 {
		return nil, source.Malformed(Vendor, exportPath, "no person-like objects found", nil)
	}

	subject, err := source.ResolveSubject(q, identities)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "data subject found",
		"vendor", Vendor,
		"subject", subject.String(),
		"path", people[subject.ID].path,
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &domain.Export{
		Vendor:     Vendor,
		ExportFile: path.Base(exportPath),
		Subject:    subject,
		Profile:    buildProfile(people[subject.ID]),
		Identities: identities,
		Records:    records(objects, subject),
	}, nil
}

// records keeps objects owned by the subject (a user or author id or email
// field pointing at them) and objects whose text mentions them.
func records(objects []object, subject identity.Identity) []domain.Record {
	matcher := source.NewMentionMatcher(subject)
	subjectEmail := identity.NormalizeEmail(subject.Email)

	var out []domain.Record
	for _, o := range objects {
		if o.personLike() && !o.has(contentKeys...) && !o.has(kindKeys...) && !o.has(dateKeys...) {
			continue
		}

		var roles []domain.Relationship
		switch {
		case o.value(ownerKeys...) == subject.ID:
			roles = append(roles, domain.RelationshipAuthor)
		case subjectEmail != "" && o.value(idKeys...) != subject.ID &&
			identity.NormalizeEmail(o.value(ownerEmail...)) == subjectEmail:
			roles = append(roles, domain.RelationshipAuthor)
		}

		content := o.value(contentKeys...)
		rels := matcher.Relate(roles, content)
		if rels == nil {
			continue
		}
		if content == "" {
			content = flatten(o.fields)
		}

		r := domain.Record{
			Kind:          platformstrings.Truncate(source.FirstNonEmpty(o.value(kindKeys...), lastSegment(o.path), "record"), maxKindLen),
			Category:      source.FirstNonEmpty(firstSegment(o.path), "general"),
			Content:       platformstrings.Truncate(platformstrings.StripHTML(content), maxContentLen),
			Relationships: rels,
		}
		r.Timestamp, _ = source.ParseTime(o.value(dateKeys...))
		out = append(out, r)
	}
	source.SortRecords(out)
	return out
}

func buildProfile(o object) domain.Profile {
	var p domain.Profile
	used := make(map[string]bool)
	for _, f := range profileFields {
		key, v, ok := o.get(f.keys...)
		if !ok {
			continue
		}
		used[key] = true
		if f.label == "Created" || f.label == "Updated" {
			if t, ok := source.ParseTime(v); ok {
				v = t.Format("2006-01-02 15:04:05")
			}
		}
		p = p.Add(f.label, v)
	}
	for _, k := range slices.Sorted(maps.Keys(o.fields)) {
		if used[k] {
			continue
		}
		if v, ok := scalar(o.fields[k]); ok {
			p = p.Add(k, v)
		}
	}
	return p
}

// walk visits every object in v depth-first, parents before children.
func walk(v any, at string, visit func(object)) {
	switch t := v.(type) {
	case map[string]any:
		visit(object{path: at, fields: t})
		for _, k := range slices.Sorted(maps.Keys(t)) {
			next := k
			if at != "" {
				next = at + "." + k
			}
			walk(t[k], next, visit)
		}
	case []any:
		for i, item := range t {
			walk(item, fmt.Sprintf("%s[%d]", at, i), visit)
		}
	}
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// flatten renders an object's scalar fields as "key: value" lines in key order.
func flatten(fields map[string]any) string {
	var lines []string
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if v, ok := scalar(fields[k]); ok && v != "" {
			lines = append(lines, k+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

func firstSegment(p string) string {
	if i := strings.IndexAny(p, ".["); i >= 0 {
		return p[:i]
	}
	return p
}

func lastSegment(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		p = p[i+1:]
	}
	if i := strings.IndexByte(p, '['); i >= 0 {
		p = p[:i]
	}
	return p
}
