package domain

import (
	"maps"
	"slices"
	"time"
)

// Relationship describes how the data subject relates to a record. GDPR
// Article 15 covers records the subject authored as well as records that
// merely mention them.
type Relationship string

const (
	RelationshipAuthor          Relationship = "author"
	RelationshipMentioned       Relationship = "mentioned"
	RelationshipNamed           Relationship = "named"
	RelationshipEmailReferenced Relationship = "email_referenced"
	RelationshipParticipant     Relationship = "participant"
	RelationshipRequester       Relationship = "requester"
	RelationshipReporter        Relationship = "reporter"
	RelationshipCreator         Relationship = "creator"
	RelationshipAssignee        Relationship = "assignee"
	RelationshipMember          Relationship = "member"
)

// Record is one activity or content item from a source: a message, ticket,
// deal, row. Redaction never mutates a Record; it derives a copy.
type Record struct {
	Timestamp     time.Time         `json:"timestamp,omitzero"`
	Kind          string            `json:"kind"`
	Category      string            `json:"category,omitempty"`
	Content       string            `json:"content"`
	Fields        map[string]string `json:"fields,omitempty"`
	Relationships []Relationship    `json:"relationships,omitempty"`
}

// Clone returns a deep copy so callers can rewrite text fields safely.
func (r Record) Clone() Record {
	out := r
	if r.Fields != nil {
		out.Fields = maps.Clone(r.Fields)
	}
	if r.Relationships != nil {
		out.Relationships = slices.Clone(r.Relationships)
	}
	return out
}

// HasRelationship reports whether rel was recorded for the subject.
func (r Record) HasRelationship(rel Relationship) bool {
	return slices.Contains(r.Relationships, rel)
}

// ProfileField is one labelled attribute of the subject's account.
type ProfileField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Profile keeps the adapter's field order, which the report preserves.
type Profile []ProfileField

// Get returns the first value recorded under name.
func (p Profile) Get(name string) (string, bool) {
	for _, f := range p {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Add appends a field, skipping empty values.
func (p Profile) Add(name, value string) Profile {
	if value == "" {
		return p
	}
	return append(p, ProfileField{Name: name, Value: value})
}
