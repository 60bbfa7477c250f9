package redaction

// Entry maps one label back to the real-world value it replaced. Aliases
// holds the other fragments (id, email, name variant) bound to the same label.
type Entry struct {
	Label         Label    `json:"label"`
	OriginalValue string   `json:"original_value"`
	EntityType    Category `json:"entity_type"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Key is the internal audit artifact of one engine: every label it
// allocated, in allocation order. It must never reach the data subject.
type Key []Entry

// Decode returns the original value behind a label.
func (k Key) Decode(label Label) (string, bool) {
	for _, e := range k {
		if e.Label == label {
			return e.OriginalValue, true
		}
	}
	return "", false
}

// ByCategory filters the key to one entity type.
func (k Key) ByCategory(c Category) Key {
	var out Key
	for _, e := range k {
		if e.EntityType == c {
			out = append(out, e)
		}
	}
	return out
}
