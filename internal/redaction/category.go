package redaction

import (
	"fmt"
	"maps"
)

// Category is the entity type a label stands for.
type Category string

const (
	CategoryUser     Category = "user"
	CategoryBot      Category = "bot"
	CategoryExternal Category = "external"
	CategoryEmail    Category = "email"
	CategoryPhone    Category = "phone"
	CategoryID       Category = "id"
)

// Categories lists every category in label-allocation order.
var Categories = []Category{
	CategoryUser,
	CategoryBot,
	CategoryExternal,
	CategoryEmail,
	CategoryPhone,
	CategoryID,
}

var categoryTitles = map[Category]string{
	CategoryUser:     "User",
	CategoryBot:      "Bot",
	CategoryExternal: "External",
	CategoryEmail:    "Email",
	CategoryPhone:    "Phone",
	CategoryID:       "ID",
}

// Title is the human-readable category name used inside labels.
func (c Category) Title() string {
	if t, ok := categoryTitles[c]; ok {
		return t
	}
	return string(c)
}

func (c Category) isPerson() bool {
	return c == CategoryUser || c == CategoryBot
}

// Label is the bracketed placeholder substituted for a third party, e.g.
// "[User 1]".
type Label string

// NewLabel formats the ordinal placeholder for a category.
func NewLabel(c Category, ordinal int) Label {
	return Label(fmt.Sprintf("[%s %d]", c.Title(), ordinal))
}

func (l Label) String() string { return string(l) }

// Stats counts distinct labels allocated per category.
type Stats map[Category]int

func newStats() Stats {
	s := make(Stats, len(Categories))
	for _, c := range Categories {
		s[c] = 0
	}
	return s
}

// Total sums every category.
func (s Stats) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}

// Add accumulates other into s, used when aggregating across sources.
func (s Stats) Add(other Stats) {
	for c, n := range other {
		s[c] += n
	}
}

// Strings converts to the map shape stored in reports.
func (s Stats) Strings() map[string]int {
	out := make(map[string]int, len(s))
	for c, n := range s {
		out[string(c)] = n
	}
	return out
}

// StatsFromStrings is the inverse of Strings; unknown categories are kept.
func StatsFromStrings(m map[string]int) Stats {
	out := newStats()
	for c, n := range m {
		out[Category(c)] += n
	}
	return out
}

// Clone copies the counters.
func (s Stats) Clone() Stats {
	return maps.Clone(s)
}
