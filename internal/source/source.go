// Package source defines the boundary between vendor exports and the
// redaction pipeline. Every vendor is one Adapter that turns its export into
// a domain.Export; nothing downstream knows about vendor formats.
package source

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"dsar/internal/domain"
)

// SubjectQuery is what the operator knows about the data subject.
type SubjectQuery struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Validate rejects a query with no name.
func (q SubjectQuery) Validate() error {
	if strings.TrimSpace(q.Name) == "" {
		return fmt.Errorf("data subject name is required")
	}
	return nil
}

// Format is an export container an adapter accepts.
type Format string

const (
	FormatZIP  Format = "zip"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Capabilities describes what an adapter reads.
type Capabilities struct {
	Formats     []Format `json:"formats"`
	Description string   `json:"description"`
}

// Adapter is the universal interface all vendor exports must implement.
type Adapter interface {
	// Vendor returns the display name used in reports and file names.
	Vendor() string

	// Capabilities returns what this adapter reads.
	Capabilities() Capabilities

	// Extract loads the export at path, resolves the subject and returns the
	// canonical export. Records only include content related to the subject.
	Extract(ctx context.Context, path string, q SubjectQuery) (*domain.Export, error)
}

// Registry maintains all registered adapters, keyed case-insensitively by
// vendor name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) error {
	key := strings.ToLower(a.Vendor())
	if _, exists := r.adapters[key]; exists {
		return fmt.Errorf("adapter %s already registered", a.Vendor())
	}
	r.adapters[key] = a
	return nil
}

// Get retrieves an adapter by vendor name.
func (r *Registry) Get(vendor string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(vendor))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, vendor)
	}
	return a, nil
}

// All returns all registered adapters sorted by vendor name.
func (r *Registry) All() []Adapter {
	result := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		result = append(result, a)
	}
	slices.SortFunc(result, func(a, b Adapter) int {
		return strings.Compare(a.Vendor(), b.Vendor())
	})
	return result
}

// Vendors lists registered vendor names, sorted.
func (r *Registry) Vendors() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.Vendor()
	}
	return names
}
