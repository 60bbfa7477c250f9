package domain

import (
	"time"

	"dsar/pkg/identity"
)

// Export is the canonical shape every source adapter produces. Subject is
// already resolved by the adapter; Identities lists every person or bot the
// export mentions, the subject included.
type Export struct {
	Vendor      string
	ExportFile  string
	Subject     identity.Identity
	Profile     Profile
	Memberships []string
	Identities  []identity.Identity
	Records     []Record
}

// SubjectInfo is the subject snapshot shipped inside a report.
type SubjectInfo struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// SourceReport is the redacted output of one (subject, source) run. It is
// written once and never mutated. RedactionKeyID references the internal key
// without carrying any of its content.
type SourceReport struct {
	Vendor         string         `json:"vendor"`
	Subject        SubjectInfo    `json:"data_subject"`
	RunID          string         `json:"run_id"`
	Generated      time.Time      `json:"generated"`
	ExportFile     string         `json:"export_file,omitempty"`
	Profile        Profile        `json:"profile"`
	Memberships    []string       `json:"memberships,omitempty"`
	Records        []Record       `json:"records"`
	RecordCount    int            `json:"record_count"`
	RedactionStats map[string]int `json:"redaction_stats"`
	RedactionKeyID string         `json:"redaction_key_id"`
}
