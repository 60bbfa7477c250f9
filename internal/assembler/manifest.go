package assembler

import (
	"time"

	"dsar/internal/activity"
	"dsar/internal/domain"
)

// Manifest format constants.
const (
	ManifestVersion = "1.0"
	Generator       = "DSAR Toolkit"
	ManifestName    = "manifest.json"
	CoverLetterName = "00_COVER_LETTER.md"
)

// File kinds listed in the manifest.
const (
	KindCoverLetter = "cover_letter"
	KindReport      = "report"
	KindJSONExport  = "json_export"
)

// Manifest is the single record of what the package does and does not hold.
type Manifest struct {
	Package            PackageInfo        `json:"dsar_package"`
	DataSubject        domain.SubjectInfo `json:"data_subject"`
	Summary            Summary            `json:"summary"`
	Files              []FileEntry        `json:"files"`
	Excluded           []Exclusion        `json:"excluded"`
	Redaction          RedactionTotals    `json:"redaction"`
	Compliance         Compliance         `json:"compliance"`
	ProcessingActivity *activity.Summary  `json:"processing_activity,omitempty"`
}

type PackageInfo struct {
	Version   string    `json:"version"`
	Created   time.Time `json:"created"`
	Generator string    `json:"generator"`
	Reference string    `json:"reference"`
}

// Summary counts included sources only.
type Summary struct {
	VendorsSearched int            `json:"vendors_searched"`
	VendorsIncluded int            `json:"vendors_included"`
	TotalRecords    int            `json:"total_records"`
	Vendors         map[string]int `json:"vendors"`
}

// FileEntry describes one archive member. Records is set for reports and
// exports.
type FileEntry struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Vendor  string `json:"vendor,omitempty"`
	Records *int   `json:"records,omitempty"`
	SHA256  string `json:"sha256"`
	Size    int64  `json:"size"`
}

// Exclusion is a source left out of the package and why.
type Exclusion struct {
	Vendor string `json:"vendor"`
	Source string `json:"source,omitempty"`
	Reason string `json:"reason"`
}

// RedactionTotals sums label counts over the included sources.
type RedactionTotals struct {
	ByCategory map[string]int `json:"by_category"`
	Total      int            `json:"total"`
	Scope      string         `json:"label_scope"`
}

type Compliance struct {
	Regulation          string `json:"regulation"`
	Article             string `json:"article"`
	ThirdPartyRedaction string `json:"third_party_redaction"`
}

// LabelScope explains that labels are not shared between sources.
const LabelScope = "per_source: the same label in two reports may refer to different people"

func gdprArticle15() Compliance {
	return Compliance{Regulation: "GDPR", Article: "15", ThirdPartyRedaction: "Article 15(4)"}
}
