package assembler

import (
	"embed"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"
	"unicode"

	"dsar/internal/domain"
	"dsar/internal/report"
)

//go:embed templates/*.md.tmpl
var templates embed.FS

// CoverLetterRenderer writes the letter that opens the package.
type CoverLetterRenderer interface {
	Render(w io.Writer, letter CoverLetter) error
}

// SourceCount is one system searched.
type SourceCount struct {
	Vendor  string
	Records int
}

// CoverLetter is everything the letter states.
type CoverLetter struct {
	Reference      string
	Date           time.Time
	Subject        domain.SubjectInfo
	RequestDate    time.Time
	Deadline       time.Time
	CompanyName    string
	CompanyAddress string
	DPOName        string
	DPOEmail       string
	Sources        []SourceCount
	Excluded       []Exclusion
	TotalRecords   int
	Documents      []string
	RedactionTotal int
}

// MarkdownCoverLetter renders the embedded Markdown letter.
type MarkdownCoverLetter struct {
	tmpl *template.Template
}

func NewMarkdownCoverLetter() *MarkdownCoverLetter {
	return &MarkdownCoverLetter{
		tmpl: template.Must(template.New("cover_letter.md.tmpl").
			Funcs(report.TemplateFuncs()).
			ParseFS(templates, "templates/cover_letter.md.tmpl")),
	}
}

func (m *MarkdownCoverLetter) Render(w io.Writer, letter CoverLetter) error {
	if err := m.tmpl.Execute(w, letter); err != nil {
		return fmt.Errorf("render cover letter: %w", err)
	}
	return nil
}

// Reference is "DSAR-YYYYMMDD-XXXX" where XXXX is the first two letters of
// the first and last name, or the first four of a single name.
func Reference(subjectName string, date time.Time) string {
	parts := strings.Fields(subjectName)
	var initials string
	switch {
	case len(parts) >= 2:
		initials = prefix(parts[0], 2) + prefix(parts[len(parts)-1], 2)
	case len(parts) == 1:
		initials = prefix(parts[0], 4)
	default:
		initials = "DSAR"
	}
	return fmt.Sprintf("DSAR-%s-%s", date.Format("20060102"), strings.ToUpper(initials))
}

func prefix(s string, n int) string {
	var b strings.Builder
	for _, r := range s {
		if n == 0 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			n--
		}
	}
	return b.String()
}
