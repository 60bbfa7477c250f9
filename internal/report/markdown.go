package report

import (
	"embed"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/template"
	"time"

	"dsar/internal/domain"
	"dsar/internal/redaction"
)

// MaxDocumentRecords caps the records listed in the document. The JSON
// export always carries all of them.
const MaxDocumentRecords = 500

//go:embed templates/*.md.tmpl
var templates embed.FS

// MarkdownRenderer renders the per-source report document.
type MarkdownRenderer struct {
	tmpl *template.Template
}

// NewMarkdownRenderer parses the embedded template.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{
		tmpl: template.Must(template.New("source_report.md.tmpl").
			Funcs(TemplateFuncs()).
			ParseFS(templates, "templates/source_report.md.tmpl")),
	}
}

type redactionRow struct {
	Category string
	Count    int
}

type documentView struct {
	*domain.SourceReport
	Shown     []domain.Record
	Truncated bool
	Redaction []redactionRow
	Total     int
}

// Render writes the Markdown document.
func (m *MarkdownRenderer) Render(w io.Writer, rep *domain.SourceReport) error {
	view := documentView{SourceReport: rep, Shown: rep.Records}
	if len(view.Shown) > MaxDocumentRecords {
		view.Shown = view.Shown[:MaxDocumentRecords]
		view.Truncated = true
	}

	stats := redaction.StatsFromStrings(rep.RedactionStats)
	for _, c := range redaction.Categories {
		if n := stats[c]; n > 0 {
			view.Redaction = append(view.Redaction, redactionRow{Category: c.Title(), Count: n})
		}
	}
	view.Total = stats.Total()

	if err := m.tmpl.Execute(w, view); err != nil {
		return fmt.Errorf("render %s report: %w", rep.Vendor, err)
	}
	return nil
}

// TemplateFuncs are shared by the report and cover letter templates.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"cell":     tableCell,
		"date":     formatDate,
		"day":      formatDay,
		"rels":     formatRelationships,
		"fallback": fallback,
		"plural":   plural,
	}
}

// tableCell keeps a value on one Markdown table row.
func tableCell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", "<br>")
	if s == "" {
		return "-"
	}
	return s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format("2 January 2006")
}

func formatRelationships(rels []domain.Relationship) string {
	if len(rels) == 0 {
		return "-"
	}
	parts := make([]string, len(rels))
	for i, r := range rels {
		parts[i] = strings.ReplaceAll(string(r), "_", " ")
	}
	return strings.Join(slices.Compact(parts), ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
