// Package assembler combines the per-source reports of one data subject into
// the deliverable package: a zip holding a cover letter, the redacted
// reports, their JSON exports and a manifest. Redaction keys never enter it.
package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"dsar/internal/activity"
	"dsar/internal/domain"
	"dsar/internal/platform/metrics"
	"dsar/internal/redaction"
	"dsar/internal/report"
	"dsar/pkg/platform/sentinel"
	platformstrings "dsar/pkg/platform/strings"
)

// ErrNothingToAssemble is returned when every source was excluded.
var ErrNothingToAssemble = errors.New("no source reports could be included in the package")

// ActivityLog is the part of the activity publisher the assembler uses.
type ActivityLog interface {
	Emit(ctx context.Context, event activity.Event) error
	Summary(ctx context.Context, subjectName string) (activity.Summary, error)
}

// Meta is the cover letter and manifest metadata.
type Meta struct {
	Subject        domain.SubjectInfo
	CompanyName    string
	CompanyAddress string
	DPOName        string
	DPOEmail       string
	RequestDate    time.Time
	// ResponseDays sets the deadline from RequestDate when Deadline is zero.
	ResponseDays int
	Deadline     time.Time
}

// Package is the assembled deliverable. It is not modified after Assemble
// returns.
type Package struct {
	Archive     string
	Reports     []*domain.SourceReport
	CoverLetter []byte
	Manifest    Manifest
}

// Assembler builds packages into outputDir.
type Assembler struct {
	outputDir string
	keyDir    string
	cover     CoverLetterRenderer
	documents report.Renderer
	activity  ActivityLog
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithKeyDir names the redaction key directory. Refs that point inside it are
// excluded.
func WithKeyDir(dir string) Option {
	return func(a *Assembler) { a.keyDir = dir }
}

func WithCoverLetterRenderer(r CoverLetterRenderer) Option {
	return func(a *Assembler) { a.cover = r }
}

// WithDocumentRenderer renders report documents for refs without a Markdown
// file.
func WithDocumentRenderer(r report.Renderer) Option {
	return func(a *Assembler) { a.documents = r }
}

func WithActivity(log ActivityLog) Option {
	return func(a *Assembler) { a.activity = log }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) { a.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// New creates an Assembler writing packages to outputDir.
func New(outputDir string, opts ...Option) *Assembler {
	a := &Assembler{
		outputDir: outputDir,
		cover:     NewMarkdownCoverLetter(),
		documents: report.NewMarkdownRenderer(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// included is one source that made it into the package.
type included struct {
	ref      ReportRef
	report   *domain.SourceReport
	document []byte
	export   []byte
}

// Assemble builds the package from refs. Sources that failed, are missing,
// unreadable or belong to another subject are excluded and listed in the
// manifest; only when none remain does Assemble fail.
func (a *Assembler) Assemble(ctx context.Context, refs []ReportRef, meta Meta) (pkg *Package, err error) {
	if meta.Subject.Name == "" {
		return nil, fmt.Errorf("subject name is required: %w", sentinel.ErrInvalidInput)
	}

	ctx, span := otel.Tracer("dsar/assembler").Start(ctx, "Assemble")
	defer span.End()
	span.SetAttributes(attribute.Int("dsar.refs", len(refs)))

	start := a.now()
	a.emit(ctx, activity.Event{Type: activity.EventPackageCompilationStarted, Timestamp: start.UTC()}, meta)
	defer func() {
		elapsed := a.now().Sub(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.metrics.IncPackages("failed")
			a.emit(ctx, activity.Event{
				Type:             activity.EventPackageCompilationFailed,
				Status:           activity.StatusFailed,
				Error:            err.Error(),
				ExecutionSeconds: elapsed,
			}, meta)
			return
		}
		a.metrics.IncPackages("success")
		a.emit(ctx, activity.Event{
			Type:             activity.EventPackageCompilationComplete,
			Status:           activity.StatusSuccess,
			Records:          pkg.Manifest.Summary.TotalRecords,
			ExecutionSeconds: elapsed,
		}, meta)
	}()

	kept, excluded := a.collect(ctx, refs, meta.Subject)
	for _, ex := range excluded {
		a.logger.WarnContext(ctx, "source excluded from package",
			"vendor", ex.Vendor,
			"reason", ex.Reason,
		)
		a.emit(ctx, activity.Event{Type: activity.EventSourceExcluded, Vendor: ex.Vendor, Reason: ex.Reason}, meta)
	}
	span.SetAttributes(attribute.Int("dsar.included", len(kept)), attribute.Int("dsar.excluded", len(excluded)))
	if len(kept) == 0 {
		return nil, ErrNothingToAssemble
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	created := a.now().UTC()
	manifest := Manifest{
		Package: PackageInfo{
			Version:   ManifestVersion,
			Created:   created,
			Generator: Generator,
			Reference: Reference(meta.Subject.Name, created),
		},
		DataSubject: meta.Subject,
		Summary:     Summary{VendorsSearched: vendorsSearched(kept, excluded), VendorsIncluded: len(kept), Vendors: map[string]int{}},
		Files:       []FileEntry{},
		Excluded:    excluded,
		Compliance:  gdprArticle15(),
	}
	if manifest.Excluded == nil {
		manifest.Excluded = []Exclusion{}
	}

	stats := redaction.Stats{}
	for _, inc := range kept {
		manifest.Summary.Vendors[inc.report.Vendor] = inc.report.RecordCount
		manifest.Summary.TotalRecords += inc.report.RecordCount
		stats.Add(redaction.StatsFromStrings(inc.report.RedactionStats))
	}
	manifest.Redaction = RedactionTotals{ByCategory: stats.Strings(), Total: stats.Total(), Scope: LabelScope}

	if a.activity != nil {
		summary, err := a.activity.Summary(ctx, meta.Subject.Name)
		if err != nil {
			a.logger.WarnContext(ctx, "processing activity unavailable", "error", err)
		} else {
			manifest.ProcessingActivity = &summary
		}
	}

	members := a.members(kept)
	letter, err := a.renderCoverLetter(manifest, kept, members, meta, created)
	if err != nil {
		return nil, err
	}
	members = append([]member{{path: CoverLetterName, kind: KindCoverLetter, data: letter}}, members...)

	archive, manifest, err := writeArchive(a.outputDir, packageName(meta.Subject.Name, created), members, manifest)
	if err != nil {
		return nil, err
	}

	pkg = &Package{Archive: archive, CoverLetter: letter, Manifest: manifest}
	for _, inc := range kept {
		pkg.Reports = append(pkg.Reports, inc.report)
	}
	a.logger.InfoContext(ctx, "package assembled",
		"archive", archive,
		"included", len(kept),
		"excluded", len(excluded),
		"total_records", manifest.Summary.TotalRecords,
	)
	return pkg, nil
}

// vendorsSearched counts distinct vendors. A superseded report is listed in
// Excluded but its vendor is still one source.
func vendorsSearched(kept []included, excluded []Exclusion) int {
	seen := make(map[string]struct{}, len(kept)+len(excluded))
	for _, inc := range kept {
		seen[strings.ToLower(inc.report.Vendor)] = struct{}{}
	}
	for _, ex := range excluded {
		seen[strings.ToLower(ex.Vendor)] = struct{}{}
	}
	return len(seen)
}

// collect loads every ref, newest per vendor, and sorts the survivors by
// vendor. Order of excluded entries follows refs.
func (a *Assembler) collect(ctx context.Context, refs []ReportRef, subject domain.SubjectInfo) ([]included, []Exclusion) {
	var excluded []Exclusion
	byVendor := make(map[string]included)
	for _, ref := range refs {
		if ref.Failure != "" {
			excluded = append(excluded, Exclusion{Vendor: ref.Vendor, Reason: ref.Failure})
			continue
		}
		inc, err := a.load(ref, subject)
		if err != nil {
			excluded = append(excluded, Exclusion{Vendor: ref.Vendor, Source: ref.JSONPath, Reason: err.Error()})
			continue
		}
		if prev, ok := byVendor[inc.report.Vendor]; ok {
			older, newer := prev, inc
			if inc.report.Generated.Before(prev.report.Generated) {
				older, newer = inc, prev
			}
			excluded = append(excluded, Exclusion{Vendor: older.report.Vendor, Source: older.ref.JSONPath, Reason: "superseded by a newer report"})
			inc = newer
		}
		byVendor[inc.report.Vendor] = inc
	}

	kept := make([]included, 0, len(byVendor))
	for _, inc := range byVendor {
		kept = append(kept, inc)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].report.Vendor < kept[j].report.Vendor })
	a.logger.DebugContext(ctx, "reports collected", "included", len(kept), "excluded", len(excluded))
	return kept, excluded
}

func (a *Assembler) load(ref ReportRef, subject domain.SubjectInfo) (included, error) {
	if ref.JSONPath == "" {
		return included{}, errors.New("no report was produced")
	}
	if a.insideKeyDir(ref.JSONPath) || a.insideKeyDir(ref.MarkdownPath) {
		return included{}, errors.New("report path is inside the redaction key directory")
	}
	export, err := os.ReadFile(ref.JSONPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return included{}, errors.New("report file is missing")
		}
		return included{}, fmt.Errorf("report file is unreadable: %v", err)
	}
	rep, err := report.ReadJSON(ref.JSONPath)
	if err != nil {
		return included{}, fmt.Errorf("report is unreadable: %v", err)
	}
	if !sameSubject(rep.Subject, subject) {
		return included{}, fmt.Errorf("report is for a different data subject (%s)", rep.Subject.Name)
	}

	inc := included{ref: ref, report: rep, export: export}
	if ref.MarkdownPath != "" {
		if doc, err := os.ReadFile(ref.MarkdownPath); err == nil {
			inc.document = doc
			return inc, nil
		}
	}
	var buf bytes.Buffer
	if err := a.documents.Render(&buf, rep); err != nil {
		return included{}, fmt.Errorf("report document could not be rendered: %v", err)
	}
	inc.document = buf.Bytes()
	return inc, nil
}

func (a *Assembler) insideKeyDir(path string) bool {
	if a.keyDir == "" || path == "" {
		return false
	}
	return report.Within(path, a.keyDir)
}

func sameSubject(got, want domain.SubjectInfo) bool {
	if want.Email != "" && got.Email != "" {
		return activity.SameSubject(got.Email, want.Email)
	}
	return activity.SameSubject(got.Name, want.Name)
}

func (a *Assembler) members(kept []included) []member {
	var out []member
	for i, inc := range kept {
		vendor := platformstrings.SafeFilename(inc.report.Vendor)
		records := inc.report.RecordCount
		out = append(out,
			member{
				path:    fmt.Sprintf("%02d_%s_DSAR_Report.md", i+1, vendor),
				kind:    KindReport,
				vendor:  inc.report.Vendor,
				records: &records,
				data:    inc.document,
			},
			member{
				path:    fmt.Sprintf("json_exports/%s_export.json", vendor),
				kind:    KindJSONExport,
				vendor:  inc.report.Vendor,
				records: &records,
				data:    inc.export,
			},
		)
	}
	return out
}

func (a *Assembler) renderCoverLetter(m Manifest, kept []included, members []member, meta Meta, created time.Time) ([]byte, error) {
	letter := CoverLetter{
		Reference:      m.Package.Reference,
		Date:           created,
		Subject:        meta.Subject,
		RequestDate:    meta.RequestDate,
		Deadline:       meta.Deadline,
		CompanyName:    meta.CompanyName,
		CompanyAddress: meta.CompanyAddress,
		DPOName:        meta.DPOName,
		DPOEmail:       meta.DPOEmail,
		Excluded:       m.Excluded,
		TotalRecords:   m.Summary.TotalRecords,
		RedactionTotal: m.Redaction.Total,
	}
	if letter.RequestDate.IsZero() {
		letter.RequestDate = created
	}
	if letter.Deadline.IsZero() && meta.ResponseDays > 0 {
		letter.Deadline = letter.RequestDate.AddDate(0, 0, meta.ResponseDays)
	}
	for _, inc := range kept {
		letter.Sources = append(letter.Sources, SourceCount{Vendor: inc.report.Vendor, Records: inc.report.RecordCount})
	}
	for _, mem := range members {
		letter.Documents = append(letter.Documents, mem.path)
	}
	letter.Documents = append(letter.Documents, ManifestName)

	var buf bytes.Buffer
	if err := a.cover.Render(&buf, letter); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *Assembler) emit(ctx context.Context, e activity.Event, meta Meta) {
	if a.activity == nil {
		return
	}
	e.SubjectName = meta.Subject.Name
	e.SubjectEmail = meta.Subject.Email
	if err := a.activity.Emit(ctx, e); err != nil {
		a.logger.WarnContext(ctx, "activity event not recorded", "event", e.Type, "error", err)
	}
}

func packageName(subjectName string, created time.Time) string {
	return fmt.Sprintf("DSAR_%s_%s.zip", platformstrings.SafeFilename(subjectName), report.Timestamp(created))
}
