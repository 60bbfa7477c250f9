// Package pipeline runs sources through extraction, redaction and report
// writing, in parallel, and assembles the package once every source has
// finished.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"dsar/internal/activity"
	"dsar/internal/assembler"
	"dsar/internal/domain"
	"dsar/internal/platform/metrics"
	"dsar/internal/redaction"
	"dsar/internal/report"
	"dsar/internal/source"
	"dsar/pkg/identity"
	"dsar/pkg/platform/sentinel"
)

// Adapters resolves a vendor name to its adapter.
type Adapters interface {
	Get(vendor string) (source.Adapter, error)
}

// ActivityLog receives run events.
type ActivityLog interface {
	Emit(ctx context.Context, event activity.Event) error
}

// Assembler builds the package after all sources finish.
type Assembler interface {
	Assemble(ctx context.Context, refs []assembler.ReportRef, meta assembler.Meta) (*assembler.Package, error)
}

// ReportWriter persists one source's artifacts.
type ReportWriter interface {
	Write(ctx context.Context, rep *domain.SourceReport, key redaction.Key) (report.Artifacts, error)
}

// Job is one export to process.
type Job struct {
	Vendor string `json:"vendor"`
	Path   string `json:"path"`
}

// Request is one DSAR run over several sources.
type Request struct {
	Subject source.SubjectQuery
	Jobs    []Job
	// Redact lists extra third-party names to label in every source.
	Redact []string
	// Compile assembles the package after the sources finish.
	Compile bool
	Meta    assembler.Meta
}

// Outcome is what happened to one source.
type Outcome struct {
	Vendor     string              `json:"vendor"`
	RunID      string              `json:"run_id"`
	Status     string              `json:"status"`
	Failure    source.FailureKind  `json:"failure,omitempty"`
	Error      string              `json:"error,omitempty"`
	Candidates []identity.Identity `json:"candidates,omitempty"`
	Records    int                 `json:"records"`
	Redaction  map[string]int      `json:"redaction_stats,omitempty"`
	Artifacts  report.Artifacts    `json:"artifacts"`
	Generated  time.Time           `json:"generated"`
	Duration   time.Duration       `json:"duration_ns"`

	err error
}

// Err is the underlying error of a failed outcome.
func (o Outcome) Err() error { return o.err }

// OK reports whether the source produced a report.
func (o Outcome) OK() bool { return o.Status == activity.StatusSuccess }

// Result collects a whole run.
type Result struct {
	Outcomes []Outcome           `json:"outcomes"`
	Package  *assembler.Package  `json:"-"`
	Archive  string              `json:"archive,omitempty"`
	Manifest *assembler.Manifest `json:"manifest,omitempty"`
}

// Failed lists the outcomes that produced no report.
func (r *Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Runner executes requests.
type Runner struct {
	adapters    Adapters
	writer      ReportWriter
	assembler   Assembler
	activity    ActivityLog
	metrics     *metrics.Metrics
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

func WithAssembler(a Assembler) Option {
	return func(r *Runner) { r.assembler = a }
}

func WithActivity(log ActivityLog) Option {
	return func(r *Runner) { r.activity = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithConcurrency bounds how many sources run at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner.
func NewRunner(adapters Adapters, writer ReportWriter, opts ...Option) *Runner {
	r := &Runner{
		adapters:    adapters,
		writer:      writer,
		logger:      slog.Default(),
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every job, waits for all of them, then assembles when asked.
// A failing source never stops the others; Run itself only fails on invalid
// input, cancellation or an assembly error.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Subject.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, sentinel.ErrInvalidInput)
	}
	if len(req.Jobs) == 0 {
		return nil, fmt.Errorf("at least one source is required: %w", sentinel.ErrInvalidInput)
	}
	if req.Compile && r.assembler == nil {
		return nil, fmt.Errorf("package compilation requested without an assembler: %w", sentinel.ErrInvalidInput)
	}
	if vendor, dup := r.duplicateVendor(req.Jobs); dup {
		return nil, fmt.Errorf("vendor %s appears in more than one job: %w", vendor, sentinel.ErrInvalidInput)
	}

	res := &Result{Outcomes: make([]Outcome, len(req.Jobs))}
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, job := range req.Jobs {
		g.Go(func() error {
			res.Outcomes[i] = r.Process(ctx, req.Subject, job, req.Redact)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if !req.Compile {
		return res, nil
	}

	meta := req.Meta
	meta.Subject = domain.SubjectInfo{Name: req.Subject.Name, Email: req.Subject.Email}
	pkg, err := r.assembler.Assemble(ctx, refsFor(res.Outcomes), meta)
	if err != nil {
		return res, fmt.Errorf("assemble package: %w", err)
	}
	res.Package = pkg
	res.Archive = pkg.Archive
	res.Manifest = &pkg.Manifest
	return res, nil
}

// duplicateVendor finds two jobs that resolve to the same vendor. Their
// artifacts would share file names and one export would silently replace
// the other.
func (r *Runner) duplicateVendor(jobs []Job) (string, bool) {
	seen := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		vendor := strings.TrimSpace(job.Vendor)
		if a, err := r.adapters.Get(vendor); err == nil {
			vendor = a.Vendor()
		}
		k := strings.ToLower(vendor)
		if _, ok := seen[k]; ok {
			return vendor, true
		}
		seen[k] = struct{}{}
	}
	return "", false
}

func refsFor(outcomes []Outcome) []assembler.ReportRef {
	refs := make([]assembler.ReportRef, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.OK() {
			refs = append(refs, assembler.Failed(o.Vendor, fmt.Sprintf("%s: %s", o.Failure, o.Error)))
			continue
		}
		refs = append(refs, assembler.ReportRef{
			Vendor:       o.Vendor,
			JSONPath:     o.Artifacts.JSON,
			MarkdownPath: o.Artifacts.Markdown,
			Generated:    o.Generated,
		})
	}
	return refs
}

// Process runs one source: extract, build a fresh engine, register every
// identity and extra name, discover PII, redact, write. Errors end up in the
// Outcome.
func (r *Runner) Process(ctx context.Context, q source.SubjectQuery, job Job, redact []string) Outcome {
	ctx, span := otel.Tracer("dsar/pipeline").Start(ctx, "ProcessSource")
	defer span.End()
	span.SetAttributes(attribute.String("dsar.vendor", job.Vendor))

	start := r.now()
	out := Outcome{Vendor: job.Vendor, RunID: uuid.NewString()}
	logger := r.logger.With("vendor", job.Vendor, "run_id", out.RunID)
	base := activity.Event{RunID: out.RunID, Vendor: job.Vendor, SubjectName: q.Name, SubjectEmail: q.Email}

	r.emit(ctx, logger, base, activity.EventProcessingStarted, func(*activity.Event) {})

	rep, key, err := r.extractAndRedact(ctx, logger, q, job, redact, &out, base)
	if err == nil {
		out.Artifacts, err = r.writer.Write(ctx, rep, key)
	}
	out.Duration = r.now().Sub(start)

	if err != nil {
		out.Status = activity.StatusFailed
		out.Failure = source.Classify(err)
		out.Error = err.Error()
		out.err = err
		var amb *source.AmbiguousSubjectError
		if errors.As(err, &amb) {
			out.Candidates = amb.Candidates
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(out.Failure))
		r.metrics.ObserveRun(out.Vendor, activity.StatusFailed, out.Duration.Seconds(), 0)
		logger.WarnContext(ctx, "source failed", "failure", out.Failure, "error", err)
		r.emit(ctx, logger, base, activity.EventProcessingFailed, func(e *activity.Event) {
			e.Vendor = out.Vendor
			e.Status = activity.StatusFailed
			e.Reason = string(out.Failure)
			e.Error = out.Error
			e.ExecutionSeconds = out.Duration.Seconds()
		})
		return out
	}

	out.Status = activity.StatusSuccess
	out.Records = rep.RecordCount
	out.Redaction = rep.RedactionStats
	out.Generated = rep.Generated
	r.metrics.ObserveRun(out.Vendor, activity.StatusSuccess, out.Duration.Seconds(), out.Records)
	r.metrics.AddLabels(rep.RedactionStats)
	span.SetAttributes(attribute.Int("dsar.records", out.Records))
	logger.InfoContext(ctx, "source processed", "records", out.Records, "labels", len(key))
	r.emit(ctx, logger, base, activity.EventProcessingComplete, func(e *activity.Event) {
		e.Vendor = out.Vendor
		e.Status = activity.StatusSuccess
		e.Records = out.Records
		e.ExecutionSeconds = out.Duration.Seconds()
	})
	return out
}

func (r *Runner) extractAndRedact(ctx context.Context, logger *slog.Logger, q source.SubjectQuery, job Job, redact []string, out *Outcome, base activity.Event) (*domain.SourceReport, redaction.Key, error) {
	adapter, err := r.adapters.Get(job.Vendor)
	if err != nil {
		return nil, nil, err
	}
	out.Vendor = adapter.Vendor()
	base.Vendor = out.Vendor

	exp, err := adapter.Extract(ctx, job.Path, q)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	r.emit(ctx, logger, base, activity.EventDataSubjectFound, func(e *activity.Event) {
		e.Records = len(exp.Records)
	})

	engine := redaction.NewEngine(exp.Subject,
		redaction.WithLogger(logger),
		redaction.WithSubjectPhones(subjectPhones(exp.Profile)...),
	)
	for _, id := range exp.Identities {
		engine.RegisterIdentity(id.ID, id.DisplayName, id.Email, id.IsBot)
	}
	for _, name := range redact {
		if strings.TrimSpace(name) != "" {
			engine.RegisterExternalName(name)
		}
	}
	for _, rec := range exp.Records {
		engine.DiscoverRecord(rec)
	}
	for _, f := range exp.Profile {
		engine.Discover(f.Value)
	}

	generated := r.now().UTC().Truncate(time.Second)
	rep := &domain.SourceReport{
		Vendor:         out.Vendor,
		Subject:        domain.SubjectInfo{Name: q.Name, Email: source.FirstNonEmpty(q.Email, exp.Subject.Email)},
		RunID:          out.RunID,
		Generated:      generated,
		ExportFile:     filepath.Base(source.FirstNonEmpty(exp.ExportFile, job.Path)),
		Profile:        engine.RedactProfile(exp.Profile),
		Records:        make([]domain.Record, 0, len(exp.Records)),
		RedactionKeyID: report.KeyID(out.Vendor, q.Name, generated),
	}
	for _, m := range exp.Memberships {
		rep.Memberships = append(rep.Memberships, engine.Redact(m))
	}
	for _, rec := range exp.Records {
		rep.Records = append(rep.Records, engine.RedactRecord(rec))
	}
	rep.RecordCount = len(rep.Records)
	rep.RedactionStats = engine.Stats().Strings()
	return rep, engine.Key(), nil
}

// subjectPhones picks the subject's own numbers out of their profile.
func subjectPhones(p domain.Profile) []string {
	var phones []string
	for _, f := range p {
		name := strings.ToLower(f.Name)
		if strings.Contains(name, "phone") || strings.Contains(name, "mobile") {
			phones = append(phones, f.Value)
		}
	}
	return phones
}

func (r *Runner) emit(ctx context.Context, logger *slog.Logger, base activity.Event, typ activity.EventType, fill func(*activity.Event)) {
	if r.activity == nil {
		return
	}
	e := base
	e.Type = typ
	fill(&e)
	if err := r.activity.Emit(ctx, e); err != nil {
		logger.WarnContext(ctx, "activity event not recorded", "event", typ, "error", err)
	}
}
