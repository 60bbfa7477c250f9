// Package httptransport exposes the pipeline over HTTP for operators who
// drive DSAR runs from tooling instead of the CLI. When a token validator is
// configured every /v1 route requires an operator token carrying the route's
// scope.
package httptransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dsar/internal/activity"
	"dsar/internal/assembler"
	"dsar/internal/domain"
	jwttoken "dsar/internal/jwt_token"
	"dsar/internal/pipeline"
	"dsar/internal/platform/metrics"
	"dsar/internal/platform/middleware"
	"dsar/internal/ratelimit"
	"dsar/internal/report"
	"dsar/internal/source"
	"dsar/pkg/platform/httputil"
	"dsar/pkg/platform/sentinel"
)

//go:generate mockgen -source=handler.go -destination=mocks/handler_mocks.go -package=mocks Runner,Compiler,ActivityReader,Vendors

// Runner executes a DSAR run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Compiler assembles a package from reports already on disk.
type Compiler interface {
	Assemble(ctx context.Context, refs []assembler.ReportRef, meta assembler.Meta) (*assembler.Package, error)
}

// ActivityReader reads the processing activity log.
type ActivityReader interface {
	List(ctx context.Context, subjectName string) ([]activity.Event, error)
	Summary(ctx context.Context, subjectName string) (activity.Summary, error)
}

// Vendors lists the registered adapters.
type Vendors interface {
	All() []source.Adapter
}

// Deps are the collaborators a Handler serves.
type Deps struct {
	Runner   Runner
	Compiler Compiler
	Activity ActivityReader
	Vendors  Vendors

	// OutputDir is where compile requests discover reports.
	OutputDir string
	// ExportDir, when set, confines the export paths a run may name.
	ExportDir string
	// Company fills the controller fields of every package's Meta.
	Company assembler.Meta

	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	JWTValidator middleware.JWTValidator

	// Limiter bounds runs and package assembly per caller. Nil disables it.
	Limiter   *ratelimit.Middleware
	RateLimit ratelimit.Limit
}

// Handler serves the DSAR API.
type Handler struct {
	Deps
}

// New creates a Handler.
func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handler{Deps: deps}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", h.Metrics.Handler())

	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.Logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.Logger(h.Logger))
	if h.JWTValidator != nil {
		api.Use(middleware.RequireAuth(h.JWTValidator, h.Logger))
	}
	api.With(h.scope(jwttoken.ScopeRead)).Get("/vendors", h.handleVendors)
	api.With(h.scope(jwttoken.ScopeRead)).Get("/activity", h.handleActivity)
	api.With(h.scope(jwttoken.ScopeRun), h.Limiter.Limit("runs", h.RateLimit)).Post("/runs", h.handleRun)
	api.With(h.scope(jwttoken.ScopeCompile), h.Limiter.Limit("packages", h.RateLimit)).Post("/packages", h.handlePackage)

	r.Mount("/v1", api)
}

// scope requires s on the caller's token. Without a validator the API is
// open and scopes are not checked.
func (h *Handler) scope(s string) func(http.Handler) http.Handler {
	if h.JWTValidator == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RequireScope(s, h.Logger)
}

// NewRouter builds a chi router with the handler registered.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type vendorResponse struct {
	Vendor      string          `json:"vendor"`
	Formats     []source.Format `json:"formats"`
	Description string          `json:"description"`
}

func (h *Handler) handleVendors(w http.ResponseWriter, _ *http.Request) {
	all := h.Vendors.All()
	out := make([]vendorResponse, 0, len(all))
	for _, a := range all {
		caps := a.Capabilities()
		out = append(out, vendorResponse{Vendor: a.Vendor(), Formats: caps.Formats, Description: caps.Description})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// RunRequest is the body of POST /v1/runs.
type RunRequest struct {
	Subject     source.SubjectQuery `json:"subject"`
	Sources     []pipeline.Job      `json:"sources"`
	Redact      []string            `json:"redact,omitempty"`
	Compile     bool                `json:"compile,omitempty"`
	RequestDate string              `json:"request_date,omitempty"`
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var body RunRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		h.Logger.WarnContext(ctx, "invalid run request", "request_id", requestID, "error", err)
		httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeBadRequest, "invalid request body")
		return
	}
	meta, err := h.meta(body.RequestDate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	jobs, err := h.confine(body.Sources)
	if err != nil {
		h.Logger.WarnContext(ctx, "export path rejected",
			"request_id", requestID,
			"operator", middleware.GetOperator(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.Logger.InfoContext(ctx, "run requested",
		"request_id", requestID,
		"operator", middleware.GetOperator(ctx),
		"sources", len(jobs),
		"compile", body.Compile,
	)
	res, err := h.Runner.Run(ctx, pipeline.Request{
		Subject: body.Subject,
		Jobs:    jobs,
		Redact:  body.Redact,
		Compile: body.Compile,
		Meta:    meta,
	})
	if err != nil {
		h.writeRunError(ctx, w, res, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type nothingToAssemble struct {
	Error       string             `json:"error"`
	Description string             `json:"error_description"`
	Outcomes    []pipeline.Outcome `json:"outcomes,omitempty"`
}

func (h *Handler) writeRunError(ctx context.Context, w http.ResponseWriter, res *pipeline.Result, err error) {
	if errors.Is(err, assembler.ErrNothingToAssemble) {
		body := nothingToAssemble{Error: "nothing_to_assemble", Description: err.Error()}
		if res != nil {
			body.Outcomes = res.Outcomes
		}
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, body)
		return
	}
	if status, _ := httputil.Status(err); status == http.StatusInternalServerError {
		h.Logger.ErrorContext(ctx, "run failed", "request_id", middleware.GetRequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}

// PackageRequest is the body of POST /v1/packages.
type PackageRequest struct {
	Subject     source.SubjectQuery `json:"subject"`
	RequestDate string              `json:"request_date,omitempty"`
}

// PackageResponse describes an assembled package.
type PackageResponse struct {
	Archive  string              `json:"archive"`
	Manifest *assembler.Manifest `json:"manifest"`
}

func (h *Handler) handlePackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body PackageRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeBadRequest, "invalid request body")
		return
	}
	if err := body.Subject.Validate(); err != nil {
		httputil.WriteError(w, fmt.Errorf("%v: %w", err, sentinel.ErrInvalidInput))
		return
	}
	meta, err := h.meta(body.RequestDate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	meta.Subject = domain.SubjectInfo{Name: body.Subject.Name, Email: body.Subject.Email}

	refs, err := assembler.Discover(h.OutputDir, body.Subject.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pkg, err := h.Compiler.Assemble(ctx, refs, meta)
	if err != nil {
		h.writeRunError(ctx, w, nil, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, PackageResponse{Archive: pkg.Archive, Manifest: &pkg.Manifest})
}

// ActivityResponse is the body of GET /v1/activity.
type ActivityResponse struct {
	Events  []activity.Event `json:"events"`
	Summary activity.Summary `json:"summary"`
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := strings.TrimSpace(r.URL.Query().Get("subject"))
	if subject == "" {
		httputil.WriteErrorCode(w, http.StatusBadRequest, httputil.CodeBadRequest, "subject query parameter is required")
		return
	}
	events, err := h.Activity.List(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := h.Activity.Summary(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []activity.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, ActivityResponse{Events: events, Summary: summary})
}

func (h *Handler) meta(requestDate string) (assembler.Meta, error) {
	meta := h.Company
	if requestDate == "" {
		return meta, nil
	}
	t, err := time.Parse(time.DateOnly, requestDate)
	if err != nil {
		return meta, fmt.Errorf("request_date must be YYYY-MM-DD: %w", sentinel.ErrInvalidInput)
	}
	meta.RequestDate = t
	return meta, nil
}

// confine resolves relative export paths against ExportDir and refuses any
// path outside it.
func (h *Handler) confine(jobs []pipeline.Job) ([]pipeline.Job, error) {
	if h.ExportDir == "" {
		return jobs, nil
	}
	out := make([]pipeline.Job, len(jobs))
	for i, j := range jobs {
		p := j.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(h.ExportDir, p)
		}
		if !report.Within(p, h.ExportDir) {
			return nil, fmt.Errorf("export %q is outside the export directory: %w", j.Path, sentinel.ErrInvalidInput)
		}
		out[i] = pipeline.Job{Vendor: j.Vendor, Path: filepath.Clean(p)}
	}
	return out, nil
}
