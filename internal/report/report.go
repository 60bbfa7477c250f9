// Package report writes the per-source deliverables of a run (a Markdown
// document and a JSON export) and the internal redaction key, which lives in
// a separate directory that never reaches the data subject.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dsar/internal/domain"
	"dsar/internal/redaction"
	"dsar/pkg/platform/sentinel"
	platformstrings "dsar/pkg/platform/strings"
)

// TimestampLayout is the timestamp embedded in artifact file names.
const TimestampLayout = "20060102_150405"

// ErrUnsafeKeyDir is returned when the key directory would end up inside the
// deliverable tree, or the other way round.
var ErrUnsafeKeyDir = errors.New("redaction key directory must be separate from the output directory")

// Timestamp formats t for artifact file names.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Artifacts are the paths written for one source report.
type Artifacts struct {
	Markdown string `json:"markdown"`
	JSON     string `json:"json"`
	Key      string `json:"-"`
}

// Renderer turns a report into a human-readable document.
type Renderer interface {
	Render(w io.Writer, rep *domain.SourceReport) error
}

// Writer persists reports and keys.
type Writer struct {
	outputDir string
	keyDir    string
	renderer  Renderer
	logger    *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithRenderer replaces the Markdown renderer.
func WithRenderer(r Renderer) Option {
	return func(w *Writer) { w.renderer = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// NewWriter validates the directory layout and creates both directories.
func NewWriter(outputDir, keyDir string, opts ...Option) (*Writer, error) {
	if err := CheckDirs(outputDir, keyDir); err != nil {
		return nil, err
	}
	w := &Writer{
		outputDir: outputDir,
		keyDir:    keyDir,
		renderer:  NewMarkdownRenderer(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	return w, nil
}

// OutputDir is where deliverables are written.
func (w *Writer) OutputDir() string { return w.outputDir }

// KeyDir is where redaction keys are written.
func (w *Writer) KeyDir() string { return w.keyDir }

// ReadKey loads a key written by this writer.
func (w *Writer) ReadKey(id string) (redaction.Key, error) {
	return ReadKey(w.keyDir, id)
}

// CheckDirs refuses identical or nested output and key directories.
func CheckDirs(outputDir, keyDir string) error {
	if strings.TrimSpace(outputDir) == "" || strings.TrimSpace(keyDir) == "" {
		return fmt.Errorf("output and key directories are required: %w", sentinel.ErrInvalidInput)
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}
	key, err := filepath.Abs(keyDir)
	if err != nil {
		return fmt.Errorf("resolve key dir: %w", err)
	}
	if out == key || Within(key, out) || Within(out, key) {
		return fmt.Errorf("%w: output=%s key=%s", ErrUnsafeKeyDir, out, key)
	}
	return nil
}

// Within reports whether path lies below dir. Both are made absolute first.
func Within(path, dir string) bool {
	path, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// BaseName is "{Vendor}_DSAR_{SafeName}_{timestamp}" without extension.
func BaseName(vendor, subjectName string, generated time.Time) string {
	return fmt.Sprintf("%s_DSAR_%s_%s", platformstrings.SafeFilename(vendor), platformstrings.SafeFilename(subjectName), Timestamp(generated))
}

// KeyID is "{Vendor}_REDACTION_KEY_{SafeName}_{timestamp}". A report's
// RedactionKeyID is its key file name without the extension, so the
// reference resolves with ReadKey.
func KeyID(vendor, subjectName string, generated time.Time) string {
	return fmt.Sprintf("%s_REDACTION_KEY_%s_%s", platformstrings.SafeFilename(vendor), platformstrings.SafeFilename(subjectName), Timestamp(generated))
}

// KeyName is the key file name for a report.
func KeyName(vendor, subjectName string, generated time.Time) string {
	return KeyID(vendor, subjectName, generated) + ".json"
}

// KeyPath resolves a RedactionKeyID inside keyDir. Ids that are not a bare
// file stem are refused.
func KeyPath(keyDir, id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return "", fmt.Errorf("redaction key id %q: %w", id, sentinel.ErrInvalidInput)
	}
	return filepath.Join(keyDir, id+".json"), nil
}

// ReadKey loads the redaction key a report references.
func ReadKey(keyDir, id string) (redaction.Key, error) {
	path, err := KeyPath(keyDir, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("redaction key %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("read redaction key: %w", err)
	}
	var key redaction.Key
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("decode redaction key %s: %w", id, err)
	}
	return key, nil
}

// Write persists the document, the JSON export and the key. The key is
// stored under rep.RedactionKeyID, which must be a bare file stem. Each file
// is written to a temporary name first so a crash never leaves a partial
// artifact that discovery could pick up.
func (w *Writer) Write(ctx context.Context, rep *domain.SourceReport, key redaction.Key) (Artifacts, error) {
	if rep == nil {
		return Artifacts{}, fmt.Errorf("nil report: %w", sentinel.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return Artifacts{}, err
	}

	keyPath, err := KeyPath(w.keyDir, rep.RedactionKeyID)
	if err != nil {
		return Artifacts{}, err
	}
	base := BaseName(rep.Vendor, rep.Subject.Name, rep.Generated)
	arts := Artifacts{
		Markdown: filepath.Join(w.outputDir, base+".md"),
		JSON:     filepath.Join(w.outputDir, base+".json"),
		Key:      keyPath,
	}

	if key == nil {
		key = redaction.Key{}
	}
	if err := writeJSON(arts.Key, key, 0o600); err != nil {
		return Artifacts{}, fmt.Errorf("write redaction key: %w", err)
	}
	if err := writeJSON(arts.JSON, rep, 0o640); err != nil {
		return Artifacts{}, fmt.Errorf("write json export: %w", err)
	}
	if err := writeAtomic(arts.Markdown, 0o640, func(f io.Writer) error {
		return w.renderer.Render(f, rep)
	}); err != nil {
		return Artifacts{}, fmt.Errorf("write report document: %w", err)
	}

	w.logger.InfoContext(ctx, "report written",
		"vendor", rep.Vendor,
		"run_id", rep.RunID,
		"records", rep.RecordCount,
		"document", arts.Markdown,
	)
	return arts, nil
}

// ReadJSON loads a JSON export written by Write.
func ReadJSON(path string) (*domain.SourceReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("report %s: %w", path, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	var rep domain.SourceReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", filepath.Base(path), err)
	}
	if rep.Vendor == "" {
		return nil, fmt.Errorf("report %s has no vendor: %w", filepath.Base(path), sentinel.ErrInvalidInput)
	}
	return &rep, nil
}

func writeJSON(path string, v any, perm os.FileMode) error {
	return writeAtomic(path, perm, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func writeAtomic(path string, perm os.FileMode, fill func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
