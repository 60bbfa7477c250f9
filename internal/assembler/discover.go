package assembler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dsar/internal/report"
	"dsar/pkg/platform/sentinel"
	platformstrings "dsar/pkg/platform/strings"
)

// ReportRef points at one source's deliverables. A ref with Failure set
// stands for a source whose run failed; it is excluded with that reason.
type ReportRef struct {
	Vendor       string
	JSONPath     string
	MarkdownPath string
	Generated    time.Time
	Failure      string
}

// Failed builds the ref for a source that produced no report.
func Failed(vendor, reason string) ReportRef {
	return ReportRef{Vendor: vendor, Failure: reason}
}

// Discover finds the latest JSON export per vendor for subjectName directly
// inside outputDir. It does not descend into subdirectories, so a key
// directory is never read.
func Discover(outputDir, subjectName string) ([]ReportRef, error) {
	safe := platformstrings.SafeFilename(subjectName)
	if strings.TrimSpace(subjectName) == "" || safe == "" {
		return nil, fmt.Errorf("subject name is required: %w", sentinel.ErrInvalidInput)
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("output dir %s: %w", outputDir, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	latest := make(map[string]ReportRef)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		vendor, generated, ok := parseReportName(e.Name(), safe)
		if !ok {
			continue
		}
		if cur, seen := latest[vendor]; seen && !generated.After(cur.Generated) {
			continue
		}
		ref := ReportRef{
			Vendor:    vendor,
			JSONPath:  filepath.Join(outputDir, e.Name()),
			Generated: generated,
		}
		md := strings.TrimSuffix(ref.JSONPath, ".json") + ".md"
		if _, err := os.Stat(md); err == nil {
			ref.MarkdownPath = md
		}
		latest[vendor] = ref
	}

	refs := make([]ReportRef, 0, len(latest))
	for _, ref := range latest {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Vendor < refs[j].Vendor })
	return refs, nil
}

// parseReportName splits "{Vendor}_DSAR_{safe}_{YYYYMMDD_HHMMSS}.json". A
// longer name that merely starts with safe does not match.
func parseReportName(name, safe string) (string, time.Time, bool) {
	stem, ok := strings.CutSuffix(name, ".json")
	if !ok || len(stem) <= len(report.TimestampLayout) {
		return "", time.Time{}, false
	}
	ts := stem[len(stem)-len(report.TimestampLayout):]
	generated, err := time.Parse(report.TimestampLayout, ts)
	if err != nil {
		return "", time.Time{}, false
	}
	vendor, ok := strings.CutSuffix(stem[:len(stem)-len(ts)], "_DSAR_"+safe+"_")
	if !ok || vendor == "" {
		return "", time.Time{}, false
	}
	return vendor, generated, true
}
