package activity

import (
	"math"
	"slices"
	"sort"
	"strings"

	"dsar/pkg/identity"
)

// Summary condenses a subject's trail for the package manifest.
type Summary struct {
	ProcessingDate        string   `json:"processing_date"`
	VendorsProcessed      []string `json:"vendors_processed"`
	VendorsFailed         []string `json:"vendors_failed"`
	TotalRecords          int      `json:"total_records"`
	TotalExecutionSeconds float64  `json:"total_execution_time_seconds"`
	AllSuccessful         bool     `json:"all_successful"`
}

// SubjectKey is the lookup form of a subject name: case and runs of
// whitespace are ignored.
func SubjectKey(name string) string {
	return strings.ToLower(identity.CollapseSpace(name))
}

// SameSubject compares subject names by SubjectKey.
func SameSubject(a, b string) bool {
	return SubjectKey(a) == SubjectKey(b)
}

// Summarize reduces the events for subjectName. When a vendor was run more
// than once the latest terminal event decides its outcome, so a successful
// rerun clears an earlier failure and records are not counted twice.
func Summarize(events []Event, subjectName string) Summary {
	var mine []Event
	for _, e := range events {
		if SameSubject(e.SubjectName, subjectName) {
			mine = append(mine, e)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].Timestamp.Before(mine[j].Timestamp)
	})

	s := Summary{VendorsProcessed: []string{}, VendorsFailed: []string{}, AllSuccessful: true}
	if len(mine) == 0 {
		return s
	}
	s.ProcessingDate = mine[0].Timestamp.UTC().Format("2006-01-02")

	latest := make(map[string]Event)
	for _, e := range mine {
		if e.Vendor == "" {
			continue
		}
		if e.Type == EventProcessingComplete || e.Type == EventProcessingFailed {
			latest[e.Vendor] = e
		}
	}

	var seconds float64
	for vendor, e := range latest {
		if e.Type == EventProcessingFailed {
			s.VendorsFailed = append(s.VendorsFailed, vendor)
			continue
		}
		s.VendorsProcessed = append(s.VendorsProcessed, vendor)
		s.TotalRecords += e.Records
		seconds += e.ExecutionSeconds
	}
	slices.Sort(s.VendorsProcessed)
	slices.Sort(s.VendorsFailed)
	s.TotalExecutionSeconds = math.Round(seconds*100) / 100
	s.AllSuccessful = len(s.VendorsFailed) == 0
	return s
}
