package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dsar/pkg/identity"
	"dsar/pkg/platform/sentinel"
)

// FailureKind is the normalized reason a source run failed. It is what the
// activity log and the package manifest record.
type FailureKind string

const (
	FailureSubjectNotFound  FailureKind = "subject_not_found"
	FailureAmbiguousSubject FailureKind = "ambiguous_subject"
	FailureMalformedSource  FailureKind = "malformed_source"
	FailureMissingExport    FailureKind = "missing_export"
	FailureUnknownVendor    FailureKind = "unknown_vendor"
	FailureCanceled         FailureKind = "canceled"
	FailureInternal         FailureKind = "internal"
)

// Sentinel errors for common cases.
var (
	ErrSubjectNotFound  = errors.New("data subject not found in export")
	ErrAmbiguousSubject = errors.New("data subject matches more than one identity")
	ErrMalformedSource  = errors.New("malformed source export")
	ErrUnknownVendor    = errors.New("unknown vendor")
)

// AmbiguousSubjectError lists every identity the query matched. The operator
// resolves it by supplying the subject's email.
type AmbiguousSubjectError struct {
	Query      SubjectQuery
	Candidates []identity.Identity
}

func (e *AmbiguousSubjectError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.String()
	}
	msg := fmt.Sprintf("%d identities match %q: %s", len(e.Candidates), e.Query.Name, strings.Join(names, "; "))
	if e.Query.Email == "" {
		msg += "; provide the subject's email to disambiguate"
	}
	return msg
}

// Is makes errors.Is(err, ErrAmbiguousSubject) hold.
func (e *AmbiguousSubjectError) Is(target error) bool {
	return target == ErrAmbiguousSubject
}

// MalformedSourceError reports an export that cannot be read as the vendor's
// format.
type MalformedSourceError struct {
	Vendor string
	Path   string
	Reason string
	Err    error
}

func (e *MalformedSourceError) Error() string {
	msg := fmt.Sprintf("malformed %s export %s: %s", e.Vendor, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedSourceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformedSource) hold.
func (e *MalformedSourceError) Is(target error) bool {
	return target == ErrMalformedSource
}

// Malformed builds a MalformedSourceError.
func Malformed(vendor, path, reason string, err error) error {
	return &MalformedSourceError{Vendor: vendor, Path: path, Reason: reason, Err: err}
}

// Classify extracts the failure kind from an error.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSubjectNotFound):
		return FailureSubjectNotFound
	case errors.Is(err, ErrAmbiguousSubject):
		return FailureAmbiguousSubject
	case errors.Is(err, ErrMalformedSource):
		return FailureMalformedSource
	case errors.Is(err, sentinel.ErrNotFound):
		return FailureMissingExport
	case errors.Is(err, ErrUnknownVendor):
		return FailureUnknownVendor
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCanceled
	default:
		return FailureInternal
	}
}
