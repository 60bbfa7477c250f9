package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, adapters and the file
// layer return these (optionally wrapped) so callers can translate them into
// run outcomes or HTTP statuses.
//
// - ErrNotFound: file, report or event does not exist
// - ErrUnavailable: backend (postgres, redis, kafka) temporarily unreachable
// - ErrInvalidInput: caller-supplied value rejected before any work started
// - ErrConflict: configuration that would break an isolation guarantee
var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)
