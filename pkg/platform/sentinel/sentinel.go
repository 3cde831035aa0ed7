package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and backend adapters return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: record does not exist
//   - ErrConflict: record already exists or was changed concurrently
//   - ErrUnavailable: dependency temporarily unreachable
//
// Validation failures belong in pkg/domain-errors, not here.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
