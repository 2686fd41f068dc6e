package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: no record or entity exists for the given key
//   - ErrConflict: a write would break a uniqueness constraint
//   - ErrUnavailable: a backend (database, cache) could not be reached
//   - ErrNotSupported: the capability was not registered for this entity kind
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
	ErrNotSupported = errors.New("not supported")
)
