package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Registries, caches and stores return
// these (optionally wrapped) so the dispatch pipeline can translate them into
// structured failures.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: no binding or entry exists for the given key
// - ErrExpired: a cache entry's TTL has elapsed (treated as absent)
// - ErrConflict: a binding or entry already exists where none was expected
// - ErrInvalidState: component in wrong state for requested operation
// - ErrUnavailable: backend temporarily unavailable
//
// For input validation failures use the validation package's aggregated error.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
