package game

import "errors"

var (
	// ErrNoEntriesAvailable signals that the catalog has no active entries.
	ErrNoEntriesAvailable = errors.New("no catalog entries available")
	// ErrPersistenceFailure signals that recording a selection failed.
	ErrPersistenceFailure = errors.New("selection persistence failed")
	// ErrFetchFailed signals that a clue source could not be retrieved.
	ErrFetchFailed = errors.New("clue fetch failed")
	// ErrCacheBuildFailure wraps any failure while building the daily payload.
	ErrCacheBuildFailure = errors.New("daily payload build failed")
)
