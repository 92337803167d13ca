package game

import (
	"context"
	"io"
	"time"
)

// Catalog is the store of entries and their clue sources.
type Catalog interface {
	// ListSelectable returns active entries whose last-selected date is unset
	// or on/before today.
	ListSelectable(ctx context.Context, today Date) ([]Entry, error)
	// ListClueSources returns the sources for an entry ordered by position.
	ListClueSources(ctx context.Context, entryID int64) ([]ClueSource, error)
	// MarkSelected records day as the entry's last-selected date.
	MarkSelected(ctx context.Context, entryID int64, day Date) error
	// ListTitles returns every display title, active or not.
	ListTitles(ctx context.Context) ([]string, error)
}

// ClueFetcher retrieves raw markup for a clue source locator.
type ClueFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
