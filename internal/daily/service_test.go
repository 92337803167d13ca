package daily

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reviewdle/internal/dailycache"
	"github.com/JakeFAU/reviewdle/internal/game"
	"github.com/JakeFAU/reviewdle/internal/id/uuid"
	pubmemory "github.com/JakeFAU/reviewdle/internal/publisher/memory"
	"github.com/JakeFAU/reviewdle/internal/reviews"
	"github.com/JakeFAU/reviewdle/internal/selector"
	"github.com/JakeFAU/reviewdle/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingCatalog counts catalog round-trips.
type countingCatalog struct {
	*memory.CatalogStore
	lists   atomic.Int32
	sources atomic.Int32
}

func (c *countingCatalog) ListSelectable(ctx context.Context, today game.Date) ([]game.Entry, error) {
	c.lists.Add(1)
	return c.CatalogStore.ListSelectable(ctx, today)
}

func (c *countingCatalog) ListClueSources(ctx context.Context, id int64) ([]game.ClueSource, error) {
	c.sources.Add(1)
	return c.CatalogStore.ListClueSources(ctx, id)
}

type pageFetcher struct {
	calls   atomic.Int32
	failing string
}

func (f *pageFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if url == f.failing {
		return nil, errors.New("HTTP 404")
	}
	return []byte(`<div class="persona_name"><a>player</a></div>
<div class="ratingSummary">Recommended</div>
<div class="hours">12 hrs on record</div>
<div class="recommendation_date">Posted: 3 March</div>
<div id="ReviewText">` + url + `</div>`), nil
}

type harness struct {
	svc     *Service
	catalog *countingCatalog
	fetcher *pageFetcher
	clock   *fakeClock
	cache   *dailycache.Cache
}

var dayD = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, store *memory.CatalogStore, opts ...func(*Deps, *Config)) *harness {
	t.Helper()
	h := &harness{
		catalog: &countingCatalog{CatalogStore: store},
		fetcher: &pageFetcher{},
		clock:   &fakeClock{now: dayD},
		cache:   dailycache.New(zap.NewNop()),
	}
	deps := Deps{
		Catalog:  h.catalog,
		Selector: selector.New(h.catalog, zap.NewNop()),
		Acquirer: reviews.NewAcquirer(h.fetcher, nil, time.Second, zap.NewNop()),
		Cache:    h.cache,
		Clock:    h.clock,
		Logger:   zap.NewNop(),
	}
	cfg := Config{}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	svc, err := New(deps, cfg)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func reviewURLs(appID string, n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://steamcommunity.com/id/u%d/recommended/%s/", i+1, appID)
	}
	return urls
}

func TestPortalTwoAcrossTwoDays(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	entry, err := store.AddEntry(game.Entry{Title: "Portal 2", AppID: "620", Active: true}, reviewURLs("620", 6)...)
	require.NoError(t, err)
	h := newHarness(t, store)
	ctx := context.Background()
	d := game.DateOf(dayD)

	first, err := h.svc.Today(ctx)
	require.NoError(t, err)
	require.Equal(t, "Portal 2", first.Title)
	require.Equal(t, "620", first.AppID)
	require.Len(t, first.Reviews, game.MaxClues)
	stored, _ := store.Entry(entry.ID)
	require.True(t, stored.PlayedOn(d))

	second, err := h.svc.Today(ctx)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	require.Equal(t, firstJSON, secondJSON)
	require.EqualValues(t, 6, h.fetcher.calls.Load())
	require.EqualValues(t, 1, h.catalog.lists.Load())
	require.EqualValues(t, 1, h.catalog.sources.Load())

	h.clock.advance(24 * time.Hour)
	third, err := h.svc.Today(ctx)
	require.NoError(t, err)
	require.Equal(t, "Portal 2", third.Title)
	stored, _ = store.Entry(entry.ID)
	require.True(t, stored.PlayedOn(d.AddDays(1)))
	require.EqualValues(t, 12, h.fetcher.calls.Load())
}

func TestFailingSourceKeepsSiblings(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	urls := reviewURLs("620", 6)
	_, err := store.AddEntry(game.Entry{Title: "Portal 2", AppID: "620", Active: true}, urls...)
	require.NoError(t, err)
	h := newHarness(t, store)
	h.fetcher.failing = urls[2]

	payload, err := h.svc.Today(context.Background())
	require.NoError(t, err)
	require.Len(t, payload.Reviews, 6)
	for i, clue := range payload.Reviews {
		if i == 2 {
			require.True(t, clue.Failed())
			require.Equal(t, urls[2], clue.OriginalURL)
			continue
		}
		require.False(t, clue.Failed())
		require.Equal(t, urls[i], clue.Body)
	}
}

func TestZeroSourcesYieldsEmptyReviews(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	_, err := store.AddEntry(game.Entry{Title: "Unseeded", AppID: "1", Active: true})
	require.NoError(t, err)
	h := newHarness(t, store)

	payload, err := h.svc.Today(context.Background())
	require.NoError(t, err)
	require.NotNil(t, payload.Reviews)
	require.Empty(t, payload.Reviews)

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	require.Contains(t, string(body), `"reviews":[]`)
}

func TestNoEntriesIsCachedForTheDay(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	h := newHarness(t, store)

	_, err := h.svc.Today(context.Background())
	require.ErrorIs(t, err, game.ErrNoEntriesAvailable)
	require.ErrorIs(t, err, game.ErrCacheBuildFailure)

	_, err = store.AddEntry(game.Entry{Title: "Late Arrival", Active: true})
	require.NoError(t, err)
	_, err = h.svc.Today(context.Background())
	require.ErrorIs(t, err, game.ErrNoEntriesAvailable)
	require.EqualValues(t, 1, h.catalog.lists.Load())

	h.clock.advance(24 * time.Hour)
	payload, err := h.svc.Today(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Late Arrival", payload.Title)
}

func TestRotationCoversEveryEntry(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	const n = 5
	for i := range n {
		_, err := store.AddEntry(game.Entry{Title: fmt.Sprintf("Game %d", i), Active: true})
		require.NoError(t, err)
	}
	h := newHarness(t, store)

	seen := make(map[string]int)
	for range n {
		payload, err := h.svc.Today(context.Background())
		require.NoError(t, err)
		seen[payload.Title]++
		h.clock.advance(24 * time.Hour)
	}
	require.Len(t, seen, n)
	for title, count := range seen {
		require.Equal(t, 1, count, title)
	}
}

func TestDegradedSelectionStillServes(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	_, err := store.AddEntry(game.Entry{Title: "Hades", AppID: "1145360", Active: true}, reviewURLs("1145360", 2)...)
	require.NoError(t, err)
	store.FailMarkWith(errors.New("read-only"))
	h := newHarness(t, store)

	payload, err := h.svc.Today(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Hades", payload.Title)
	require.Len(t, payload.Reviews, 2)
}

func TestCurrentDateUsesLocation(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	h := newHarness(t, store, func(_ *Deps, cfg *Config) {
		cfg.Location = time.FixedZone("UTC+2", 2*60*60)
	})
	h.clock.now = time.Date(2024, time.March, 4, 23, 30, 0, 0, time.UTC)
	require.Equal(t, game.Date{Year: 2024, Month: time.March, Day: 5}, h.svc.CurrentDate())
}

func TestArchiveAndPublish(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	_, err := store.AddEntry(game.Entry{Title: "Portal 2", AppID: "620", Active: true}, reviewURLs("620", 3)...)
	require.NoError(t, err)
	archive := memory.NewBlobStore()
	pub := pubmemory.New()
	h := newHarness(t, store, func(deps *Deps, cfg *Config) {
		deps.Archive = archive
		deps.Publisher = pub
		deps.IDs = uuid.New()
		cfg.Topic = "puzzles"
	})
	h.fetcher.failing = reviewURLs("620", 3)[0]

	_, err = h.svc.Today(context.Background())
	require.NoError(t, err)

	paths := archive.Paths()
	require.Len(t, paths, 1)
	require.True(t, strings.HasPrefix(paths[0], "daily/2024-03-04/"), paths[0])
	body, contentType, ok := archive.Object(paths[0])
	require.True(t, ok)
	require.Equal(t, "application/json", contentType)

	var record struct {
		Date    string       `json:"date"`
		Rule    string       `json:"rule"`
		Payload game.Payload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(body, &record))
	require.Equal(t, "2024-03-04", record.Date)
	require.Equal(t, string(selector.RuleUnplayed), record.Rule)
	require.Equal(t, "Portal 2", record.Payload.Title)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "puzzles", msgs[0].Topic)
	event, ok := msgs[0].Payload.(selectedEvent)
	require.True(t, ok)
	require.Equal(t, EventPuzzleSelected, event.Type)
	require.Equal(t, 3, event.Reviews)
	require.Equal(t, 1, event.Failed)
	require.Equal(t, "memory://"+paths[0], event.ArchiveURI)
	require.True(t, strings.HasSuffix(paths[0], event.ID+".json"))
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy exhausted") }

func TestArchiveFallsBackToClockID(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	_, err := store.AddEntry(game.Entry{Title: "Portal 2", Active: true})
	require.NoError(t, err)
	for _, ids := range []game.IDGenerator{nil, failingIDs{}} {
		archive := memory.NewBlobStore()
		h := newHarness(t, store, func(deps *Deps, _ *Config) {
			deps.Archive = archive
			deps.IDs = ids
		})

		_, err = h.svc.Today(context.Background())
		require.NoError(t, err)

		paths := archive.Paths()
		require.Len(t, paths, 1)
		require.Equal(t, "daily/2024-03-04/"+strconv.FormatInt(dayD.UnixNano(), 10)+".json", paths[0])
	}
}

func TestSideEffectFailuresDoNotFailBuild(t *testing.T) {
	t.Parallel()

	store := memory.NewCatalogStore()
	_, err := store.AddEntry(game.Entry{Title: "Portal 2", Active: true})
	require.NoError(t, err)
	pub := pubmemory.New()
	pub.FailWith(errors.New("broker down"))
	h := newHarness(t, store, func(deps *Deps, _ *Config) {
		deps.Publisher = pub
	})

	payload, err := h.svc.Today(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Portal 2", payload.Title)
}

func TestNewRequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Config{})
	require.Error(t, err)
}
