package memory

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/reviewdle/internal/game"
)

// CatalogStore is a mutex-guarded game.Catalog.
type CatalogStore struct {
	mu      sync.RWMutex
	entries map[int64]game.Entry
	sources map[int64][]game.ClueSource
	nextID  int64
	markErr error
}

// NewCatalogStore returns an empty catalog.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		entries: make(map[int64]game.Entry),
		sources: make(map[int64][]game.ClueSource),
		nextID:  1,
	}
}

type catalogFixture struct {
	Entries []fixtureEntry `yaml:"entries"`
}

type fixtureEntry struct {
	game.Entry `yaml:",inline"`
	Sources    []string `yaml:"sources"`
}

// LoadCatalogFixture reads a YAML catalog file.
func LoadCatalogFixture(path string) (*CatalogStore, error) {
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog fixture: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only
	return ParseCatalogFixture(f)
}

// ParseCatalogFixture decodes a catalog of the form
//
//	entries:
//	  - title: Portal 2
//	    app_id: "620"
//	    active: true
//	    sources:
//	      - https://steamcommunity.com/id/someone/recommended/620/
//
// Source positions follow list order starting at 1.
func ParseCatalogFixture(r io.Reader) (*CatalogStore, error) {
	var fx catalogFixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog fixture: %w", err)
	}
	store := NewCatalogStore()
	for i, fe := range fx.Entries {
		if _, err := store.AddEntry(fe.Entry, fe.Sources...); err != nil {
			return nil, fmt.Errorf("fixture entry %d: %w", i, err)
		}
	}
	return store, nil
}

// AddEntry inserts an entry with its source URLs in position order. A zero
// ID is assigned automatically. Titles must be unique ignoring case.
func (s *CatalogStore) AddEntry(e game.Entry, urls ...string) (game.Entry, error) {
	if strings.TrimSpace(e.Title) == "" {
		return game.Entry{}, fmt.Errorf("title is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entries {
		if strings.EqualFold(existing.Title, e.Title) {
			return game.Entry{}, fmt.Errorf("duplicate title %q", e.Title)
		}
	}
	if e.ID == 0 {
		e.ID = s.nextID
	}
	if _, ok := s.entries[e.ID]; ok {
		return game.Entry{}, fmt.Errorf("duplicate id %d", e.ID)
	}
	if e.ID >= s.nextID {
		s.nextID = e.ID + 1
	}
	if e.LastSelected != nil {
		d := *e.LastSelected
		e.LastSelected = &d
	}
	s.entries[e.ID] = e

	srcs := make([]game.ClueSource, 0, len(urls))
	for i, u := range urls {
		srcs = append(srcs, game.ClueSource{EntryID: e.ID, Position: i + 1, URL: u})
	}
	s.sources[e.ID] = srcs
	return e, nil
}

// Entry returns a copy of one entry.
func (s *CatalogStore) Entry(id int64) (game.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return copyEntry(e), ok
}

// FailMarkWith makes MarkSelected return err until called with nil.
func (s *CatalogStore) FailMarkWith(err error) {
	s.mu.Lock()
	s.markErr = err
	s.mu.Unlock()
}

// Ping always succeeds.
func (s *CatalogStore) Ping(context.Context) error {
	return nil
}

// ListSelectable implements game.Catalog.
func (s *CatalogStore) ListSelectable(_ context.Context, today game.Date) ([]game.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]game.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.Active || (e.LastSelected != nil && e.LastSelected.After(today)) {
			continue
		}
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListClueSources implements game.Catalog.
func (s *CatalogStore) ListClueSources(_ context.Context, entryID int64) ([]game.ClueSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.sources[entryID]
	out := make([]game.ClueSource, len(src))
	copy(out, src)
	return out, nil
}

// MarkSelected implements game.Catalog.
func (s *CatalogStore) MarkSelected(_ context.Context, entryID int64, day game.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	e, ok := s.entries[entryID]
	if !ok {
		return fmt.Errorf("entry %d not found", entryID)
	}
	d := day
	e.LastSelected = &d
	s.entries[entryID] = e
	return nil
}

// ListTitles implements game.Catalog.
func (s *CatalogStore) ListTitles(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	titles := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		titles = append(titles, e.Title)
	}
	sort.Strings(titles)
	return titles, nil
}

func copyEntry(e game.Entry) game.Entry {
	if e.LastSelected != nil {
		d := *e.LastSelected
		e.LastSelected = &d
	}
	return e
}
