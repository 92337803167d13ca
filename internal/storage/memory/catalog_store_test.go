package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reviewdle/internal/game"
)

const fixtureYAML = `
entries:
  - title: Portal 2
    app_id: "620"
    active: true
    sources:
      - https://steamcommunity.com/id/a/recommended/620/
      - https://steamcommunity.com/id/b/recommended/620/
  - id: 10
    title: Hades
    app_id: "1145360"
    active: true
    last_selected: 2024-03-01
  - title: Retired Game
    app_id: "1"
    active: false
`

var march4 = game.Date{Year: 2024, Month: time.March, Day: 4}

func TestParseCatalogFixture(t *testing.T) {
	t.Parallel()

	store, err := ParseCatalogFixture(strings.NewReader(fixtureYAML))
	require.NoError(t, err)

	entries, err := store.ListSelectable(context.Background(), march4)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "Portal 2", entries[0].Title)
	require.Equal(t, int64(1), entries[0].ID)
	require.Equal(t, int64(10), entries[1].ID)
	require.Equal(t, game.Date{Year: 2024, Month: time.March, Day: 1}, *entries[1].LastSelected)

	sources, err := store.ListClueSources(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, 2, sources[1].Position)
	require.Equal(t, int64(1), sources[1].EntryID)

	retired, ok := store.Entry(11)
	require.True(t, ok)
	require.False(t, retired.Active)
}

func TestLoadCatalogFixtureFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o600))
	store, err := LoadCatalogFixture(path)
	require.NoError(t, err)
	titles, err := store.ListTitles(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Hades", "Portal 2", "Retired Game"}, titles)

	_, err = LoadCatalogFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseCatalogFixtureRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := ParseCatalogFixture(strings.NewReader("entries:\n  - title: A\n  - title: a\n"))
	require.ErrorContains(t, err, "duplicate title")

	_, err = ParseCatalogFixture(strings.NewReader("entries:\n  - title: A\n    bogus: 1\n"))
	require.Error(t, err)

	store, err := ParseCatalogFixture(strings.NewReader(""))
	require.NoError(t, err)
	entries, err := store.ListSelectable(context.Background(), march4)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestListSelectableExcludesFutureDates(t *testing.T) {
	t.Parallel()

	store := NewCatalogStore()
	future := march4.AddDays(3)
	_, err := store.AddEntry(game.Entry{Title: "Skewed", Active: true, LastSelected: &future})
	require.NoError(t, err)

	entries, err := store.ListSelectable(context.Background(), march4)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestMarkSelected(t *testing.T) {
	t.Parallel()

	store := NewCatalogStore()
	e, err := store.AddEntry(game.Entry{Title: "Celeste", Active: true})
	require.NoError(t, err)

	require.NoError(t, store.MarkSelected(context.Background(), e.ID, march4))
	got, ok := store.Entry(e.ID)
	require.True(t, ok)
	require.True(t, got.PlayedOn(march4))

	require.Error(t, store.MarkSelected(context.Background(), 999, march4))

	boom := errors.New("read-only replica")
	store.FailMarkWith(boom)
	require.ErrorIs(t, store.MarkSelected(context.Background(), e.ID, march4.AddDays(1)), boom)
}

func TestReturnedEntriesAreCopies(t *testing.T) {
	t.Parallel()

	store := NewCatalogStore()
	day := march4
	e, err := store.AddEntry(game.Entry{Title: "Celeste", Active: true, LastSelected: &day})
	require.NoError(t, err)

	entries, err := store.ListSelectable(context.Background(), march4)
	require.NoError(t, err)
	*entries[0].LastSelected = march4.AddDays(-100)

	got, _ := store.Entry(e.ID)
	require.Equal(t, march4, *got.LastSelected)
}
