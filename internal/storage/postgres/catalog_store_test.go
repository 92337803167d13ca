package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reviewdle/internal/game"
)

var today = game.Date{Year: 2024, Month: time.March, Day: 4}

func newMockStore(t *testing.T) (*CatalogStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewCatalogStoreWithPool(mock, "", "")
	require.NoError(t, err)
	return store, mock
}

func TestListSelectableScansEntries(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	yesterday := time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC)
	rows := mock.NewRows([]string{"id", "title", "app_id", "last_selected", "active"}).
		AddRow(int64(1), "Portal 2", "620", pgtype.Date{}, true).
		AddRow(int64(2), "Hades", "1145360", pgtype.Date{Time: yesterday, Valid: true}, true)

	mock.ExpectQuery(`SELECT id, title, app_id::text, last_selected, active\s+FROM games`).
		WithArgs(today.Time(time.UTC)).
		WillReturnRows(rows)

	entries, err := store.ListSelectable(context.Background(), today)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Nil(t, entries[0].LastSelected)
	require.Equal(t, "620", entries[0].AppID)
	require.NotNil(t, entries[1].LastSelected)
	require.Equal(t, today.AddDays(-1), *entries[1].LastSelected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSelectableQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM games`).WithArgs(pgxmock.AnyArg()).WillReturnError(errors.New("conn reset"))

	_, err := store.ListSelectable(context.Background(), today)
	require.ErrorContains(t, err, "query selectable entries")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListClueSourcesOrdered(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rows := mock.NewRows([]string{"game_id", "position", "url"}).
		AddRow(int64(1), 1, "https://steamcommunity.com/id/a/recommended/620/").
		AddRow(int64(1), 2, "https://steamcommunity.com/id/b/recommended/620/")
	mock.ExpectQuery(`SELECT game_id, position, url\s+FROM game_reviews\s+WHERE game_id = \$1\s+ORDER BY position`).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	sources, err := store.ListClueSources(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, 2, sources[1].Position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListClueSourcesEmpty(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM game_reviews`).
		WithArgs(int64(9)).
		WillReturnRows(mock.NewRows([]string{"game_id", "position", "url"}))

	sources, err := store.ListClueSources(context.Background(), 9)
	require.NoError(t, err)
	require.NotNil(t, sources)
	require.Empty(t, sources)
}

func TestMarkSelected(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE games SET last_selected = \$1 WHERE id = \$2`).
		WithArgs(today.Time(time.UTC), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE games`).
		WithArgs(today.Time(time.UTC), int64(404)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.MarkSelected(context.Background(), 3, today))
	require.ErrorContains(t, store.MarkSelected(context.Background(), 404, today), "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTitles(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT title FROM games ORDER BY title`).
		WillReturnRows(mock.NewRows([]string{"title"}).AddRow("Hades").AddRow("Portal 2"))

	titles, err := store.ListTitles(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Hades", "Portal 2"}, titles)
}

func TestPing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTableNameValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewCatalogStoreWithPool(mock, "games; DROP TABLE x", "")
	require.Error(t, err)
	_, err = NewCatalogStoreWithPool(mock, "games", "1reviews")
	require.Error(t, err)
	_, err = NewCatalogStoreWithPool(nil, "", "")
	require.Error(t, err)

	store, err := NewCatalogStoreWithPool(mock, "catalog_games", "catalog_reviews")
	require.NoError(t, err)
	require.Equal(t, "catalog_games", store.entries)
	require.Equal(t, "catalog_reviews", store.sources)
}

func TestNewCatalogStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewCatalogStore(context.Background(), CatalogStoreConfig{})
	require.ErrorContains(t, err, "dsn")
}
