// Package postgres provides the Postgres-backed catalog of puzzle entries.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/reviewdle/internal/game"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Default table names.
const (
	DefaultEntriesTable = "games"
	DefaultSourcesTable = "game_reviews"
)

// CatalogStoreConfig controls the Postgres connection pool and table names.
type CatalogStoreConfig struct {
	DSN             string
	EntriesTable    string
	SourcesTable    string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// CatalogStore implements game.Catalog on two tables: entries
// (id, title, app_id, last_selected, active) and clue sources
// (game_id, position, url).
type CatalogStore struct {
	pool    pool
	entries string
	sources string
}

// NewCatalogStore connects to Postgres using the provided config.
func NewCatalogStore(ctx context.Context, cfg CatalogStoreConfig) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	entries, sources, err := tableNames(cfg.EntriesTable, cfg.SourcesTable)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CatalogStore{pool: p, entries: entries, sources: sources}, nil
}

// NewCatalogStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCatalogStoreWithPool(p pool, entriesTable, sourcesTable string) (*CatalogStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	entries, sources, err := tableNames(entriesTable, sourcesTable)
	if err != nil {
		return nil, err
	}
	return &CatalogStore{pool: p, entries: entries, sources: sources}, nil
}

func tableNames(entries, sources string) (string, string, error) {
	if entries == "" {
		entries = DefaultEntriesTable
	}
	if sources == "" {
		sources = DefaultSourcesTable
	}
	for _, name := range []string{entries, sources} {
		if !validTableName.MatchString(name) {
			return "", "", fmt.Errorf("invalid table name %q", name)
		}
	}
	return entries, sources, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *CatalogStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// ListSelectable returns active entries not selected after today, ordered by id.
func (s *CatalogStore) ListSelectable(ctx context.Context, today game.Date) ([]game.Entry, error) {
	query := fmt.Sprintf(`
SELECT id, title, app_id::text, last_selected, active
FROM %s
WHERE active AND (last_selected IS NULL OR last_selected <= $1)
ORDER BY id`, s.entries)

	rows, err := s.pool.Query(ctx, query, today.Time(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("query selectable entries: %w", err)
	}
	defer rows.Close()

	var entries []game.Entry
	for rows.Next() {
		var (
			e    game.Entry
			last pgtype.Date
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.AppID, &last, &e.Active); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if last.Valid {
			d := game.DateOf(last.Time)
			e.LastSelected = &d
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// ListClueSources returns an entry's sources ordered by position.
func (s *CatalogStore) ListClueSources(ctx context.Context, entryID int64) ([]game.ClueSource, error) {
	query := fmt.Sprintf(`
SELECT game_id, position, url
FROM %s
WHERE game_id = $1
ORDER BY position`, s.sources)

	rows, err := s.pool.Query(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("query clue sources: %w", err)
	}
	defer rows.Close()

	sources := make([]game.ClueSource, 0, game.MaxClues)
	for rows.Next() {
		var src game.ClueSource
		if err := rows.Scan(&src.EntryID, &src.Position, &src.URL); err != nil {
			return nil, fmt.Errorf("scan clue source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clue sources: %w", err)
	}
	return sources, nil
}

// MarkSelected sets the entry's last-selected date.
func (s *CatalogStore) MarkSelected(ctx context.Context, entryID int64, day game.Date) error {
	query := fmt.Sprintf(`UPDATE %s SET last_selected = $1 WHERE id = $2`, s.entries)
	tag, err := s.pool.Exec(ctx, query, day.Time(time.UTC), entryID)
	if err != nil {
		return fmt.Errorf("update last_selected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry %d not found", entryID)
	}
	return nil
}

// ListTitles returns every title in alphabetical order.
func (s *CatalogStore) ListTitles(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT title FROM %s ORDER BY title`, s.entries)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate titles: %w", err)
	}
	return titles, nil
}
