// Package main hosts the reviewdle service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes GET /api/daily-game, GET /api/search-steam-games, health checks, and
//     Prometheus metrics behind request-id, logging, recovery, and timeout middleware.
//   - Daily pipeline: internal/daily resolves "today" in the configured timezone and asks the single-slot
//     internal/dailycache for the payload. A miss runs one build per date: the selector picks the entry by fair
//     rotation, the catalog lists its review sources, and internal/reviews fetches and parses up to six clues
//     concurrently. Failed fetches become failure clues instead of failing the day.
//   - Fetch pipeline: the Colly fetcher retrieves review pages with browser-like headers; an optional Chromedp
//     fetcher renders the page when the static fetch fails; a per-host token bucket throttles both.
//   - Persistence & fanout: the catalog lives in Postgres (or an in-memory store loaded from a YAML fixture).
//     Built payloads are optionally archived to a BlobStore (memory/local/GCS) and announced on Pub/Sub.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging.
//
// Quick checklist:
//   - Configure env vars: REVIEWDLE_SERVER_PORT or PORT, REVIEWDLE_GAME_TIMEZONE, REVIEWDLE_DATABASE_DSN or
//     REVIEWDLE_CATALOG_FIXTURE_FILE, REVIEWDLE_ARCHIVE_BACKEND, and REVIEWDLE_PUBSUB_* when notifications are wanted.
//   - Run locally: go run ./cmd/reviewdle serve --config config.yaml
//   - Print today's puzzle without serving: go run ./cmd/reviewdle today
package main
