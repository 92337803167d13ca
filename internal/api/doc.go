// Package api hosts the HTTP server for the puzzle front-end. Routes:
//   - GET /api/daily-game returns today's puzzle payload.
//   - GET /api/search-steam-games?term=&limit= returns matching titles for
//     the guess autocomplete.
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
package api
