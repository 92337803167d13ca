package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/reviewdle/internal/game"
	"github.com/JakeFAU/reviewdle/internal/hash/sha256"
	"github.com/JakeFAU/reviewdle/internal/metrics"
)

// DailyService returns today's puzzle.
type DailyService interface {
	Today(ctx context.Context) (game.Payload, error)
}

// TitleSearcher matches catalog titles.
type TitleSearcher interface {
	Search(ctx context.Context, term string, limit int) ([]string, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the server.
type Options struct {
	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration
	// Ready is checked by /readyz when set.
	Ready Pinger
}

// Server wires HTTP handlers to the daily pipeline and title search.
type Server struct {
	router chi.Router
	daily  DailyService
	search TitleSearcher
	ready  Pinger
	hasher *sha256.Hasher
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(daily DailyService, search TitleSearcher, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		daily:  daily,
		search: search,
		ready:  opts.Ready,
		hasher: sha256.New(),
		logger: logger.Named("http"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	if opts.RequestTimeout > 0 {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/daily-game", s.getDailyGame)
		r.Get("/search-steam-games", s.searchGames)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(s.logger, w, http.StatusServiceUnavailable, "catalog unavailable")
			return
		}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getDailyGame(w http.ResponseWriter, r *http.Request) {
	payload, err := s.daily.Today(r.Context())
	if err != nil {
		s.logger.Error("daily game unavailable",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(s.logger, w, http.StatusInternalServerError, dailyErrorMessage(err))
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal daily game", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "failed to encode daily game")
		return
	}
	etag := s.hasher.ETag(body)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("write daily game", zap.Error(err))
	}
}

func dailyErrorMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrNoEntriesAvailable):
		return "no games available"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request canceled"
	default:
		return "failed to build daily game"
	}
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func (s *Server) searchGames(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(s.logger, w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	titles, err := s.search.Search(r.Context(), query.Get("term"), limit)
	if err != nil {
		s.logger.Error("title search failed", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, titles)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Debug("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
