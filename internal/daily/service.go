// Package daily assembles today's puzzle: it resolves the calendar date in
// the game timezone, selects the entry, acquires its clues and caches the
// result for the rest of the day.
package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/reviewdle/internal/dailycache"
	"github.com/JakeFAU/reviewdle/internal/game"
	"github.com/JakeFAU/reviewdle/internal/selector"
)

var tracer = otel.Tracer("github.com/JakeFAU/reviewdle/internal/daily")

// EventPuzzleSelected is the notification type published after a build.
const EventPuzzleSelected = "puzzle.selected"

// PayloadCache is the day-scoped store in front of the build.
type PayloadCache interface {
	GetOrBuild(ctx context.Context, today game.Date, build dailycache.BuildFunc) (game.Payload, error)
}

// EntrySelector picks today's entry.
type EntrySelector interface {
	Select(ctx context.Context, today game.Date) (selector.Result, error)
}

// ClueAcquirer turns clue sources into clue records.
type ClueAcquirer interface {
	Acquire(ctx context.Context, sources []game.ClueSource) []game.Clue
}

// Deps are the collaborators of a Service. Archive, Publisher and IDs are
// optional.
type Deps struct {
	Catalog   game.Catalog
	Selector  EntrySelector
	Acquirer  ClueAcquirer
	Cache     PayloadCache
	Clock     game.Clock
	Archive   game.BlobStore
	Publisher game.Publisher
	IDs       game.IDGenerator
	Logger    *zap.Logger
}

// Config holds the Service settings.
type Config struct {
	// Location defines the calendar day boundary. Nil means UTC.
	Location *time.Location
	// ArchivePrefix is the object path prefix for archived payloads.
	ArchivePrefix string
	// Topic is the notification topic. Empty uses the publisher's default.
	Topic string
}

// Service is the daily puzzle pipeline.
type Service struct {
	deps Deps
	cfg  Config
}

// New validates deps and constructs a Service.
func New(deps Deps, cfg Config) (*Service, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("daily: catalog is required")
	case deps.Selector == nil:
		return nil, errors.New("daily: selector is required")
	case deps.Acquirer == nil:
		return nil, errors.New("daily: acquirer is required")
	case deps.Cache == nil:
		return nil, errors.New("daily: cache is required")
	case deps.Clock == nil:
		return nil, errors.New("daily: clock is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "daily"
	}
	return &Service{deps: deps, cfg: cfg}, nil
}

// CurrentDate returns today's date in the game timezone.
func (s *Service) CurrentDate() game.Date {
	return game.DateOf(s.deps.Clock.Now().In(s.cfg.Location))
}

// Today returns today's payload, building it on the first call of the day.
// Failures are wrapped with game.ErrCacheBuildFailure and keep their cause,
// so callers can still test for game.ErrNoEntriesAvailable.
func (s *Service) Today(ctx context.Context) (game.Payload, error) {
	today := s.CurrentDate()
	payload, err := s.deps.Cache.GetOrBuild(ctx, today, s.build)
	if err != nil {
		return game.Payload{}, fmt.Errorf("daily puzzle for %s: %w", today, err)
	}
	return payload, nil
}

func (s *Service) build(ctx context.Context, today game.Date) (payload game.Payload, err error) {
	ctx, span := tracer.Start(ctx, "daily.build", trace.WithAttributes(attribute.String("puzzle.date", today.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	logger := s.deps.Logger.With(zap.Stringer("date", today))

	result, err := s.deps.Selector.Select(ctx, today)
	if err != nil {
		return game.Payload{}, fmt.Errorf("select entry: %w", err)
	}
	span.SetAttributes(
		attribute.Int64("puzzle.entry_id", result.Entry.ID),
		attribute.String("puzzle.rule", string(result.Rule)),
		attribute.Bool("puzzle.degraded", result.Degraded()),
	)
	if result.Degraded() {
		logger.Warn("serving unrecorded selection",
			zap.Int64("entry_id", result.Entry.ID),
			zap.Error(result.PersistErr),
		)
	}

	sources, err := s.deps.Catalog.ListClueSources(ctx, result.Entry.ID)
	if err != nil {
		return game.Payload{}, fmt.Errorf("list clue sources for entry %d: %w", result.Entry.ID, err)
	}
	if len(sources) < game.MaxClues {
		logger.Warn("entry has fewer clue sources than expected",
			zap.Int64("entry_id", result.Entry.ID),
			zap.Int("sources", len(sources)),
		)
	}

	payload = game.Payload{
		Title:   result.Entry.Title,
		AppID:   result.Entry.AppID,
		Reviews: s.deps.Acquirer.Acquire(ctx, sources),
	}
	if payload.Reviews == nil {
		payload.Reviews = []game.Clue{}
	}

	s.afterBuild(ctx, logger, today, result, payload)
	return payload, nil
}

// archiveRecord is the JSON document written for each build.
type archiveRecord struct {
	Date     game.Date    `json:"date"`
	BuiltAt  time.Time    `json:"builtAt"`
	EntryID  int64        `json:"entryId"`
	Rule     string       `json:"rule"`
	Degraded bool         `json:"degraded"`
	Payload  game.Payload `json:"payload"`
}

// selectedEvent is the published notification.
type selectedEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Date       game.Date `json:"date"`
	EntryID    int64     `json:"entryId"`
	Title      string    `json:"title"`
	AppID      string    `json:"appId"`
	Reviews    int       `json:"reviews"`
	Failed     int       `json:"failedReviews"`
	ArchiveURI string    `json:"archiveUri,omitempty"`
}

// afterBuild archives the payload and publishes a notification. Neither
// step can fail the build.
func (s *Service) afterBuild(ctx context.Context, logger *zap.Logger, today game.Date, result selector.Result, payload game.Payload) {
	id := s.newID(logger)

	var uri string
	if s.deps.Archive != nil {
		record := archiveRecord{
			Date:     today,
			BuiltAt:  s.deps.Clock.Now(),
			EntryID:  result.Entry.ID,
			Rule:     string(result.Rule),
			Degraded: result.Degraded(),
			Payload:  payload,
		}
		body, err := json.Marshal(record)
		if err != nil {
			logger.Warn("marshal archive record", zap.Error(err))
		} else {
			objectPath := path.Join(s.cfg.ArchivePrefix, today.String(), id+".json")
			uri, err = s.deps.Archive.PutObject(ctx, objectPath, "application/json", bytes.NewReader(body))
			if err != nil {
				logger.Warn("archive daily payload", zap.String("path", objectPath), zap.Error(err))
				uri = ""
			}
		}
	}

	if s.deps.Publisher != nil {
		failed := 0
		for _, c := range payload.Reviews {
			if c.Failed() {
				failed++
			}
		}
		event := selectedEvent{
			ID:         id,
			Type:       EventPuzzleSelected,
			Date:       today,
			EntryID:    result.Entry.ID,
			Title:      payload.Title,
			AppID:      payload.AppID,
			Reviews:    len(payload.Reviews),
			Failed:     failed,
			ArchiveURI: uri,
		}
		if msgID, err := s.deps.Publisher.Publish(ctx, s.cfg.Topic, event); err != nil {
			logger.Warn("publish puzzle notification", zap.Error(err))
		} else {
			logger.Debug("published puzzle notification", zap.String("message_id", msgID))
		}
	}
}

func (s *Service) newID(logger *zap.Logger) string {
	if s.deps.IDs == nil {
		return strconv.FormatInt(s.deps.Clock.Now().UnixNano(), 10)
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		logger.Warn("generate build id", zap.Error(err))
		return strconv.FormatInt(s.deps.Clock.Now().UnixNano(), 10)
	}
	return id
}
