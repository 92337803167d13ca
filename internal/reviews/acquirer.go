package reviews

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/reviewdle/internal/game"
	"github.com/JakeFAU/reviewdle/internal/metrics"
)

var tracer = otel.Tracer("github.com/JakeFAU/reviewdle/internal/reviews")

// Clue outcome labels recorded in metrics.
const (
	statusOK          = "ok"
	statusPartial     = "partial"
	statusFetchFailed = "fetch_failed"
)

// Acquirer resolves an entry's clue sources into clue records.
type Acquirer struct {
	fetcher game.ClueFetcher
	parser  *Parser
	timeout time.Duration
	logger  *zap.Logger
}

// NewAcquirer constructs an Acquirer. A zero timeout disables the per-fetch
// deadline and relies on the fetcher's own transport limits.
func NewAcquirer(fetcher game.ClueFetcher, parser *Parser, timeout time.Duration, logger *zap.Logger) *Acquirer {
	if parser == nil {
		parser = NewParser()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{
		fetcher: fetcher,
		parser:  parser,
		timeout: timeout,
		logger:  logger,
	}
}

// Acquire fetches and parses every source concurrently and returns one clue
// per source in position order, capped at game.MaxClues. Failures are
// captured as failed clues; the call itself never fails and returns only
// after every source has resolved.
func (a *Acquirer) Acquire(ctx context.Context, sources []game.ClueSource) []game.Clue {
	ordered := make([]game.ClueSource, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })
	if len(ordered) > game.MaxClues {
		ordered = ordered[:game.MaxClues]
	}

	clues := make([]game.Clue, len(ordered))
	var g errgroup.Group
	for i, src := range ordered {
		g.Go(func() error {
			clues[i] = a.resolve(ctx, src)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // resolvers never return errors

	return clues
}

func (a *Acquirer) resolve(ctx context.Context, src game.ClueSource) game.Clue {
	ctx, span := tracer.Start(ctx, "reviews.resolve", trace.WithAttributes(
		attribute.Int("clue.position", src.Position),
		attribute.String("clue.url", src.URL),
	))
	defer span.End()

	start := time.Now()
	markup, err := a.fetch(ctx, src.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		metrics.ObserveClue(src.URL, statusFetchFailed, time.Since(start))
		a.logger.Warn("clue fetch failed",
			zap.Int64("entry_id", src.EntryID),
			zap.Int("position", src.Position),
			zap.String("url", src.URL),
			zap.Error(err),
		)
		return game.FailedClue(game.ReasonFetchFailed, src.URL)
	}

	clue, err := a.parser.Parse(markup)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "markup unreadable")
		metrics.ObserveClue(src.URL, statusFetchFailed, time.Since(start))
		a.logger.Warn("clue markup unreadable",
			zap.String("url", src.URL),
			zap.Error(err),
		)
		return game.FailedClue(game.ReasonFetchFailed, src.URL)
	}

	status := statusOK
	if clue.Partial() {
		status = statusPartial
		span.SetAttributes(attribute.StringSlice("clue.missing", clue.Missing))
		a.logger.Debug("clue parsed with defaults",
			zap.String("url", src.URL),
			zap.Strings("missing", clue.Missing),
		)
	}
	metrics.ObserveClue(src.URL, status, time.Since(start))
	return clue
}

func (a *Acquirer) fetch(ctx context.Context, url string) ([]byte, error) {
	if a.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", game.ErrFetchFailed)
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	body, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", game.ErrFetchFailed, err)
	}
	return body, nil
}
