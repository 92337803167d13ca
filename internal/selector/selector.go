// Package selector picks the catalog entry that is today's puzzle, rotating
// fairly through the active catalog.
package selector

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/reviewdle/internal/game"
	"github.com/JakeFAU/reviewdle/internal/metrics"
)

// Rule names the rotation step that produced a selection.
type Rule string

// Rotation rules in priority order.
const (
	RuleToday    Rule = "today"
	RuleUnplayed Rule = "unplayed"
	RuleOldest   Rule = "oldest"
)

// Result is the outcome of one selection.
type Result struct {
	Entry game.Entry
	Rule  Rule
	// PersistErr is set when the selection could not be recorded. The entry is
	// still usable but the rotation may repeat it on a later day.
	PersistErr error
}

// Degraded reports whether the selection was not recorded.
func (r Result) Degraded() bool {
	return r.PersistErr != nil
}

// Option customizes a Selector.
type Option func(*Selector)

// WithIntN overrides the random source; intn must return a value in [0, n).
func WithIntN(intn func(n int) int) Option {
	return func(s *Selector) {
		s.intn = intn
	}
}

// Selector implements the daily rotation over a game.Catalog.
type Selector struct {
	catalog game.Catalog
	intn    func(n int) int
	logger  *zap.Logger
}

// New constructs a Selector.
func New(catalog game.Catalog, logger *zap.Logger, opts ...Option) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Selector{
		catalog: catalog,
		intn:    rand.IntN,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns today's entry. An entry already selected today is returned
// unchanged; otherwise an unplayed entry is drawn at random, falling back to
// the least recently played one, and today's date is recorded on it.
func (s *Selector) Select(ctx context.Context, today game.Date) (Result, error) {
	entries, err := s.catalog.ListSelectable(ctx, today)
	if err != nil {
		return Result{}, fmt.Errorf("list selectable entries: %w", err)
	}
	entries = selectable(entries, today)
	if len(entries) == 0 {
		return Result{}, game.ErrNoEntriesAvailable
	}

	if entry, ok := playedOn(entries, today); ok {
		metrics.ObserveSelection(string(RuleToday))
		s.logger.Debug("entry already selected today",
			zap.Int64("entry_id", entry.ID),
			zap.String("date", today.String()),
		)
		return Result{Entry: entry, Rule: RuleToday}, nil
	}

	entry, rule := s.pick(entries)
	result := Result{Entry: entry, Rule: rule}
	metrics.ObserveSelection(string(rule))

	if err := s.catalog.MarkSelected(ctx, entry.ID, today); err != nil {
		metrics.ObserveSelectionPersistFailure()
		result.PersistErr = errors.Join(game.ErrPersistenceFailure, err)
		s.logger.Error("failed to record daily selection; rotation may repeat this entry",
			zap.Int64("entry_id", entry.ID),
			zap.String("title", entry.Title),
			zap.String("date", today.String()),
			zap.Error(err),
		)
		return result, nil
	}
	day := today
	result.Entry.LastSelected = &day

	s.logger.Info("selected daily entry",
		zap.Int64("entry_id", entry.ID),
		zap.String("title", entry.Title),
		zap.String("rule", string(rule)),
		zap.String("date", today.String()),
	)
	return result, nil
}

func (s *Selector) pick(entries []game.Entry) (game.Entry, Rule) {
	var unplayed []game.Entry
	for _, e := range entries {
		if e.LastSelected == nil {
			unplayed = append(unplayed, e)
		}
	}
	if len(unplayed) > 0 {
		return unplayed[s.intn(len(unplayed))], RuleUnplayed
	}

	oldest := *entries[0].LastSelected
	for _, e := range entries[1:] {
		if e.LastSelected.Before(oldest) {
			oldest = *e.LastSelected
		}
	}
	var candidates []game.Entry
	for _, e := range entries {
		if *e.LastSelected == oldest {
			candidates = append(candidates, e)
		}
	}
	return candidates[s.intn(len(candidates))], RuleOldest
}

func selectable(entries []game.Entry, today game.Date) []game.Entry {
	out := make([]game.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Active && (e.LastSelected == nil || !e.LastSelected.After(today)) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func playedOn(entries []game.Entry, day game.Date) (game.Entry, bool) {
	for _, e := range entries {
		if e.PlayedOn(day) {
			return e, true
		}
	}
	return game.Entry{}, false
}
