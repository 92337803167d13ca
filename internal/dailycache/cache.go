// Package dailycache holds the single date-keyed puzzle slot shared by all
// requests for a calendar day.
package dailycache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/reviewdle/internal/game"
	"github.com/JakeFAU/reviewdle/internal/metrics"
)

// BuildFunc produces the payload for a day.
type BuildFunc func(ctx context.Context, today game.Date) (game.Payload, error)

// Slot is the outcome of one build. Exactly one of Payload or Err is meaningful.
type Slot struct {
	Date    game.Date
	Payload game.Payload
	Err     error
	BuiltAt time.Time
}

// Cache stores at most one Slot. A slot is served only to callers asking
// for the same date; the first caller on a new date triggers a build that
// replaces it.
type Cache struct {
	mu     sync.RWMutex
	slot   *Slot
	flight singleflight.Group
	logger *zap.Logger
	now    func() time.Time
}

// New constructs an empty Cache.
func New(logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{logger: logger, now: time.Now}
}

// GetOrBuild returns the cached outcome for today or runs build once to
// produce it. Concurrent callers for the same date share one build. The
// build runs detached from the caller's cancellation so an abandoned request
// still fills the slot. Build errors are cached for the day and wrapped with
// game.ErrCacheBuildFailure.
func (c *Cache) GetOrBuild(ctx context.Context, today game.Date, build BuildFunc) (game.Payload, error) {
	if slot := c.lookup(today); slot != nil {
		if slot.Err != nil {
			metrics.ObserveCache(metrics.CacheErrorHit)
		} else {
			metrics.ObserveCache(metrics.CacheHit)
		}
		return slot.Payload.Clone(), slot.Err
	}
	metrics.ObserveCache(metrics.CacheMiss)

	buildCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(today.String(), func() (any, error) {
		// A flight that finished just before this one started may have filled the slot.
		if slot := c.lookup(today); slot != nil {
			return slot, nil
		}
		return c.runBuild(buildCtx, today, build), nil
	})

	select {
	case <-ctx.Done():
		return game.Payload{}, fmt.Errorf("waiting for daily build: %w", ctx.Err())
	case res := <-ch:
		slot, ok := res.Val.(*Slot)
		if !ok {
			return game.Payload{}, fmt.Errorf("%w: unexpected flight result %T", game.ErrCacheBuildFailure, res.Val)
		}
		return slot.Payload.Clone(), slot.Err
	}
}

func (c *Cache) runBuild(ctx context.Context, today game.Date, build BuildFunc) (slot *Slot) {
	start := c.now()
	defer func() {
		if r := recover(); r != nil {
			slot = &Slot{
				Date:    today,
				Err:     fmt.Errorf("%w: build panicked: %v", game.ErrCacheBuildFailure, r),
				BuiltAt: c.now(),
			}
			c.logger.Error("daily build panicked", zap.Stringer("date", today), zap.Any("panic", r))
			c.store(slot)
		}
	}()

	payload, err := build(ctx, today)
	slot = &Slot{Date: today, BuiltAt: c.now()}
	if err != nil {
		slot.Err = fmt.Errorf("%w: %w", game.ErrCacheBuildFailure, err)
		c.logger.Error("daily build failed",
			zap.Stringer("date", today),
			zap.Duration("elapsed", slot.BuiltAt.Sub(start)),
			zap.Error(err),
		)
	} else {
		slot.Payload = payload.Clone()
		c.logger.Info("daily build complete",
			zap.Stringer("date", today),
			zap.String("title", payload.Title),
			zap.Int("reviews", len(payload.Reviews)),
			zap.Duration("elapsed", slot.BuiltAt.Sub(start)),
		)
	}
	c.store(slot)
	return slot
}

func (c *Cache) lookup(today game.Date) *Slot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.slot != nil && c.slot.Date == today {
		return c.slot
	}
	return nil
}

// store replaces the slot unless it already holds a later date, which
// happens when a build for yesterday finishes after today's.
func (c *Cache) store(slot *Slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot != nil && c.slot.Date.After(slot.Date) {
		return
	}
	c.slot = slot
}

// Peek returns a copy of the current slot, if any.
func (c *Cache) Peek() (Slot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.slot == nil {
		return Slot{}, false
	}
	out := *c.slot
	out.Payload = out.Payload.Clone()
	return out, true
}

// Reset empties the cache.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.slot = nil
	c.mu.Unlock()
}
