// Package fetcher composes clue fetchers.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/reviewdle/internal/game"
)

// Promoter decides whether a successfully fetched page still needs the
// secondary fetcher.
type Promoter interface {
	ShouldPromote(body []byte) bool
}

// Fallback tries a primary fetcher and, when it fails or its page is
// promoted, a secondary one.
type Fallback struct {
	primary   game.ClueFetcher
	secondary game.ClueFetcher
	promoter  Promoter
	logger    *zap.Logger
}

// Option configures a Fallback.
type Option func(*Fallback)

// WithPromoter sends successful primary pages that p flags to the secondary.
func WithPromoter(p Promoter) Option {
	return func(f *Fallback) { f.promoter = p }
}

// NewFallback builds a Fallback. A nil secondary makes it a pass-through.
func NewFallback(primary, secondary game.ClueFetcher, logger *zap.Logger, opts ...Option) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fallback{primary: primary, secondary: secondary, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements game.ClueFetcher. The secondary is skipped once the
// context is done. A promoted page whose render fails is returned as is.
func (f *Fallback) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := f.primary.Fetch(ctx, url)
	if err == nil {
		if f.secondary == nil || f.promoter == nil || !f.promoter.ShouldPromote(body) {
			return body, nil
		}
		f.logger.Info("static page looks incomplete; trying headless render", zap.String("url", url))
		rendered, renderErr := f.secondary.Fetch(ctx, url)
		if renderErr != nil {
			f.logger.Warn("headless render failed; keeping static page", zap.String("url", url), zap.Error(renderErr))
			return body, nil
		}
		return rendered, nil
	}
	if f.secondary == nil || ctx.Err() != nil {
		return nil, err
	}
	f.logger.Info("static fetch failed; trying headless render", zap.String("url", url), zap.Error(err))
	body, secondErr := f.secondary.Fetch(ctx, url)
	if secondErr != nil {
		return nil, fmt.Errorf("all fetchers failed: %w", errors.Join(err, secondErr))
	}
	return body, nil
}
