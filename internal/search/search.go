// Package search matches catalog titles for the guess autocomplete.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Result limits.
const (
	DefaultLimit = 10
	MaxLimit     = 50
)

// TitleSource lists every searchable title.
type TitleSource interface {
	ListTitles(ctx context.Context) ([]string, error)
}

// Searcher finds titles containing a term, ignoring case and punctuation.
type Searcher struct {
	titles TitleSource
}

// New constructs a Searcher.
func New(titles TitleSource) *Searcher {
	return &Searcher{titles: titles}
}

// Search returns up to limit titles whose normalized form contains the
// normalized term, closest matches first. A blank term matches nothing.
// limit <= 0 selects DefaultLimit; larger values are clamped to MaxLimit.
func (s *Searcher) Search(ctx context.Context, term string, limit int) ([]string, error) {
	needle := Normalize(term)
	if needle == "" {
		return []string{}, nil
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	titles, err := s.titles.ListTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}

	type hit struct {
		title string
		score float64
	}
	hits := make([]hit, 0, len(titles))
	for _, title := range titles {
		norm := Normalize(title)
		if !strings.Contains(norm, needle) {
			continue
		}
		score := matchr.JaroWinkler(needle, norm, false)
		if strings.HasPrefix(norm, needle) {
			score++
		}
		hits = append(hits, hit{title: title, score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].title < hits[j].title
	})

	out := make([]string, 0, min(limit, len(hits)))
	for _, h := range hits[:min(limit, len(hits))] {
		out = append(out, h.title)
	}
	return out, nil
}

// Normalize lower-cases s, drops everything but letters, digits and
// spaces, and collapses runs of spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}
