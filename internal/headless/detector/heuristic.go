// Package detector decides when a statically fetched review page needs a
// headless render.
package detector

import (
	"bytes"
	"strings"
)

// DefaultBodyLengthThreshold is the size under which script-heavy pages are
// treated as client-rendered shells.
const DefaultBodyLengthThreshold = 2048

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = DefaultBodyLengthThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// Steam serves an interstitial instead of the review for age-restricted
// titles.
var gateMarkers = [][]byte{
	[]byte("agegate"),
	[]byte("age_gate"),
	[]byte("app_agegate"),
}

var reviewMarkers = [][]byte{
	[]byte("ReviewText"),
	[]byte("review_body"),
	[]byte("recommendation_date"),
}

// ShouldPromote reports whether body looks like a shell or interstitial
// rather than a rendered review page.
func (h *Heuristic) ShouldPromote(body []byte) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	for _, marker := range gateMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	if containsAny(body, reviewMarkers) {
		return false
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	return containsAny(body, spaMarkers)
}

func containsAny(body []byte, markers [][]byte) bool {
	for _, marker := range markers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Unterminated tag covers the rest of the document.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 25
}
