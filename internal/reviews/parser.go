package reviews

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/reviewdle/internal/game"
)

// Defaults applied when a field cannot be extracted.
const (
	DefaultAuthorName = "Steam User"
	NotAvailable      = "N/A"
	DefaultBody       = "Could not load review text."
)

// Field names reported in game.Clue.Missing.
const (
	FieldAuthor   = "author"
	FieldAvatar   = "avatar"
	FieldStance   = "stance"
	FieldPlaytime = "playtime"
	FieldPosted   = "posted_date"
	FieldBody     = "body"
)

type extractor func(doc *goquery.Document) (string, bool)

// fieldRule pairs an extractor with the value used when it finds nothing.
// Optional fields are not reported as missing.
type fieldRule struct {
	name     string
	extract  extractor
	fallback string
	optional bool
	assign   func(c *game.Clue, v string)
}

// Parser extracts clue fields from review page markup.
type Parser struct {
	rules []fieldRule
}

// NewParser returns a Parser for Steam community review pages.
func NewParser() *Parser {
	return &Parser{rules: []fieldRule{
		{
			name:     FieldAuthor,
			extract:  firstText(".persona_name a", ".persona_name", ".profile_small_header_name a", ".profile_small_header_name"),
			fallback: DefaultAuthorName,
			assign:   func(c *game.Clue, v string) { c.AuthorName = v },
		},
		{
			name:     FieldAvatar,
			extract:  firstAttr("src", ".playerAvatar img", ".profile_small_header_avatar img", ".avatar img"),
			optional: true,
			assign:   func(c *game.Clue, v string) { c.AvatarURL = v },
		},
		{
			name:     FieldStance,
			extract:  extractStance,
			fallback: string(game.StanceUnspecified),
			assign:   func(c *game.Clue, v string) { c.Stance = game.Stance(v) },
		},
		{
			name:     FieldPlaytime,
			extract:  extractPlaytime,
			fallback: NotAvailable,
			assign:   func(c *game.Clue, v string) { c.Playtime = v },
		},
		{
			name:     FieldPosted,
			extract:  extractPosted,
			fallback: NotAvailable,
			assign:   func(c *game.Clue, v string) { c.PostedDate = v },
		},
		{
			name:     FieldBody,
			extract:  extractBody,
			fallback: DefaultBody,
			assign:   func(c *game.Clue, v string) { c.Body = v },
		},
	}}
}

// Parse builds a clue from markup. Each field is extracted independently;
// a field that cannot be found takes its default and is listed in Missing.
// Parse only fails when the markup cannot be read at all.
func (p *Parser) Parse(markup []byte) (game.Clue, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return game.Clue{}, fmt.Errorf("parse review markup: %w", err)
	}
	var clue game.Clue
	for _, rule := range p.rules {
		value, ok := rule.extract(doc)
		if !ok {
			value = rule.fallback
			if !rule.optional {
				clue.Missing = append(clue.Missing, rule.name)
			}
		}
		rule.assign(&clue, value)
	}
	return clue, nil
}

func firstText(selectors ...string) extractor {
	return func(doc *goquery.Document) (string, bool) {
		for _, sel := range selectors {
			if text := cleanText(doc.Find(sel).First().Text()); text != "" {
				return text, true
			}
		}
		return "", false
	}
}

func firstAttr(attr string, selectors ...string) extractor {
	return func(doc *goquery.Document) (string, bool) {
		for _, sel := range selectors {
			if v := strings.TrimSpace(doc.Find(sel).First().AttrOr(attr, "")); v != "" {
				return v, true
			}
		}
		return "", false
	}
}

func extractStance(doc *goquery.Document) (string, bool) {
	for _, sel := range []string{".ratingSummary", ".review_box .title", ".rightcol .title"} {
		if stance, ok := stanceFromText(doc.Find(sel).First().Text()); ok {
			return string(stance), true
		}
	}
	icon := doc.Find(".thumb img, .ratingBar img").First().AttrOr("src", "")
	switch {
	case strings.Contains(icon, "icon_thumbsDown"):
		return string(game.StanceNotRecommended), true
	case strings.Contains(icon, "icon_thumbsUp"):
		return string(game.StanceRecommended), true
	}
	return "", false
}

func stanceFromText(text string) (game.Stance, bool) {
	lower := strings.ToLower(cleanText(text))
	switch {
	case strings.Contains(lower, "not recommended"):
		return game.StanceNotRecommended, true
	case strings.Contains(lower, "recommended"):
		return game.StanceRecommended, true
	}
	return "", false
}

func extractPlaytime(doc *goquery.Document) (string, bool) {
	for _, sel := range []string{".hours", ".playTime", ".ratingBar", ".review_box .hours"} {
		if v, ok := ParsePlaytime(doc.Find(sel).First().Text()); ok {
			return v, true
		}
	}
	return "", false
}

var (
	atReviewPattern = regexp.MustCompile(`(?i)([\d][\d,]*(?:\.\d+)?)\s*(?:hrs?|hours?)\s+at\s+review\s+time`)
	onRecordPattern = regexp.MustCompile(`(?i)([\d][\d,]*(?:\.\d+)?)\s*(?:hrs?|hours?)\s+on\s+record`)
)

// ParsePlaytime extracts a playtime from review header text, preferring the
// "N hrs at review time" phrase over "N hrs on record". The result always
// carries an "hrs" suffix.
func ParsePlaytime(text string) (string, bool) {
	text = cleanText(text)
	if m := atReviewPattern.FindStringSubmatch(text); m != nil {
		return m[1] + " hrs", true
	}
	if m := onRecordPattern.FindStringSubmatch(text); m != nil {
		return m[1] + " hrs", true
	}
	return "", false
}

var postedPrefix = regexp.MustCompile(`(?i)^posted:?\s*`)

func extractPosted(doc *goquery.Document) (string, bool) {
	for _, sel := range []string{".recommendation_date", ".date_posted", ".postedDate"} {
		text := cleanText(doc.Find(sel).First().Text())
		if text == "" {
			continue
		}
		// Later lines hold "Updated: ..." notes. An element holding only the
		// note has no posted date, so the next selector is tried.
		if i := strings.Index(strings.ToLower(text), "updated"); i >= 0 {
			text = strings.TrimRight(strings.TrimSpace(text[:i]), ".,;")
		}
		if text = postedPrefix.ReplaceAllString(text, ""); text != "" {
			return text, true
		}
	}
	return "", false
}

func extractBody(doc *goquery.Document) (string, bool) {
	for _, sel := range []string{"#ReviewText", ".review_body", ".content"} {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		node.Find("br").ReplaceWithHtml("\n")
		lines := strings.Split(node.Text(), "\n")
		kept := lines[:0]
		for _, line := range lines {
			if line = cleanText(line); line != "" {
				kept = append(kept, line)
			}
		}
		if len(kept) > 0 {
			return strings.Join(kept, "\n"), true
		}
	}
	return "", false
}

var whitespace = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
