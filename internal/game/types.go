package game

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxClues is the number of clue sources a well-formed entry carries.
const MaxClues = 6

// Date is a calendar day with no time-of-day or location component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time(time.UTC).Before(other.Time(time.UTC))
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Entry is one guessable title in the catalog.
type Entry struct {
	ID           int64  `yaml:"id"`
	Title        string `yaml:"title"`
	AppID        string `yaml:"app_id"`
	LastSelected *Date  `yaml:"last_selected"`
	Active       bool   `yaml:"active"`
}

// PlayedOn reports whether the entry was last selected on day.
func (e Entry) PlayedOn(day Date) bool {
	return e.LastSelected != nil && *e.LastSelected == day
}

// ClueSource points at one external review page for an entry.
type ClueSource struct {
	EntryID  int64  `yaml:"entry_id"`
	Position int    `yaml:"position"`
	URL      string `yaml:"url"`
}

// Stance is the reviewer's verdict.
type Stance string

// Stance values rendered by the front-end.
const (
	StanceRecommended    Stance = "recommended"
	StanceNotRecommended Stance = "not_recommended"
	StanceUnspecified    Stance = "unspecified"
)

// Failure reasons carried by failed clues.
const (
	ReasonFetchFailed = "fetch-failed"
)

// Clue is the result of acquiring one ClueSource. Exactly one of the success
// fields or the failure fields is meaningful, as reported by Failed.
type Clue struct {
	AuthorName string
	AvatarURL  string
	Stance     Stance
	Playtime   string
	PostedDate string
	Body       string

	Error       bool
	Message     string
	OriginalURL string

	// Missing lists fields that fell back to their defaults while parsing.
	Missing []string
}

// FailedClue builds the failure variant for url.
func FailedClue(reason, url string) Clue {
	return Clue{Error: true, Message: reason, OriginalURL: url}
}

// Failed reports whether c is the failure variant.
func (c Clue) Failed() bool {
	return c.Error
}

// Partial reports whether any field of a successful clue fell back to a default.
func (c Clue) Partial() bool {
	return !c.Error && len(c.Missing) > 0
}

type clueJSON struct {
	AuthorName string `json:"authorName"`
	AvatarURL  string `json:"avatarUrl,omitempty"`
	Stance     Stance `json:"stance"`
	Playtime   string `json:"playtime"`
	PostedDate string `json:"postedDate"`
	Body       string `json:"reviewText"`
}

type failedClueJSON struct {
	Error       bool   `json:"error"`
	Message     string `json:"message"`
	OriginalURL string `json:"originalUrl"`
}

// MarshalJSON renders either the success shape or the failure shape.
func (c Clue) MarshalJSON() ([]byte, error) {
	if c.Error {
		b, err := json.Marshal(failedClueJSON{Error: true, Message: c.Message, OriginalURL: c.OriginalURL})
		if err != nil {
			return nil, fmt.Errorf("marshal failed clue: %w", err)
		}
		return b, nil
	}
	b, err := json.Marshal(clueJSON{
		AuthorName: c.AuthorName,
		AvatarURL:  c.AvatarURL,
		Stance:     c.Stance,
		Playtime:   c.Playtime,
		PostedDate: c.PostedDate,
		Body:       c.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal clue: %w", err)
	}
	return b, nil
}

// Payload is the complete response for one day's puzzle.
type Payload struct {
	Title   string `json:"title"`
	AppID   string `json:"appId"`
	Reviews []Clue `json:"reviews"`
}

// Clone returns a copy of p whose Reviews slice is not shared.
func (p Payload) Clone() Payload {
	cp := p
	cp.Reviews = make([]Clue, len(p.Reviews))
	copy(cp.Reviews, p.Reviews)
	return cp
}
