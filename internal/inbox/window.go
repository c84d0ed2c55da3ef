package inbox

import (
	"fmt"
	"strings"
	"time"
)

// LookbackMode selects how far back a run searches
type LookbackMode int

const (
	LookbackWide   LookbackMode = iota // First run: backfill history
	LookbackNarrow                     // Later runs: only recent mail
)

func (m LookbackMode) String() string {
	switch m {
	case LookbackWide:
		return "wide"
	case LookbackNarrow:
		return "narrow"
	default:
		return fmt.Sprintf("LookbackMode(%d)", int(m))
	}
}

// ParseLookbackMode parses "wide" or "narrow"
func ParseLookbackMode(s string) (LookbackMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wide":
		return LookbackWide, nil
	case "narrow":
		return LookbackNarrow, nil
	}
	return 0, fmt.Errorf("unknown lookback mode %q (want wide or narrow)", s)
}

// Window holds the lookback span of each mode
type Window struct {
	Wide   time.Duration
	Narrow time.Duration
}

// DefaultWindow is 730 days on the first run and 30 minutes afterwards
var DefaultWindow = Window{
	Wide:   730 * 24 * time.Hour,
	Narrow: 30 * time.Minute,
}

// Span returns the lookback duration for mode
func (w Window) Span(mode LookbackMode) time.Duration {
	if mode == LookbackNarrow {
		return w.Narrow
	}
	return w.Wide
}

// Threshold returns the earliest instant a message may have to be kept
func (w Window) Threshold(mode LookbackMode, now time.Time) time.Time {
	return now.Add(-w.Span(mode))
}

// SearchKeywords are the subject words a candidate message must contain
var SearchKeywords = []string{"application", "rejected", "unfortunately"}

// SearchQuery renders the candidate search in Gmail query syntax, e.g.
// "(subject:application OR subject:rejected OR subject:unfortunately) newer_than:730d".
func (w Window) SearchQuery(mode LookbackMode) string {
	terms := make([]string, len(SearchKeywords))
	for i, kw := range SearchKeywords {
		terms[i] = "subject:" + kw
	}
	return fmt.Sprintf("(%s) newer_than:%s", strings.Join(terms, " OR "), formatSpan(w.Span(mode)))
}

func formatSpan(d time.Duration) string {
	day := 24 * time.Hour
	switch {
	case d >= day && d%day == 0:
		return fmt.Sprintf("%dd", d/day)
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}

// MatchesSearch reports whether subject satisfies the keyword search
func MatchesSearch(subject string) bool {
	return containsAny(strings.ToLower(subject), SearchKeywords)
}
