// Package ogimet fetches SYNOP bulletins from the OGIMET
// display_synopsc2.php service.
package ogimet

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the OGIMET SYNOP display endpoint.
	DefaultBaseURL = "https://www.ogimet.com/display_synopsc2.php"

	// DefaultCountry is the OGIMET "estado" filter.
	DefaultCountry = "India"

	// SynopInterval is the spacing of main and intermediate synoptic hours.
	SynopInterval = 3 * time.Hour
)

// ErrNoPreBlock is returned when a response has no <pre> element.
var ErrNoPreBlock = errors.New("no <pre> tag found in response")

var (
	preOpen  = regexp.MustCompile(`(?i)<pre>`)
	preClose = regexp.MustCompile(`(?i)</pre>`)
)

// LatestSynopTime returns the most recent synoptic hour (00, 03, ... 21 UTC)
// at or before now.
func LatestSynopTime(now time.Time) time.Time {
	return now.UTC().Truncate(SynopInterval)
}

// Window is a bulletin time range. A zero Window means the latest synoptic
// hour.
type Window struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether either bound is missing.
func (w Window) IsZero() bool {
	return w.Start.IsZero() || w.End.IsZero()
}

// Resolve returns w, or the latest synoptic hour for both bounds when w is
// incomplete.
func (w Window) Resolve(now time.Time) Window {
	if !w.IsZero() {
		return w
	}
	t := LatestSynopTime(now)
	return Window{Start: t, End: t}
}

// BuildURL returns the bulletin query for country over w. w must be resolved.
func BuildURL(base, country string, w Window) string {
	q := url.Values{}
	q.Set("lang", "en")
	q.Set("estado", country)
	q.Set("tipo", "ALL")
	q.Set("ord", "REV")
	q.Set("nil", "SI")
	q.Set("fmt", "txt")

	q.Set("ano", strconv.Itoa(w.Start.Year()))
	q.Set("mes", strconv.Itoa(int(w.Start.Month())))
	q.Set("day", strconv.Itoa(w.Start.Day()))
	q.Set("hora", strconv.Itoa(w.Start.Hour()))

	q.Set("anof", strconv.Itoa(w.End.Year()))
	q.Set("mesf", strconv.Itoa(int(w.End.Month())))
	q.Set("dayf", strconv.Itoa(w.End.Day()))
	q.Set("horaf", strconv.Itoa(w.End.Hour()))

	q.Set("send", "send")

	return base + "?" + q.Encode()
}

// ExtractPre returns the trimmed text of the first <pre> element. If the
// closing tag is missing the rest of the document is returned and truncated
// is true.
func ExtractPre(html string) (text string, truncated bool, err error) {
	open := preOpen.FindStringIndex(html)
	if open == nil {
		return "", false, ErrNoPreBlock
	}
	rest := html[open[1]:]

	if end := preClose.FindStringIndex(rest); end != nil {
		return strings.TrimSpace(rest[:end[0]]), false, nil
	}
	return strings.TrimSpace(rest), true, nil
}
