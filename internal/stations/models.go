// Package stations maintains the current station snapshot: it fetches SYNOP
// bulletins, decodes them into feature collections, caches and persists the
// result, and announces new snapshots.
package stations

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/synopmap/synopmap/internal/geojson"
	"github.com/synopmap/synopmap/internal/ogimet"
)

// Service errors.
var (
	ErrSnapshotNotFound    = errors.New("snapshot not found")
	ErrStationNotFound     = errors.New("station not found")
	ErrProviderUnavailable = errors.New("station data provider unavailable")
	ErrInvalidWindow       = errors.New("invalid time window")
	ErrRefreshInProgress   = errors.New("snapshot refresh already in progress")
)

// MaxWindow bounds ad-hoc range requests.
const MaxWindow = 7 * 24 * time.Hour

// Snapshot is one decoded bulletin.
type Snapshot struct {
	ID          string
	Country     string
	WindowStart time.Time
	WindowEnd   time.Time
	FetchedAt   time.Time
	Source      string
	Collection  geojson.FeatureCollection
}

// NewSnapshot stamps a collection with a fresh ULID.
func NewSnapshot(source, country string, w ogimet.Window, fc geojson.FeatureCollection, fetchedAt time.Time) *Snapshot {
	return &Snapshot{
		ID:          ulid.MustNew(ulid.Timestamp(fetchedAt), ulid.DefaultEntropy()).String(),
		Country:     country,
		WindowStart: w.Start.UTC(),
		WindowEnd:   w.End.UTC(),
		FetchedAt:   fetchedAt.UTC(),
		Source:      source,
		Collection:  fc,
	}
}

// Window returns the bulletin time range.
func (s *Snapshot) Window() ogimet.Window {
	return ogimet.Window{Start: s.WindowStart, End: s.WindowEnd}
}

// Summary describes a snapshot without its features.
func (s *Snapshot) Summary() Summary {
	return Summary{
		ID:           s.ID,
		Country:      s.Country,
		WindowStart:  s.WindowStart,
		WindowEnd:    s.WindowEnd,
		FetchedAt:    s.FetchedAt,
		Source:       s.Source,
		StationCount: s.Collection.Len(),
	}
}

// Summary is snapshot metadata.
type Summary struct {
	ID           string    `json:"id"`
	Country      string    `json:"country"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	FetchedAt    time.Time `json:"fetched_at"`
	Source       string    `json:"source"`
	StationCount int       `json:"station_count"`
}

// ValidateWindow checks an ad-hoc range.
func ValidateWindow(w ogimet.Window) error {
	switch {
	case w.IsZero():
		return fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	case w.End.Before(w.Start):
		return fmt.Errorf("%w: end is before start", ErrInvalidWindow)
	case w.End.Sub(w.Start) > MaxWindow:
		return fmt.Errorf("%w: window exceeds %s", ErrInvalidWindow, MaxWindow)
	}
	return nil
}
