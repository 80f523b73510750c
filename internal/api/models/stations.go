package models

import (
	"html/template"

	"github.com/synopmap/synopmap/internal/geojson"
)

// Snapshot describes a stored station snapshot. Collection is only set when
// a single snapshot is requested.
type Snapshot struct {
	ID           string                     `json:"id"`
	Country      string                     `json:"country"`
	WindowStart  Timestamp                  `json:"windowStart"`
	WindowEnd    Timestamp                  `json:"windowEnd"`
	FetchedAt    Timestamp                  `json:"fetchedAt"`
	Source       string                     `json:"source"`
	StationCount int                        `json:"stationCount"`
	Collection   *geojson.FeatureCollection `json:"collection,omitempty"`
}

// SnapshotList is a page of snapshot summaries, newest first.
type SnapshotList struct {
	Items []Snapshot `json:"items"`
	Meta  ListMeta   `json:"meta"`
}

// ListMeta describes a list response.
type ListMeta struct {
	Limit int `json:"limit"`
	Count int `json:"count"`
}

// MapLayer is one station marker with its server-rendered popup. Lat and
// Lng are omitted for a station without a point geometry.
type MapLayer struct {
	StationID  string        `json:"stationId"`
	Name       string        `json:"name"`
	Lat        *float64      `json:"lat,omitempty"`
	Lng        *float64      `json:"lng,omitempty"`
	PopupHTML  template.HTML `json:"popupHtml"`
	DownloadID string        `json:"downloadId"`
}

// MapLayers is the layer list of the current snapshot.
type MapLayers struct {
	SnapshotID string     `json:"snapshotId"`
	Layers     []MapLayer `json:"layers"`
}

// RefreshResult is returned by a forced refresh.
type RefreshResult struct {
	Snapshot    Snapshot `json:"snapshot"`
	RequestedBy string   `json:"requestedBy,omitempty"`
}
