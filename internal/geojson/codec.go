package geojson

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Export file naming.
const (
	BulkFilename      = "weather_stations.json"
	rangeTimeLayout   = "200601021504"
	stationFilePrefix = "station_"
)

// Media types.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeGeoJSON = "application/geo+json"
)

// MarshalPretty encodes v as UTF-8 JSON indented with two spaces.
func MarshalPretty(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding json: %w", err)
	}
	return data, nil
}

// Marshal encodes v as compact JSON.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// UnmarshalCollection decodes a feature collection.
func UnmarshalCollection(data []byte) (FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return FeatureCollection{}, fmt.Errorf("decoding feature collection: %w", err)
	}
	if fc.Type != TypeFeatureCollection {
		return FeatureCollection{}, fmt.Errorf("decoding feature collection: unexpected type %q", fc.Type)
	}
	if fc.Features == nil {
		fc.Features = []Feature{}
	}
	return fc, nil
}

// UnmarshalFeature decodes a single feature.
func UnmarshalFeature(data []byte) (Feature, error) {
	var f Feature
	if err := json.Unmarshal(data, &f); err != nil {
		return Feature{}, fmt.Errorf("decoding feature: %w", err)
	}
	return f, nil
}

// StationFilename is the export filename of a single feature.
func StationFilename(stationID string) string {
	return stationFilePrefix + stationID + ".json"
}

// RangeFilename is the export filename of a time-window collection.
func RangeFilename(start, end time.Time) string {
	return fmt.Sprintf("weather_stations_%s_%s.geojson",
		start.UTC().Format(rangeTimeLayout), end.UTC().Format(rangeTimeLayout))
}
