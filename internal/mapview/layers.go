package mapview

import (
	"fmt"
	"html/template"

	"github.com/synopmap/synopmap/internal/geojson"
)

// Layer is one interactive marker.
type Layer struct {
	StationID string `json:"station_id"`
	Name      string `json:"name"`

	// Position is nil when the feature has no point geometry. The layer
	// keeps its popup and download control but has no marker to place.
	Position *LatLng `json:"position"`

	Popup      template.HTML `json:"popup_html"`
	DownloadID string        `json:"download_id"`
}

// Placed reports whether the layer has a marker position.
func (l Layer) Placed() bool {
	return l.Position != nil
}

// BuildLayers returns one layer per named feature, in collection order.
// Features without a name are not interactive.
func BuildLayers(fc geojson.FeatureCollection) ([]Layer, error) {
	layers := make([]Layer, 0, fc.Len())
	for _, f := range fc.Features {
		if !f.Named() {
			continue
		}

		popup, err := RenderPopup(f)
		if err != nil {
			return nil, fmt.Errorf("rendering popup for %s: %w", f.Properties.StationID, err)
		}

		l := Layer{
			StationID:  f.Properties.StationID,
			Name:       f.Properties.Name,
			Popup:      popup,
			DownloadID: DownloadControlID(f.Properties.StationID),
		}
		if lat, lng, ok := f.Geometry.LatLon(); ok {
			l.Position = &LatLng{Lat: lat, Lng: lng}
		}
		layers = append(layers, l)
	}
	return layers, nil
}

// Unplaced counts the layers without a marker position.
func Unplaced(layers []Layer) int {
	n := 0
	for _, l := range layers {
		if !l.Placed() {
			n++
		}
	}
	return n
}
