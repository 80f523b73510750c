// Package mapview models the station map widget: a base tile layer, an
// overlay of station markers with popups, per-station and bulk JSON export,
// and the page that hosts it in a browser.
package mapview

// LatLng is a geographic position.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TileLayer is a raster tile source.
type TileLayer struct {
	URLTemplate string `json:"url_template"`
	Attribution string `json:"attribution"`
}

// Icon is the marker icon. It is handed to the renderer at construction and
// never mutated.
type Icon struct {
	IconURL   string `json:"icon_url"`
	ShadowURL string `json:"shadow_url"`
	Size      [2]int `json:"size"`
	Anchor    [2]int `json:"anchor"`
}

// Config is the immutable widget configuration.
type Config struct {
	Center LatLng    `json:"center"`
	Zoom   int       `json:"zoom"`
	Tiles  TileLayer `json:"tiles"`
	Icon   Icon      `json:"icon"`

	// DataURL is the feature collection endpoint fetched on mount.
	DataURL string `json:"data_url"`
}

// Defaults.
const (
	DefaultZoom        = 5
	DefaultDataURL     = "/api/stations"
	DefaultTileURL     = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultAttribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`
)

// DefaultCenter is the geographic centre of India.
var DefaultCenter = LatLng{Lat: 20.5937, Lng: 78.9629}

// LeafletBaseURL hosts the Leaflet script, stylesheet and marker images.
const LeafletBaseURL = "https://unpkg.com/leaflet@1.9.4/dist"

// DefaultIcon is the standard Leaflet marker.
func DefaultIcon() Icon {
	return Icon{
		IconURL:   LeafletBaseURL + "/images/marker-icon.png",
		ShadowURL: LeafletBaseURL + "/images/marker-shadow.png",
		Size:      [2]int{25, 41},
		Anchor:    [2]int{12, 41},
	}
}

// DefaultConfig returns the standard widget configuration.
func DefaultConfig() Config {
	return Config{
		Center: DefaultCenter,
		Zoom:   DefaultZoom,
		Tiles: TileLayer{
			URLTemplate: DefaultTileURL,
			Attribution: DefaultAttribution,
		},
		Icon:    DefaultIcon(),
		DataURL: DefaultDataURL,
	}
}

// WithDataURL returns a copy of c reading from url.
func (c Config) WithDataURL(url string) Config {
	c.DataURL = url
	return c
}
