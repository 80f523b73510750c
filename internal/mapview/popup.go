package mapview

import (
	"bytes"
	"embed"
	"html/template"
	"strconv"

	"github.com/synopmap/synopmap/internal/geojson"
	"github.com/synopmap/synopmap/internal/synop"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// absent is shown for measurements the report did not carry.
const absent = "-"

// Popup is the view model of a station popup.
type Popup struct {
	StationID  string
	Title      string
	DownloadID string

	Country                string
	Elevation              string
	Temperature            string
	DewPoint               string
	WindDirection          string
	WindSpeed              string
	Visibility             string
	Pressure               string
	StationPressure        string
	PressureChange         string
	TendencyCharacteristic string
	WeatherCode            string
	CloudCover             string

	// RawFirstLine is the first line of the raw report; exports keep the
	// full text.
	RawFirstLine string
}

// DownloadControlID is the DOM id of a station's download button.
func DownloadControlID(stationID string) string {
	return "download-btn-" + stationID
}

// NewPopup builds the popup view model for f.
func NewPopup(f geojson.Feature) Popup {
	p := f.Properties

	wind := absent
	if p.WindDirectionDeg != nil {
		wind = p.WindDirectionDeg.String()
	}

	return Popup{
		StationID:  p.StationID,
		Title:      p.Name + " (" + p.StationID + ")",
		DownloadID: DownloadControlID(p.StationID),

		Country:                p.Country,
		Elevation:              strconv.Itoa(p.ElevationM),
		Temperature:            formatFloat(p.TemperatureC),
		DewPoint:               formatFloat(p.DewPointC),
		WindDirection:          wind,
		WindSpeed:              formatInt(p.WindSpeedKt),
		Visibility:             formatFloat(p.VisibilityKm),
		Pressure:               formatFloat(p.PressureHPa),
		StationPressure:        formatFloat(p.StationPressureHPa),
		PressureChange:         formatFloat(p.PressureChange3h),
		TendencyCharacteristic: formatInt(p.PressureTendencyCharacteristic),
		WeatherCode:            p.WeatherCodeOrDefault(),
		CloudCover:             formatInt(p.CloudCoverOctas),

		RawFirstLine: synop.FirstLine(p.RawSynop),
	}
}

// RenderPopup renders the popup HTML for f.
func RenderPopup(f geojson.Feature) (template.HTML, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "popup.html", NewPopup(f)); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil //nolint:gosec // produced by html/template
}

func formatFloat(v *float64) string {
	if v == nil {
		return absent
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return absent
	}
	return strconv.Itoa(*v)
}
