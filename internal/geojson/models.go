// Package geojson defines the station feature model served to map clients
// and the JSON codec used for exports.
package geojson

import (
	"errors"
	"slices"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"

	"github.com/synopmap/synopmap/internal/synop"
)

// GeoJSON type names.
const (
	TypeFeatureCollection = "FeatureCollection"
	TypeFeature           = "Feature"
	TypePoint             = "Point"
)

// MissingValue is shown in place of an absent weather code.
const MissingValue = "N/A"

// ErrFeatureNotFound is returned when a station is not in a collection.
var ErrFeatureNotFound = errors.New("feature not found")

// FeatureCollection is an ordered set of station features.
//
// A decoded collection keeps the bytes it was decoded from and encodes back
// to them, so members the typed view does not declare survive a round trip.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`

	raw json.RawMessage
}

type featureCollectionFields FeatureCollection

var (
	_ json.Marshaler   = FeatureCollection{}
	_ json.Unmarshaler = (*FeatureCollection)(nil)
	_ json.Marshaler   = Feature{}
	_ json.Unmarshaler = (*Feature)(nil)
)

// Raw returns the JSON the collection was decoded from, or nil for a
// collection built in code.
func (fc FeatureCollection) Raw() json.RawMessage {
	return fc.raw
}

func (fc FeatureCollection) MarshalJSON() ([]byte, error) {
	if fc.raw != nil {
		return fc.raw, nil
	}
	return json.Marshal(featureCollectionFields(fc))
}

func (fc *FeatureCollection) UnmarshalJSON(data []byte) error {
	var fields featureCollectionFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	fields.raw = slices.Clone(data)
	*fc = FeatureCollection(fields)
	return nil
}

// NewFeatureCollection returns a collection holding features.
func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: TypeFeatureCollection, Features: features}
}

// Len returns the number of features.
func (fc FeatureCollection) Len() int {
	return len(fc.Features)
}

// Find returns the first feature whose station_id is id.
func (fc FeatureCollection) Find(id string) (Feature, error) {
	for _, f := range fc.Features {
		if f.Properties.StationID == id {
			return f, nil
		}
	}
	return Feature{}, ErrFeatureNotFound
}

// Feature is one station observation.
//
// Decoding is lenient: a property or geometry that does not fit the typed
// view is left at its zero value and reported by InvalidFields, while Raw
// and MarshalJSON still carry it unchanged.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   Geometry          `json:"geometry"`
	Properties StationProperties `json:"properties"`

	raw     json.RawMessage
	invalid []string
}

type featureFields struct {
	Type       string            `json:"type"`
	Geometry   Geometry          `json:"geometry"`
	Properties StationProperties `json:"properties"`
}

// Raw returns the JSON the feature was decoded from, or nil for a feature
// built in code.
func (f Feature) Raw() json.RawMessage {
	return f.raw
}

// InvalidFields lists the members that could not be decoded into the typed
// view, sorted. Properties are named by key, the geometry as "geometry".
func (f Feature) InvalidFields() []string {
	return f.invalid
}

func (f Feature) MarshalJSON() ([]byte, error) {
	if f.raw != nil {
		return f.raw, nil
	}
	return json.Marshal(featureFields{Type: f.Type, Geometry: f.Geometry, Properties: f.Properties})
}

func (f *Feature) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type       string          `json:"type"`
		Geometry   json.RawMessage `json:"geometry"`
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	out := Feature{Type: wire.Type, raw: slices.Clone(data)}
	if !isNull(wire.Geometry) {
		if err := json.Unmarshal(wire.Geometry, &out.Geometry); err != nil {
			out.Geometry = Geometry{}
			out.invalid = append(out.invalid, "geometry")
		}
	}
	props, invalid := decodeProperties(wire.Properties)
	out.Properties = props
	out.invalid = append(out.invalid, invalid...)
	slices.Sort(out.invalid)

	*f = out
	return nil
}

// decodeProperties decodes what it can of a properties object. When the
// object as a whole does not fit, each member is decoded on its own and the
// ones that fail are returned.
func decodeProperties(data json.RawMessage) (StationProperties, []string) {
	var props StationProperties
	if isNull(data) {
		return props, nil
	}
	if err := json.Unmarshal(data, &props); err == nil {
		return props, nil
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return StationProperties{}, []string{"properties"}
	}

	props = StationProperties{}
	var invalid []string
	for key, value := range members {
		one, err := json.Marshal(map[string]json.RawMessage{key: value})
		if err == nil {
			var field StationProperties
			if err = json.Unmarshal(one, &field); err == nil {
				err = json.Unmarshal(one, &props)
			}
		}
		if err != nil {
			invalid = append(invalid, key)
		}
	}
	return props, invalid
}

func isNull(data json.RawMessage) bool {
	return len(data) == 0 || string(data) == "null"
}

// Named reports whether the feature has a display name. Only named
// features get an interactive layer on the map.
func (f Feature) Named() bool {
	return f.Properties.Name != ""
}

// Geometry is a GeoJSON Point. Coordinates are [lon, lat].
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// NewPoint returns a Point geometry for lat/lon.
func NewPoint(lat, lon float64) Geometry {
	return Geometry{Type: TypePoint, Coordinates: []float64{lon, lat}}
}

// LatLon returns the point as latitude, longitude.
func (g Geometry) LatLon() (lat, lon float64, ok bool) {
	if len(g.Coordinates) < 2 {
		return 0, 0, false
	}
	return g.Coordinates[1], g.Coordinates[0], true
}

// StationProperties is the properties record of a station feature.
// Measurements are optional; a nil field is omitted from JSON.
type StationProperties struct {
	StationID  string `json:"station_id" jsonschema:"description=WMO station index"`
	Name       string `json:"name,omitempty"`
	Country    string `json:"country,omitempty"`
	ElevationM int    `json:"elevation_m"`
	RawSynop   string `json:"raw_synop" jsonschema:"description=Raw SYNOP text, one message per line"`

	PresentWeatherCode  *string        `json:"present_weather_code,omitempty" jsonschema:"description=WMO ww code or no_sig"`
	WeatherObserved     *bool          `json:"weather_observed,omitempty"`
	CloudBaseHeightCode *int           `json:"cloud_base_height_code,omitempty"`
	VisibilityKm        *float64       `json:"visibility_km,omitempty"`
	CloudCoverOctas     *int           `json:"cloud_cover_octas,omitempty"`
	WindDirectionDeg    *WindDirection `json:"wind_direction_deg,omitempty"`
	WindSpeedKt         *int           `json:"wind_speed_kt,omitempty"`

	TemperatureC                   *float64 `json:"temperature_c,omitempty"`
	DewPointC                      *float64 `json:"dew_point_c,omitempty"`
	PressureHPa                    *float64 `json:"pressure_hpa,omitempty" jsonschema:"description=Sea level pressure"`
	StationPressureHPa             *float64 `json:"station_pressure_hpa,omitempty"`
	PressureTendencyCharacteristic *int     `json:"pressure_tendency_characteristic,omitempty"`
	PressureChange3h               *float64 `json:"pressure_change_3h,omitempty"`
	PressureTendency3hHPa          *float64 `json:"pressure_tendency_3h_hpa,omitempty"`
	PrecipAmountMm                 *float64 `json:"precip_amount_mm,omitempty"`
	LowCloudAmountOctas            *int     `json:"low_cloud_amount_octas,omitempty"`
	LowCloudTypeCode               *int     `json:"low_cloud_type_code,omitempty"`
	MidCloudTypeCode               *int     `json:"mid_cloud_type_code,omitempty"`
	HighCloudTypeCode              *int     `json:"high_cloud_type_code,omitempty"`
	MaxTempC                       *float64 `json:"max_temp_c,omitempty"`
	MinTempC                       *float64 `json:"min_temp_c,omitempty"`
}

// WeatherCodeOrDefault returns the present weather code, or MissingValue
// when it is absent or empty.
func (p StationProperties) WeatherCodeOrDefault() string {
	if p.PresentWeatherCode == nil || *p.PresentWeatherCode == "" {
		return MissingValue
	}
	return *p.PresentWeatherCode
}

var (
	_ json.Marshaler   = WindDirection{}
	_ json.Unmarshaler = (*WindDirection)(nil)
)

// variableWind is the JSON value of a variable wind direction.
const variableWind = "Variable"

// WindDirection is a wind direction in degrees, or variable.
// It encodes as a JSON number, or the string "Variable".
type WindDirection struct {
	Degrees  int
	Variable bool
}

// Degrees returns a fixed wind direction.
func Degrees(d int) *WindDirection {
	return &WindDirection{Degrees: d}
}

// Variable returns a variable wind direction.
func Variable() *WindDirection {
	return &WindDirection{Variable: true}
}

// String renders the direction for display.
func (w WindDirection) String() string {
	if w.Variable {
		return variableWind
	}
	return strconv.Itoa(w.Degrees)
}

func (w WindDirection) MarshalJSON() ([]byte, error) {
	if w.Variable {
		return json.Marshal(variableWind)
	}
	return json.Marshal(w.Degrees)
}

func (w *WindDirection) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != variableWind {
			return errors.New("wind direction must be a number or \"Variable\"")
		}
		*w = WindDirection{Variable: true}
		return nil
	}

	var d int
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	*w = WindDirection{Degrees: d}
	return nil
}

// JSONSchema describes the number-or-"Variable" encoding.
func (WindDirection) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer"},
			{Type: "string", Enum: []any{variableWind}},
		},
		Description: "Wind direction in degrees, or Variable",
	}
}

// FromStation builds a feature from a decoded bulletin station.
func FromStation(st synop.Station) Feature {
	r := st.Report
	props := StationProperties{
		StationID:  st.ID,
		Name:       st.Name,
		Country:    st.Country,
		ElevationM: st.ElevationM,
		RawSynop:   st.Raw,

		PresentWeatherCode:  r.PresentWeatherCode,
		WeatherObserved:     r.WeatherObserved,
		CloudBaseHeightCode: r.CloudBaseHeightCode,
		VisibilityKm:        r.VisibilityKm,
		CloudCoverOctas:     r.CloudCoverOctas,
		WindSpeedKt:         r.WindSpeedKt,

		TemperatureC:                   r.TemperatureC,
		DewPointC:                      r.DewPointC,
		PressureHPa:                    r.PressureHPa,
		StationPressureHPa:             r.StationPressureHPa,
		PressureTendencyCharacteristic: r.PressureTendencyCharacteristic,
		PressureChange3h:               r.PressureChange3h,
		PressureTendency3hHPa:          r.PressureChange3h,
		PrecipAmountMm:                 r.PrecipAmountMm,
		LowCloudAmountOctas:            r.LowCloudAmountOctas,
		LowCloudTypeCode:               r.LowCloudTypeCode,
		MidCloudTypeCode:               r.MidCloudTypeCode,
		HighCloudTypeCode:              r.HighCloudTypeCode,
		MaxTempC:                       r.MaxTempC,
		MinTempC:                       r.MinTempC,
	}

	switch {
	case r.WindVariable:
		props.WindDirectionDeg = Variable()
	case r.WindDirectionDeg != nil:
		props.WindDirectionDeg = Degrees(*r.WindDirectionDeg)
	}

	return Feature{
		Type:       TypeFeature,
		Geometry:   NewPoint(st.Lat, st.Lon),
		Properties: props,
	}
}

// FromStations converts bulletin stations to a collection, keeping order.
func FromStations(stations []synop.Station) FeatureCollection {
	features := make([]Feature, 0, len(stations))
	for _, st := range stations {
		features = append(features, FromStation(st))
	}
	return NewFeatureCollection(features)
}
