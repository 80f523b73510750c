// Package synop decodes WMO FM-12 SYNOP land station reports as published by
// OGIMET in its plain-text bulletin format.
package synop

import "errors"

// Decoding errors.
var (
	ErrInvalidDMS = errors.New("invalid DMS coordinate")
	ErrNoStations = errors.New("no station headers found")
)

// PresentWeatherNoSignificant is the weather code used when the indicator
// group reports that no significant weather was observed.
const PresentWeatherNoSignificant = "no_sig"

// Report holds the variables decoded from a single SYNOP message.
// A nil field means the group was absent or reported as missing.
type Report struct {
	// Section 1, fixed groups.
	PresentWeatherCode  *string
	WeatherObserved     *bool
	CloudBaseHeightCode *int
	VisibilityKm        *float64
	CloudCoverOctas     *int
	WindDirectionDeg    *int
	WindVariable        bool
	WindSpeedKt         *int

	// Section 1, variable groups.
	TemperatureC                   *float64
	DewPointC                      *float64
	StationPressureHPa             *float64
	PressureHPa                    *float64
	PressureTendencyCharacteristic *int
	PressureChange3h               *float64
	PrecipAmountMm                 *float64
	LowCloudAmountOctas            *int
	LowCloudTypeCode               *int
	MidCloudTypeCode               *int
	HighCloudTypeCode              *int

	// Section 3.
	MaxTempC *float64
	MinTempC *float64
}

// Station is one station block of a bulletin: header metadata, the raw
// report text and its decoded variables.
type Station struct {
	ID         string
	Name       string
	Country    string
	Lat        float64
	Lon        float64
	ElevationM int

	// Raw is the cleaned report text (one message per line).
	Raw string

	Report Report
}
