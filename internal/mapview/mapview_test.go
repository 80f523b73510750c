package mapview_test

import (
	"github.com/synopmap/synopmap/internal/geojson"
)

func float(v float64) *float64 { return &v }

func integer(v int) *int { return &v }

// delhi is a named feature with every popup field present.
func delhi() geojson.Feature {
	code := "02"
	return geojson.Feature{
		Type:     geojson.TypeFeature,
		Geometry: geojson.NewPoint(28.5665, 77.1031),
		Properties: geojson.StationProperties{
			StationID:                      "VIDP",
			Name:                           "Delhi",
			Country:                        "India",
			ElevationM:                     216,
			RawSynop:                       "AAXX 15121 42182 32965 00000 10215=\nAAXX 15091 42182 32965 00000 10180=",
			PresentWeatherCode:             &code,
			VisibilityKm:                   float(15),
			CloudCoverOctas:                integer(0),
			WindDirectionDeg:               geojson.Degrees(230),
			WindSpeedKt:                    integer(5),
			TemperatureC:                   float(21.5),
			DewPointC:                      float(7.6),
			PressureHPa:                    float(1014.9),
			StationPressureHPa:             float(1002.7),
			PressureTendencyCharacteristic: integer(2),
			PressureChange3h:               float(1.2),
			PressureTendency3hHPa:          float(1.2),
		},
	}
}

// unnamed has no display name and therefore no interactive layer.
func unnamed() geojson.Feature {
	return geojson.Feature{
		Type:       geojson.TypeFeature,
		Geometry:   geojson.NewPoint(18.9, 72.8),
		Properties: geojson.StationProperties{StationID: "43003"},
	}
}

func collection(features ...geojson.Feature) geojson.FeatureCollection {
	return geojson.NewFeatureCollection(features)
}

func withoutGeometry(f geojson.Feature) geojson.Feature {
	f.Geometry = geojson.Geometry{}
	return f
}
