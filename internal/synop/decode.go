package synop

import (
	"strconv"
	"strings"
)

// Section markers.
const (
	section3Marker = "333"
	section5Marker = "555"
	section2Prefix = "222"
)

// Decode decodes the SYNOP message for stationID found in raw.
//
// raw may hold several messages, one per line; the first line that contains
// the station indicator is decoded and the rest are ignored. Section 1 starts
// right after the station indicator. If the indicator is missing the whole
// message is treated as section 1.
func Decode(raw, stationID string) Report {
	tokens := tokenize(selectMessage(raw, stationID))

	section1 := tokens
	for i, tok := range tokens {
		if tok == stationID {
			section1 = tokens[i+1:]
			break
		}
	}

	var r Report
	idx := 0

	// iRixhVV
	if idx < len(section1) {
		decodeIndicatorGroup(&r, section1[idx])
		idx++
	}

	// Nddff
	if idx < len(section1) {
		decodeWindGroup(&r, section1[idx])
		idx++
	}

	section := 1
	for _, tok := range section1[idx:] {
		switch {
		case tok == section3Marker:
			section = 3
			continue
		case tok == section5Marker:
			return r
		case section == 1 && len(tok) == 5 && strings.HasPrefix(tok, section2Prefix):
			// Maritime section 2 groups are not decoded.
			section = 2
			continue
		}

		if len(tok) != 5 {
			continue
		}

		switch section {
		case 1:
			decodeSection1Group(&r, tok)
		case 3:
			decodeSection3Group(&r, tok)
		}
	}

	return r
}

// selectMessage returns the first line of raw containing stationID as a
// token, or raw itself when no line does.
func selectMessage(raw, stationID string) string {
	for _, line := range strings.Split(raw, "\n") {
		for _, tok := range tokenize(line) {
			if tok == stationID {
				return line
			}
		}
	}
	return raw
}

// tokenize normalises a message: "=" terminates a group and "/" marks a
// missing digit, which is rewritten as "X".
func tokenize(s string) []string {
	s = strings.ReplaceAll(s, "=", " ")
	s = strings.ReplaceAll(s, "/", "X")
	return strings.Fields(s)
}

func decodeIndicatorGroup(r *Report, grp string) {
	if len(grp) != 5 {
		return
	}

	// ix: 2 and 3 mean manned station with nothing significant to report.
	if ix := grp[1]; ix == '2' || ix == '3' {
		r.PresentWeatherCode = ptr(PresentWeatherNoSignificant)
		r.WeatherObserved = ptr(false)
	}

	if h, ok := digit(grp[2]); ok {
		r.CloudBaseHeightCode = ptr(h)
	}

	if vis, ok := DecodeVisibility(grp[3:5]); ok {
		r.VisibilityKm = ptr(round(vis, 1))
	}
}

func decodeWindGroup(r *Report, grp string) {
	if len(grp) != 5 {
		return
	}

	if n, ok := digit(grp[0]); ok {
		if n > 8 {
			n = 9
		}
		r.CloudCoverOctas = ptr(n)
	}

	dd, errDir := strconv.Atoi(grp[1:3])
	ff, errSpeed := strconv.Atoi(grp[3:5])
	if errDir != nil || errSpeed != nil {
		return
	}

	switch {
	case dd == 0 && ff == 0:
		r.WindDirectionDeg = ptr(0)
	case dd == 99:
		r.WindVariable = true
	default:
		r.WindDirectionDeg = ptr(dd * 10)
	}
	r.WindSpeedKt = ptr(ff)
}

func decodeSection1Group(r *Report, tok string) {
	switch tok[0] {
	case '1':
		if v, ok := signedTenths(tok); ok {
			r.TemperatureC = ptr(v)
		}
	case '2':
		if v, ok := signedTenths(tok); ok {
			r.DewPointC = ptr(v)
		}
	case '3':
		if v, ok := pressure(tok); ok {
			r.StationPressureHPa = ptr(v)
		}
	case '4':
		if v, ok := pressure(tok); ok {
			r.PressureHPa = ptr(v)
		}
	case '5':
		decodeTendency(r, tok)
	case '6':
		if v, ok := precipitation(tok); ok {
			r.PrecipAmountMm = ptr(v)
		}
	case '7':
		if ww := tok[1:3]; !strings.Contains(ww, "X") {
			r.PresentWeatherCode = ptr(ww)
		}
	case '8':
		if n, ok := digit(tok[1]); ok {
			r.LowCloudAmountOctas = ptr(n)
		}
		if c, ok := digit(tok[2]); ok {
			r.LowCloudTypeCode = ptr(c)
		}
		if c, ok := digit(tok[3]); ok {
			r.MidCloudTypeCode = ptr(c)
		}
		if c, ok := digit(tok[4]); ok {
			r.HighCloudTypeCode = ptr(c)
		}
	}
}

func decodeSection3Group(r *Report, tok string) {
	switch tok[0] {
	case '1':
		if v, ok := signedTenths(tok); ok {
			r.MaxTempC = ptr(v)
		}
	case '2':
		if v, ok := signedTenths(tok); ok {
			r.MinTempC = ptr(v)
		}
	case '5':
		decodeTendency(r, tok)
	}
}

// decodeTendency handles 5appp. Characteristics 5-8 (WMO table 0200) mean
// the pressure is lower than three hours ago.
func decodeTendency(r *Report, tok string) {
	a, ok := digit(tok[1])
	if !ok || tok[2] == 'X' {
		return
	}
	ppp, err := strconv.Atoi(tok[2:5])
	if err != nil {
		return
	}

	change := float64(ppp) * 0.1
	if a >= 5 && a <= 8 {
		change = -change
	}

	r.PressureTendencyCharacteristic = ptr(a)
	r.PressureChange3h = ptr(round(change, 1))
}

// signedTenths decodes snTTT groups in tenths of a degree; 999 is missing.
func signedTenths(tok string) (float64, bool) {
	val, err := strconv.Atoi(tok[2:5])
	if err != nil || val == 999 {
		return 0, false
	}
	v := float64(val) * 0.1
	if tok[1] == '1' {
		v = -v
	}
	return round(v, 1), true
}

// pressure decodes PPPP in tenths of hPa with the thousands digit omitted.
func pressure(tok string) (float64, bool) {
	if tok[1] == 'X' {
		return 0, false
	}
	val, err := strconv.Atoi(tok[1:5])
	if err != nil {
		return 0, false
	}
	p := float64(val) * 0.1
	if p < 100 {
		p += 1000
	}
	return round(p, 1), true
}

// precipitation decodes RRR (WMO table 3590). 990 is a trace and 991-999 are
// tenths of a millimetre.
func precipitation(tok string) (float64, bool) {
	code, err := strconv.Atoi(tok[1:4])
	if err != nil {
		return 0, false
	}
	switch {
	case code < 990:
		return float64(code), true
	case code == 990:
		return 0.1, true
	default:
		return round(float64(code-990)*0.1, 1), true
	}
}

func digit(b byte) (int, bool) {
	if b < '0' || b > '9' {
		return 0, false
	}
	return int(b - '0'), true
}

func ptr[T any](v T) *T {
	return &v
}
