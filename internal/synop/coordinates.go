package synop

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var dmsPattern = regexp.MustCompile(`^(\d+)-(\d+)-(\d+)([NSEW])`)

// ParseDMS converts a degrees-minutes-seconds string such as "34-02-59N" or
// "074-24-00E" to decimal degrees rounded to six places. Southern and western
// hemispheres are negative.
func ParseDMS(s string) (float64, error) {
	m := dmsPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDMS, s)
	}

	deg, _ := strconv.ParseFloat(m[1], 64)
	minutes, _ := strconv.ParseFloat(m[2], 64)
	seconds, _ := strconv.ParseFloat(m[3], 64)

	v := deg + minutes/60 + seconds/3600
	if m[4] == "S" || m[4] == "W" {
		v = -v
	}

	return round(v, 6), nil
}

// DecodeVisibility converts a two-digit VV code to kilometres using WMO code
// table 4377. It returns false for codes 51-55 and for unparseable input.
func DecodeVisibility(vv string) (float64, bool) {
	code, err := strconv.Atoi(vv)
	if err != nil {
		return 0, false
	}

	switch {
	case code >= 0 && code <= 50:
		return float64(code) * 0.1, true
	case code >= 56 && code <= 80:
		return float64(code - 50), true
	case code >= 81 && code <= 88:
		return 30 + float64(code-80)*5, true
	case code == 89:
		return 75, true // more than 70 km
	}

	switch code {
	case 90, 91:
		return 0.05, true
	case 92:
		return 0.2, true
	case 93:
		return 0.5, true
	case 94:
		return 1, true
	case 95:
		return 2, true
	case 96:
		return 4, true
	case 97:
		return 10, true
	case 98:
		return 20, true
	case 99:
		return 50, true
	}

	return 0, false
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
