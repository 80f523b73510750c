package synop

import (
	"regexp"
	"strconv"
	"strings"
)

// headerPattern matches OGIMET station headers, e.g.
//
//	# SYNOPS from 42182, New Delhi / Safdarjung (India) | 28-35-00N | 077-12-00E | 216 m
var headerPattern = regexp.MustCompile(
	`#\s+SYNOPS from (\d+), (.+?) \((.+?)\) \| (\d{2,3}-\d{2}-\d{2}[NS]) \| (\d{3}-\d{2}-\d{2}[EW]) \| (\d+) m`,
)

// ParseBulletin splits an OGIMET text bulletin into station blocks and
// decodes each block's report. Stations whose coordinates cannot be parsed
// are skipped. The returned slice keeps bulletin order.
func ParseBulletin(content string) []Station {
	matches := headerPattern.FindAllStringSubmatchIndex(content, -1)
	stations := make([]Station, 0, len(matches))

	for i, m := range matches {
		group := func(n int) string {
			return content[m[2*n]:m[2*n+1]]
		}

		lat, err := ParseDMS(group(4))
		if err != nil {
			continue
		}
		lon, err := ParseDMS(group(5))
		if err != nil {
			continue
		}
		elevation, _ := strconv.Atoi(group(6))

		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		raw := cleanBlock(content[m[1]:end])

		id := group(1)
		stations = append(stations, Station{
			ID:         id,
			Name:       group(2),
			Country:    group(3),
			Lat:        lat,
			Lon:        lon,
			ElevationM: elevation,
			Raw:        raw,
			Report:     Decode(raw, id),
		})
	}

	return stations
}

// cleanBlock drops blank lines and "#" separator lines from a station block.
func cleanBlock(block string) string {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// FirstLine returns the first line of a raw report.
func FirstLine(raw string) string {
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		return raw[:i]
	}
	return raw
}
