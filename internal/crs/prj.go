package crs

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	authorityRe = regexp.MustCompile(`AUTHORITY\["EPSG",\s*"?(\d+)"?\]\s*\]\s*$`)
	utmZoneRe   = regexp.MustCompile(`(?i)(ETRS[_ ]?(?:19)?89|WGS[_ ]?(?:19)?84)[^"]*UTM[_ ]zone[_ ](\d{1,2})N`)
)

// DetectPRJ reads an ESRI .prj sidecar and returns its EPSG code.
func DetectPRJ(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrap(err, "crs: read prj")
	}
	code, ok := ParseWKT(string(data))
	if !ok {
		return 0, eris.Wrapf(ErrUnsupported, "crs: unrecognised prj %s", path)
	}
	return code, nil
}

// ParseWKT recognises the coordinate systems this package supports from
// their WKT1 text. An explicit root AUTHORITY wins over name matching.
func ParseWKT(wkt string) (int, bool) {
	wkt = strings.TrimSpace(wkt)
	if m := authorityRe.FindStringSubmatch(wkt); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			return code, true
		}
	}

	if m := utmZoneRe.FindStringSubmatch(wkt); m != nil {
		zone, _ := strconv.Atoi(m[2])
		if zone < 1 || zone > 60 {
			return 0, false
		}
		if strings.HasPrefix(strings.ToUpper(m[1]), "ETRS") {
			return 25800 + zone, true
		}
		return 32600 + zone, true
	}

	upper := strings.ToUpper(wkt)
	switch {
	case strings.Contains(upper, "PSEUDO_MERCATOR"), strings.Contains(upper, "PSEUDO-MERCATOR"),
		strings.Contains(upper, "WEB_MERCATOR"):
		return WebMercator, true
	case strings.HasPrefix(upper, "GEOGCS") && strings.Contains(upper, "WGS"):
		return WGS84, true
	}
	return 0, false
}
