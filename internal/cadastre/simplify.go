package cadastre

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
	"github.com/peterstace/simplefeatures/geom"
)

// metresPerDegree is the length of a degree of latitude, used to express a
// metric tolerance in geographic coordinates.
const metresPerDegree = 111_320.0

// Simplify runs Douglas-Peucker on every ring. A ring that would drop below
// four points keeps its original vertices so no footprint disappears. A
// polygon whose simplified rings are no longer valid, or whose holes leave
// the shell, keeps its original rings.
func Simplify(mp orb.MultiPolygon, tolerance float64) orb.MultiPolygon {
	if tolerance <= 0 {
		return mp
	}
	dp := simplify.DouglasPeucker(tolerance)

	out := make(orb.MultiPolygon, len(mp))
	changed := false
	for i, poly := range mp {
		p := make(orb.Polygon, len(poly))
		for j, ring := range poly {
			p[j] = simplifyRing(dp, ring)
		}
		if !validPolygon(p) {
			p = poly
		} else {
			changed = true
		}
		out[i] = p
	}
	if changed && len(out) > 1 && !valid(out) {
		return mp
	}
	return out
}

func simplifyRing(dp *simplify.DouglasPeuckerSimplifier, ring orb.Ring) orb.Ring {
	simplified, ok := dp.Simplify(ring.Clone()).(orb.Ring)
	if !ok || len(simplified) < 4 {
		return ring
	}
	return simplified
}

// validPolygon reports whether every hole vertex is within the shell and
// the rings pass OGC validation.
func validPolygon(p orb.Polygon) bool {
	if len(p) == 0 {
		return false
	}
	for _, hole := range p[1:] {
		for _, pt := range hole {
			if !planar.RingContains(p[0], pt) {
				return false
			}
		}
	}
	return valid(p)
}

func valid(g orb.Geometry) bool {
	data, err := wkb.Marshal(g)
	if err != nil {
		return false
	}
	_, err = geom.UnmarshalWKB(data)
	return err == nil
}
