// Package classify decides which buildings lie within the union of a
// region's isochrones.
package classify

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/planar"
	"github.com/peterstace/simplefeatures/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/isoreach/internal/model"
)

// ErrNoIsochrones is returned when there is nothing to take a union of.
var ErrNoIsochrones = eris.New("classify: no isochrones")

const rectPad = 1e-9

type polyEntry struct {
	poly orb.Polygon
	geom geom.Geometry
	rect rtreego.Rect
}

func (e *polyEntry) Bounds() rtreego.Rect { return e.rect }

// Area is the union of a set of isochrones. Polygons are indexed by their
// bounds and only unioned locally, for buildings that straddle more than
// one of them.
type Area struct {
	polys *rtreego.Rtree
	size  int
}

// NewArea indexes the isochrone geometries. Polygons that fail validation
// are skipped with a warning.
func NewArea(isochrones []model.Isochrone) (*Area, error) {
	a := &Area{polys: rtreego.NewTree(2, 25, 50)}
	for _, iso := range isochrones {
		for _, poly := range iso.Geometry {
			if len(poly) == 0 || len(poly[0]) < 4 {
				continue
			}
			g, err := toGeometry(poly)
			if err != nil {
				zap.L().Warn("skipping invalid isochrone polygon",
					zap.String("component", "classify"),
					zap.Int64("station_id", iso.StationID),
					zap.Error(err),
				)
				continue
			}
			a.polys.Insert(&polyEntry{poly: poly, geom: g, rect: rectOf(poly.Bound())})
			a.size++
		}
	}
	if a.size == 0 {
		return nil, ErrNoIsochrones
	}
	return a, nil
}

// Polygons returns the number of indexed polygons.
func (a *Area) Polygons() int { return a.size }

func rectOf(b orb.Bound) rtreego.Rect {
	w := math.Max(b.Max[0]-b.Min[0], 0) + 2*rectPad
	h := math.Max(b.Max[1]-b.Min[1], 0) + 2*rectPad
	r, _ := rtreego.NewRect(rtreego.Point{b.Min[0] - rectPad, b.Min[1] - rectPad}, []float64{w, h})
	return r
}

func (a *Area) candidates(b orb.Bound) []*polyEntry {
	found := a.polys.SearchIntersect(rectOf(b))
	out := make([]*polyEntry, len(found))
	for i, s := range found {
		out[i] = s.(*polyEntry)
	}
	return out
}

// CoversPoint reports whether p is in the union. Points on the boundary
// are covered.
func (a *Area) CoversPoint(p orb.Point) bool {
	cands := a.candidates(orb.Bound{Min: p, Max: p})
	if len(cands) == 0 {
		return false
	}
	g, err := toGeometry(p)
	if err != nil {
		return false
	}
	for _, c := range cands {
		if covers(c.geom, g) {
			return true
		}
	}
	return false
}

// Covers reports whether the whole of mp lies within the union.
func (a *Area) Covers(mp orb.MultiPolygon) bool {
	if !hasVertex(mp) {
		return false
	}
	cands := a.candidates(mp.Bound())
	if len(cands) == 0 {
		return false
	}
	g, err := toGeometry(mp)
	if err != nil {
		return a.coversVertices(mp, cands)
	}

	touching := make([]geom.Geometry, 0, len(cands))
	for _, c := range cands {
		if covers(c.geom, g) {
			return true
		}
		if geom.Intersects(c.geom, g) {
			touching = append(touching, c.geom)
		}
	}
	if len(touching) < 2 {
		return false
	}

	union := touching[0]
	for _, t := range touching[1:] {
		union, err = geom.Union(union, t)
		if err != nil {
			zap.L().Warn("isochrone union failed",
				zap.String("component", "classify"),
				zap.Error(err),
			)
			return a.coversVertices(mp, cands)
		}
	}
	return covers(union, g)
}

// coversVertices is the fallback for footprints that cannot be built as a
// valid geometry: every vertex must fall in some candidate polygon.
func (a *Area) coversVertices(mp orb.MultiPolygon, cands []*polyEntry) bool {
	for _, poly := range mp {
		for _, ring := range poly {
			for _, p := range ring {
				in := false
				for _, c := range cands {
					if planar.PolygonContains(c.poly, p) {
						in = true
						break
					}
				}
				if !in {
					return false
				}
			}
		}
	}
	return true
}

func covers(a, b geom.Geometry) bool {
	ok, err := geom.Covers(a, b)
	return err == nil && ok
}

// toGeometry converts an orb geometry through WKB. Decoding validates the
// result.
func toGeometry(g orb.Geometry) (geom.Geometry, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return geom.Geometry{}, eris.Wrap(err, "classify: encode wkb")
	}
	out, err := geom.UnmarshalWKB(data)
	if err != nil {
		return geom.Geometry{}, eris.Wrap(err, "classify: decode wkb")
	}
	return out, nil
}

func hasVertex(mp orb.MultiPolygon) bool {
	for _, poly := range mp {
		if len(poly) > 0 && len(poly[0]) > 0 {
			return true
		}
	}
	return false
}
