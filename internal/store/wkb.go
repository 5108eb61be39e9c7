package store

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/isoreach/internal/model"
)

// EncodeEWKB converts a polygon set to EWKB bytes with SRID 4326.
func EncodeEWKB(mp orb.MultiPolygon) ([]byte, error) {
	g := geom.NewMultiPolygon(geom.XY).SetSRID(model.EPSGWGS84)

	for i, poly := range mp {
		p := geom.NewPolygon(geom.XY)
		for _, ring := range poly {
			flat := make([]float64, 0, 2*len(ring))
			for _, pt := range ring {
				flat = append(flat, pt[0], pt[1])
			}
			if err := p.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
				zap.L().Debug("store: skipping malformed ring", zap.Int("polygon", i), zap.Error(err))
			}
		}
		if err := g.Push(p); err != nil {
			zap.L().Debug("store: skipping malformed polygon", zap.Int("polygon", i), zap.Error(err))
		}
	}

	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode EWKB")
	}
	return data, nil
}

// DecodeEWKB is the inverse of EncodeEWKB. A plain polygon is accepted too.
func DecodeEWKB(data []byte) (orb.MultiPolygon, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode EWKB")
	}

	switch t := g.(type) {
	case *geom.MultiPolygon:
		mp := make(orb.MultiPolygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			mp = append(mp, toOrbPolygon(t.Polygon(i)))
		}
		return mp, nil
	case *geom.Polygon:
		return orb.MultiPolygon{toOrbPolygon(t)}, nil
	}
	return nil, eris.Errorf("store: unexpected geometry %T", g)
}

func toOrbPolygon(p *geom.Polygon) orb.Polygon {
	poly := make(orb.Polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		coords := p.LinearRing(i).Coords()
		ring := make(orb.Ring, len(coords))
		for j, c := range coords {
			ring[j] = orb.Point{c.X(), c.Y()}
		}
		poly = append(poly, ring)
	}
	return poly
}
