package cadastre

import (
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
)

// Record is one polygon feature read from a shapefile.
type Record struct {
	Row      int
	Geometry orb.MultiPolygon
}

// ReadShapefile returns every polygon record in path. Null and non-polygon
// shapes are skipped and counted.
func ReadShapefile(path string) ([]Record, int, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "cadastre: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	var (
		records []Record
		skipped int
	)
	for reader.Next() {
		row, shape := reader.Shape()
		mp := shapeToMultiPolygon(shape)
		if len(mp) == 0 {
			skipped++
			continue
		}
		records = append(records, Record{Row: row, Geometry: mp})
	}
	if err := reader.Err(); err != nil {
		return records, skipped, eris.Wrapf(err, "cadastre: read shapefile %s", path)
	}
	return records, skipped, nil
}

func shapeToMultiPolygon(shape shp.Shape) orb.MultiPolygon {
	switch s := shape.(type) {
	case *shp.Polygon:
		return partsToMultiPolygon(s.Parts, s.Points)
	case *shp.PolygonZ:
		return partsToMultiPolygon(s.Parts, s.Points)
	case *shp.PolygonM:
		return partsToMultiPolygon(s.Parts, s.Points)
	}
	return nil
}

// partsToMultiPolygon splits a shapefile point array into rings. Shapefiles
// store exterior rings clockwise and holes counter-clockwise; each hole goes
// to the first exterior that contains it.
func partsToMultiPolygon(parts []int32, points []shp.Point) orb.MultiPolygon {
	var exteriors, holes []orb.Ring
	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || end > len(points) || end-start < 4 {
			continue
		}

		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		if ring.Orientation() == orb.CCW && len(exteriors) > 0 {
			holes = append(holes, ring)
			continue
		}
		exteriors = append(exteriors, ring)
	}

	mp := make(orb.MultiPolygon, 0, len(exteriors))
	for _, ext := range exteriors {
		mp = append(mp, orb.Polygon{ext})
	}
	for _, h := range holes {
		for i := range mp {
			if planar.RingContains(mp[i][0], h[0]) {
				mp[i] = append(mp[i], h)
				break
			}
		}
	}
	return mp
}
