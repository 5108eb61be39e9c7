// Package distance finds the nearest railway station to each building.
package distance

import (
	"context"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/sells-group/isoreach/internal/model"
)

// ErrNoStations is returned when there is no station to measure against.
var ErrNoStations = eris.New("distance: no stations")

// Index answers nearest-station queries. Stations are held as unit vectors
// on the sphere; straight-line distance between those is monotone in
// great-circle distance, so the nearest vector is the nearest station.
type Index struct {
	tree     *kdtree.Tree
	stations []model.Station
}

// NewIndex builds an index over stations.
func NewIndex(stations []model.Station) (*Index, error) {
	if len(stations) == 0 {
		return nil, ErrNoStations
	}
	pts := make(places, len(stations))
	for i, s := range stations {
		pts[i] = place{v: unit(s.Location), station: i}
	}
	return &Index{tree: kdtree.New(pts, false), stations: stations}, nil
}

// Nearest returns the station closest to pt and the distance in km.
func (x *Index) Nearest(pt orb.Point) (model.Station, float64) {
	c, _ := x.tree.Nearest(place{v: unit(pt)})
	s := x.stations[c.(place).station]
	return s, geo.DistanceHaversine(pt, s.Location) / 1000
}

// Representative returns the point a building is measured from: its area
// centroid, or the first vertex for degenerate footprints.
func Representative(mp orb.MultiPolygon) orb.Point {
	c, area := planar.CentroidArea(mp)
	if area > 0 && !math.IsNaN(c[0]) {
		return c
	}
	for _, poly := range mp {
		if len(poly) > 0 && len(poly[0]) > 0 {
			return poly[0][0]
		}
	}
	return c
}

// Measure computes the nearest-station distance for every building.
func Measure(ctx context.Context, region string, buildings []model.Building, x *Index) ([]model.DistanceRecord, error) {
	out := make([]model.DistanceRecord, len(buildings))
	for i, b := range buildings {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		s, km := x.Nearest(Representative(b.Geometry))
		out[i] = model.DistanceRecord{
			BuildingIndex:  b.Index,
			Region:         region,
			NearestStation: s.Name,
			DistanceKm:     km,
		}
	}
	return out, nil
}

func unit(p orb.Point) [3]float64 {
	lon, lat := p[0]*math.Pi/180, p[1]*math.Pi/180
	cl := math.Cos(lat)
	return [3]float64{cl * math.Cos(lon), cl * math.Sin(lon), math.Sin(lat)}
}

// place is a kdtree.Comparable station position.
type place struct {
	v       [3]float64
	station int
}

func (p place) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.v[d] - c.(place).v[d]
}

func (p place) Dims() int { return 3 }

// Distance is the squared chord length.
func (p place) Distance(c kdtree.Comparable) float64 {
	q := c.(place)
	var sum float64
	for i := range p.v {
		d := p.v[i] - q.v[i]
		sum += d * d
	}
	return sum
}

type places []place

func (p places) Index(i int) kdtree.Comparable         { return p[i] }
func (p places) Len() int                              { return len(p) }
func (p places) Pivot(d kdtree.Dim) int                { return plane{places: p, Dim: d}.Pivot() }
func (p places) Slice(start, end int) kdtree.Interface { return p[start:end] }

type plane struct {
	kdtree.Dim
	places
}

func (p plane) Less(i, j int) bool { return p.places[i].v[p.Dim] < p.places[j].v[p.Dim] }
func (p plane) Pivot() int         { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.places = p.places[start:end]
	return p
}
func (p plane) Swap(i, j int) { p.places[i], p.places[j] = p.places[j], p.places[i] }
