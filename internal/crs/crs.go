// Package crs converts cadastre coordinates into WGS84.
//
// Any system in the wgs84 EPSG registry is supported, which covers the UTM
// zones on ETRS89 and WGS84 along with most national grids.
package crs

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rotisserie/eris"
	"github.com/wroge/wgs84"
)

// Well-known codes.
const (
	WGS84       = 4326
	WebMercator = 3857
	geocentric  = 4978
)

// ErrUnsupported is returned for EPSG codes without a transformer.
var ErrUnsupported = eris.New("crs: unsupported EPSG code")

var registry = wgs84.EPSG()

// Transformer maps points between a projected or geographic system and WGS84
// longitude/latitude.
type Transformer interface {
	EPSG() int
	// Geographic reports whether coordinates are degrees.
	Geographic() bool
	ToWGS84(p orb.Point) orb.Point
	FromWGS84(p orb.Point) orb.Point
}

// New returns the transformer for epsg.
func New(epsg int) (Transformer, error) {
	switch epsg {
	case WGS84:
		return identity{}, nil
	case WebMercator:
		return mercator{}, nil
	case geocentric:
		return nil, eris.Wrapf(ErrUnsupported, "EPSG:%d is geocentric", epsg)
	}

	src, err := registry.SafeCode(epsg)
	if err != nil {
		return nil, eris.Wrapf(ErrUnsupported, "EPSG:%d", epsg)
	}
	dst := registry.Code(WGS84)
	return &registered{
		code: epsg,
		to:   wgs84.Transform(src, dst),
		from: wgs84.Transform(dst, src),
	}, nil
}

type identity struct{}

func (identity) EPSG() int                       { return WGS84 }
func (identity) Geographic() bool                { return true }
func (identity) ToWGS84(p orb.Point) orb.Point   { return p }
func (identity) FromWGS84(p orb.Point) orb.Point { return p }

type mercator struct{}

func (mercator) EPSG() int                       { return WebMercator }
func (mercator) Geographic() bool                { return false }
func (mercator) ToWGS84(p orb.Point) orb.Point   { return project.Mercator.ToWGS84(p) }
func (mercator) FromWGS84(p orb.Point) orb.Point { return project.WGS84.ToMercator(p) }

// registered wraps a pair of wgs84 transforms.
type registered struct {
	code     int
	to, from wgs84.Func
}

func (r *registered) EPSG() int { return r.code }

// Geographic is true for the 4000 block, where EPSG keeps its 2D
// geographic systems.
func (r *registered) Geographic() bool { return r.code > 4000 && r.code < 5000 }

func (r *registered) ToWGS84(p orb.Point) orb.Point {
	lon, lat, _ := r.to(p[0], p[1], 0)
	return orb.Point{lon, lat}
}

func (r *registered) FromWGS84(p orb.Point) orb.Point {
	x, y, _ := r.from(p[0], p[1], 0)
	return orb.Point{x, y}
}

// Polygon returns a reprojected copy of p.
func Polygon(t Transformer, p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		r := make(orb.Ring, len(ring))
		for j, pt := range ring {
			r[j] = t.ToWGS84(pt)
		}
		out[i] = r
	}
	return out
}
