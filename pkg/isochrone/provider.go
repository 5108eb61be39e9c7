// Package isochrone requests drive-time polygons from routing services.
package isochrone

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/isoreach/internal/model"
)

// ErrEmpty is returned when a service answers without any polygon.
var ErrEmpty = eris.New("isochrone: empty geometry")

// Request describes one isochrone.
type Request struct {
	Location orb.Point
	Minutes  int
	Mode     model.TravelMode
}

// Provider returns the area reachable from a location.
type Provider interface {
	Name() string
	Isochrone(ctx context.Context, req Request) (orb.MultiPolygon, error)
}

// Option configures a provider.
type Option func(*options)

type options struct {
	httpClient *http.Client
	baseURL    string
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithBaseURL overrides the service root.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// New builds the named provider: "openrouteservice" or "mapbox".
func New(name, apiKey string, opts ...Option) (Provider, error) {
	switch name {
	case "openrouteservice", "ors", "":
		return NewORS(apiKey, opts...), nil
	case "mapbox":
		return NewMapbox(apiKey, opts...), nil
	}
	return nil, eris.Errorf("isochrone: unknown provider %q", name)
}

// decodePolygons merges every Polygon and MultiPolygon feature of a GeoJSON
// FeatureCollection into one MultiPolygon.
func decodePolygons(body []byte) (orb.MultiPolygon, error) {
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: decode geojson")
	}

	var mp orb.MultiPolygon
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			if len(g) > 0 && len(g[0]) >= 4 {
				mp = append(mp, g)
			}
		case orb.MultiPolygon:
			for _, p := range g {
				if len(p) > 0 && len(p[0]) >= 4 {
					mp = append(mp, p)
				}
			}
		}
	}
	if len(mp) == 0 {
		return nil, ErrEmpty
	}
	return mp, nil
}

func defaultClient(o options) *http.Client {
	if o.httpClient != nil {
		return o.httpClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}
