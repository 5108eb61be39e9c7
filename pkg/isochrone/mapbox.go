package isochrone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/internal/resilience"
)

const mapboxBaseURL = "https://api.mapbox.com"

// Mapbox is a Mapbox Isochrone API client.
type Mapbox struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewMapbox creates a Mapbox client.
func NewMapbox(token string, opts ...Option) *Mapbox {
	o := options{baseURL: mapboxBaseURL}
	for _, opt := range opts {
		opt(&o)
	}
	return &Mapbox{token: token, baseURL: o.baseURL, httpClient: defaultClient(o)}
}

// Name implements Provider.
func (c *Mapbox) Name() string { return "mapbox" }

// Isochrone implements Provider. Mapbox caps contours at 60 minutes.
func (c *Mapbox) Isochrone(ctx context.Context, req Request) (orb.MultiPolygon, error) {
	if req.Mode != model.ModeDriving && req.Mode != "" {
		return nil, eris.Errorf("isochrone: mapbox has no profile for mode %q", req.Mode)
	}
	if req.Minutes <= 0 || req.Minutes > 60 {
		return nil, eris.Errorf("isochrone: invalid minutes %d", req.Minutes)
	}

	params := url.Values{
		"contours_minutes": {strconv.Itoa(req.Minutes)},
		"polygons":         {"true"},
		"access_token":     {c.token},
	}
	u := fmt.Sprintf("%s/isochrone/v1/mapbox/driving/%s,%s?%s",
		c.baseURL,
		strconv.FormatFloat(req.Location.Lon(), 'f', 6, 64),
		strconv.FormatFloat(req.Location.Lat(), 'f', 6, 64),
		params.Encode(),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: build request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// the URL carries the access token
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = c.baseURL + "/isochrone/v1/mapbox/driving"
		}
		return nil, eris.Wrap(err, "isochrone: mapbox request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrap(resilience.StatusError("mapbox", resp.StatusCode, body), "isochrone")
	}
	return decodePolygons(body)
}
