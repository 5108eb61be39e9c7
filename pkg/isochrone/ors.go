package isochrone

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/internal/resilience"
)

const orsBaseURL = "https://api.openrouteservice.org"

// ORS is an openrouteservice isochrone client.
type ORS struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewORS creates an openrouteservice client.
func NewORS(apiKey string, opts ...Option) *ORS {
	o := options{baseURL: orsBaseURL}
	for _, opt := range opts {
		opt(&o)
	}
	return &ORS{apiKey: apiKey, baseURL: o.baseURL, httpClient: defaultClient(o)}
}

// Name implements Provider.
func (c *ORS) Name() string { return "openrouteservice" }

type orsRequest struct {
	Locations [][2]float64 `json:"locations"`
	Range     []int        `json:"range"`
	RangeType string       `json:"range_type"`
}

func orsProfile(mode model.TravelMode) (string, error) {
	switch mode {
	case model.ModeDriving, "":
		return "driving-car", nil
	}
	return "", eris.Errorf("isochrone: openrouteservice has no profile for mode %q", mode)
}

// Isochrone implements Provider.
func (c *ORS) Isochrone(ctx context.Context, req Request) (orb.MultiPolygon, error) {
	profile, err := orsProfile(req.Mode)
	if err != nil {
		return nil, err
	}
	if req.Minutes <= 0 {
		return nil, eris.Errorf("isochrone: invalid minutes %d", req.Minutes)
	}

	payload, err := json.Marshal(orsRequest{
		Locations: [][2]float64{{req.Location.Lon(), req.Location.Lat()}},
		Range:     []int{req.Minutes * 60},
		RangeType: "time",
	})
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/isochrones/"+profile, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/geo+json")
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: openrouteservice request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "isochrone: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrap(resilience.StatusError("openrouteservice", resp.StatusCode, body), "isochrone")
	}
	return decodePolygons(body)
}
