// Package geocode resolves free-text place names to WGS84 bounding boxes using
// the Nominatim search API.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/internal/resilience"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// ErrNoMatch is returned when Nominatim has no result for the query.
var ErrNoMatch = eris.New("geocode: no match")

// Place is a single Nominatim search hit.
type Place struct {
	OSMType     string
	OSMID       int64
	DisplayName string
	Lat, Lon    float64
	BBox        model.BBox
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at another Nominatim instance.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUserAgent sets the User-Agent header. Nominatim's usage policy rejects
// requests without an identifying agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithEmail adds the contact email parameter.
func WithEmail(email string) Option {
	return func(c *Client) { c.email = email }
}

// WithCountryCodes restricts results to the given ISO 3166-1 alpha-2 codes.
func WithCountryCodes(codes ...string) Option {
	return func(c *Client) { c.countryCodes = codes }
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Client talks to Nominatim.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	userAgent    string
	email        string
	countryCodes []string
	limiter      *rate.Limiter
}

// NewClient creates a Client. The default rate is one request per second, the
// public instance's published limit.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  "isoreach/1.0",
		limiter:    rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResult struct {
	OSMType     string   `json:"osm_type"`
	OSMID       int64    `json:"osm_id"`
	DisplayName string   `json:"display_name"`
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	BoundingBox []string `json:"boundingbox"`
}

// Search returns up to limit places matching query, best first.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.New("geocode: empty query")
	}
	if limit <= 0 {
		limit = 1
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {strconv.Itoa(limit)},
	}
	if c.email != "" {
		params.Set("email", c.email)
	}
	if len(c.countryCodes) > 0 {
		params.Set("countrycodes", strings.Join(c.countryCodes, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrap(resilience.StatusError("nominatim", resp.StatusCode, body), "geocode: search")
	}

	var raw []searchResult
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		p, err := r.place()
		if err != nil {
			zap.L().Debug("geocode: skipping malformed result",
				zap.String("display_name", r.DisplayName),
				zap.Error(err),
			)
			continue
		}
		places = append(places, p)
	}
	return places, nil
}

// ResolveBBox returns the bounding box of the best match for query.
func (c *Client) ResolveBBox(ctx context.Context, query string) (model.BBox, error) {
	places, err := c.Search(ctx, query, 1)
	if err != nil {
		return model.BBox{}, err
	}
	if len(places) == 0 {
		return model.BBox{}, eris.Wrapf(ErrNoMatch, "%q", query)
	}

	zap.L().Debug("geocode: resolved",
		zap.String("query", query),
		zap.String("display_name", places[0].DisplayName),
	)
	return places[0].BBox, nil
}

// place converts a raw hit. Nominatim orders the box as
// [min_lat, max_lat, min_lon, max_lon], all strings.
func (r searchResult) place() (Place, error) {
	if len(r.BoundingBox) != 4 {
		return Place{}, eris.Errorf("boundingbox has %d values", len(r.BoundingBox))
	}
	var v [4]float64
	for i, s := range r.BoundingBox {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Place{}, eris.Wrap(err, "parse boundingbox")
		}
		v[i] = f
	}
	lat, _ := strconv.ParseFloat(r.Lat, 64)
	lon, _ := strconv.ParseFloat(r.Lon, 64)

	box := model.BBox{MinLat: v[0], MaxLat: v[1], MinLon: v[2], MaxLon: v[3]}
	if !box.Valid() {
		return Place{}, eris.Errorf("invalid bounding box %v", r.BoundingBox)
	}
	return Place{
		OSMType:     r.OSMType,
		OSMID:       r.OSMID,
		DisplayName: r.DisplayName,
		Lat:         lat,
		Lon:         lon,
		BBox:        box,
	}, nil
}
