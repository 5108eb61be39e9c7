// Package overpass queries the Overpass API for railway station nodes.
package overpass

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/osm"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/internal/resilience"
)

const defaultEndpoint = "https://overpass-api.de/api/interpreter"

// StationTypes are the railway=* values fetched.
var StationTypes = []string{"station", "halt"}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoint points the client at another Overpass interpreter.
func WithEndpoint(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.endpoint = u
		}
	}
}

// WithTimeout sets the server-side query timeout in seconds.
func WithTimeout(seconds int) Option {
	return func(c *Client) {
		if seconds > 0 {
			c.timeout = seconds
		}
	}
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// Client runs Overpass QL queries.
type Client struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	timeout    int
	limiter    *rate.Limiter
}

// NewClient creates a Client for the public overpass-api.de instance.
func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint:  defaultEndpoint,
		userAgent: "isoreach/1.0",
		timeout:   180,
		limiter:   rate.NewLimiter(0.5, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: time.Duration(c.timeout+30) * time.Second}
	}
	return c
}

// StationQuery builds the Overpass QL for station and halt nodes in box.
// Overpass takes bounds as (south,west,north,east).
func StationQuery(box model.BBox, timeout int) string {
	return fmt.Sprintf(
		`[out:xml][timeout:%d];node["railway"~"^(%s)$"](%g,%g,%g,%g);out body;`,
		timeout, strings.Join(StationTypes, "|"),
		box.MinLat, box.MinLon, box.MaxLat, box.MaxLon,
	)
}

// Stations returns every node tagged railway=station or railway=halt inside
// box, named or not.
func (c *Client) Stations(ctx context.Context, box model.BBox) (osm.Nodes, error) {
	if !box.Valid() {
		return nil, eris.Errorf("overpass: invalid bbox %+v", box)
	}
	data, err := c.Query(ctx, StationQuery(box, c.timeout))
	if err != nil {
		return nil, err
	}
	return data.Nodes, nil
}

// Query posts an Overpass QL script and decodes the XML answer.
func (c *Client) Query(ctx context.Context, ql string) (*osm.OSM, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit")
	}

	form := url.Values{"data": {ql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrap(resilience.StatusError("overpass", resp.StatusCode, body), "overpass: query")
	}

	var data osm.OSM
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&data); err != nil {
		return nil, eris.Wrap(err, "overpass: decode xml")
	}
	if remark := overpassRemark(body); remark != "" {
		return nil, eris.Errorf("overpass: server remark: %s", remark)
	}
	return &data, nil
}

// overpassRemark extracts a <remark> element, which Overpass uses to report
// runtime errors such as timeouts alongside a 200 status.
func overpassRemark(body []byte) string {
	var r struct {
		Remark string `xml:"remark"`
	}
	if err := xml.Unmarshal(body, &r); err != nil {
		return ""
	}
	return strings.TrimSpace(r.Remark)
}
