package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/isoreach/internal/config"
	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/internal/store"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func testRegions() []model.Region {
	return []model.Region{
		{Name: "Hovedstaden", Query: "Region Hovedstaden", Buildings: "h.shp", SourceEPSG: 25832},
		{Name: "Sjaelland", Query: "Region Sjælland", Buildings: "s.shp",
			BBox: &model.BBox{MinLon: 10.9, MinLat: 54.5, MaxLon: 12.6, MaxLat: 56.0}, ExcludedStations: []string{"Ringsted Godsterminal"}},
	}
}

func TestSelectRegions(t *testing.T) {
	all := testRegions()

	got, err := selectRegions(all, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Config order wins over flag order.
	got, err = selectRegions(all, []string{"Sjaelland", "Hovedstaden"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Hovedstaden", got[0].Name)

	_, err = selectRegions(all, []string{"Fyn", "Bornholm", "Sjaelland"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bornholm, Fyn")
}

func TestInitStore(t *testing.T) {
	ctx := context.Background()

	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "none"}})
	st, err := initStore(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)
	_, err = requireStore(ctx)
	require.Error(t, err)

	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "mysql"}})
	_, err = initStore(ctx)
	require.Error(t, err)

	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "cmd.db")}})
	st, err = requireStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestInitCache(t *testing.T) {
	ctx := context.Background()

	withConfig(t, &config.Config{Cache: config.CacheConfig{Backend: "none"}})
	c, closeFn, err := initCache(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
	closeFn()

	// The store backend without a store disables caching.
	withConfig(t, &config.Config{Cache: config.CacheConfig{Backend: "store"}})
	c, _, err = initCache(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	withConfig(t, &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "cache.db")},
		Cache: config.CacheConfig{Backend: "store"},
		Isochrone: config.IsochroneConfig{CacheTTLHours: 1},
	})
	st, err := requireStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	c, _, err = initCache(ctx, st)
	require.NoError(t, err)
	require.NotNil(t, c)

	mp := orb.MultiPolygon{{{{12, 55}, {12.1, 55}, {12.1, 55.1}, {12, 55}}}}
	require.NoError(t, c.SetIsochrone(ctx, "k", mp))
	got, ok, err := c.GetIsochrone(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, got, 1)

	withConfig(t, &config.Config{Cache: config.CacheConfig{Backend: "redis"}})
	_, _, err = initCache(ctx, nil)
	require.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	withConfig(t, &config.Config{Isochrone: config.IsochroneConfig{Provider: "mapbox", TimeoutSecs: 5}})
	p, err := newProvider()
	require.NoError(t, err)
	assert.Equal(t, "mapbox", p.Name())

	withConfig(t, &config.Config{Isochrone: config.IsochroneConfig{Provider: "valhalla", TimeoutSecs: 5}})
	_, err = newProvider()
	require.Error(t, err)
}

func TestFormatRegions(t *testing.T) {
	var buf bytes.Buffer
	formatRegions(&buf, testRegions())

	output := buf.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "Hovedstaden")
	assert.Contains(t, output, "geocode")
	assert.Contains(t, output, "25832")
	assert.Contains(t, output, "10.900,54.500,12.600,56.000")
	assert.Contains(t, output, "Ringsted Godsterminal")
}

func TestFormatStations(t *testing.T) {
	var buf bytes.Buffer
	formatStations(&buf, []model.Station{
		{ID: 42, Name: "Roskilde", Location: orb.Point{12.0887, 55.6391}},
	})

	output := buf.String()
	assert.Contains(t, output, "OSM_ID")
	assert.Contains(t, output, "42")
	assert.Contains(t, output, "Roskilde")
	assert.Contains(t, output, "12.088700")
}

func TestNewGeocoder_CountryCodesFromConfig(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Query().Get("countrycodes"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"osm_type":"relation","osm_id":1,"display_name":"Region Hovedstaden",` +
			`"lat":"55.7","lon":"12.4","boundingbox":["54.9","56.2","11.8","15.2"]}]`))
	}))
	defer srv.Close()

	c := &config.Config{Geocode: config.GeocodeConfig{
		BaseURL:         srv.URL,
		UserAgent:       "isoreach-test",
		RateLimitPerSec: 100,
		TimeoutSecs:     5,
		CountryCodes:    []string{"dk", "se"},
	}}
	withConfig(t, c)

	box, err := newGeocoder().ResolveBBox(context.Background(), "Region Hovedstaden")
	require.NoError(t, err)
	assert.InDelta(t, 11.8, box.MinLon, 1e-9)

	c.Geocode.CountryCodes = nil
	_, err = newGeocoder().ResolveBBox(context.Background(), "Region Hovedstaden")
	require.NoError(t, err)

	assert.Equal(t, []string{"dk,se", ""}, got)
}
