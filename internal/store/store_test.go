package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/isoreach/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func square(x, y, size float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}}
}

func okRegion(name string) *model.RegionResult {
	return &model.RegionResult{
		Region: model.Region{Name: name},
		BBox:   model.BBox{MinLon: 12, MinLat: 55, MaxLon: 13, MaxLat: 56},
		Stations: []model.Station{
			{ID: 11, Name: "Roskilde", Location: orb.Point{12.0887, 55.6391}},
			{ID: 12, Name: "Køge", Location: orb.Point{12.1864, 55.4548}},
		},
		Isochrones: []model.Isochrone{
			{StationID: 11, StationName: "Roskilde", Minutes: 15, Mode: model.ModeDriving, Geometry: square(12, 55.5, 0.2)},
		},
		Failures: []model.IsochroneFailure{
			{StationID: 12, StationName: "Køge", Kind: model.FailureTransient, Error: "status 503"},
		},
		Buildings: []model.Building{
			{Index: 0, Region: name, Geometry: square(12.05, 55.55, 0.001), Inside: true, Label: 1},
			{Index: 1, Region: name, Geometry: square(12.5, 55.9, 0.001), Inside: false, Label: 1},
		},
		Distances: []model.DistanceRecord{
			{BuildingIndex: 0, Region: name, NearestStation: "Roskilde", DistanceKm: 5.5},
			{BuildingIndex: 1, Region: name, NearestStation: "Køge", DistanceKm: 12.25},
		},
		Summary: &model.SummaryRow{Region: name, Inside: 1, Outside: 1, Total: 2, ProportionInside: 50},
	}
}

func failedRegion(name string) *model.RegionResult {
	return &model.RegionResult{
		Region: model.Region{Name: name},
		Err:    &model.RegionError{Region: name, Kind: model.ErrNoIsochrones, Err: errors.New("all requests failed")},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, []string{"Hovedstaden", "Sjaelland"})
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, []string{"Hovedstaden", "Sjaelland"}, got.Regions)
		assert.Nil(t, got.FinishedAt)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRun(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("FinishRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, []string{"A"})
		require.NoError(t, err)
		require.NoError(t, s.FinishRun(ctx, run.ID, model.RunStatusPartial))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusPartial, got.Status)
		require.NotNil(t, got.FinishedAt)

		err = s.FinishRun(ctx, "missing", model.RunStatusComplete)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			run, err := s.CreateRun(ctx, []string{"A"})
			require.NoError(t, err)
			if i == 0 {
				require.NoError(t, s.FinishRun(ctx, run.ID, model.RunStatusComplete))
			}
		}

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		done, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
		require.NoError(t, err)
		assert.Len(t, done, 1)

		page, err := s.ListRuns(ctx, RunFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page, 2)
	})

	t.Run("SaveRegionAndSummary", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, []string{"Hovedstaden", "Sjaelland"})
		require.NoError(t, err)

		// Saved out of order; the summary follows position.
		require.NoError(t, s.SaveRegion(ctx, run.ID, 1, failedRegion("Sjaelland")))
		require.NoError(t, s.SaveRegion(ctx, run.ID, 0, okRegion("Hovedstaden")))

		sum, err := s.GetRunSummary(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, sum.Regions, 2)

		h := sum.Regions[0]
		assert.Equal(t, "Hovedstaden", h.Region)
		require.NotNil(t, h.Summary)
		assert.Equal(t, 2, h.Summary.Total)
		assert.Equal(t, "50.0%", h.Summary.ProportionLabel())
		assert.Equal(t, 2, h.Stations)
		assert.Equal(t, 1, h.Isochrones)
		assert.Equal(t, 1, h.Failures)

		sj := sum.Regions[1]
		assert.Nil(t, sj.Summary)
		assert.Equal(t, model.ErrNoIsochrones, sj.ErrorKind)
		assert.Equal(t, "all requests failed", sj.Error)

		assert.Equal(t, []model.SummaryRow{*h.Summary}, sum.Rows())
	})

	t.Run("SaveRegionTwiceReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, []string{"A"})
		require.NoError(t, err)
		require.NoError(t, s.SaveRegion(ctx, run.ID, 0, okRegion("A")))
		require.NoError(t, s.SaveRegion(ctx, run.ID, 0, okRegion("A")))

		fc, err := s.GetRegionLayer(ctx, run.ID, "A", LayerStations)
		require.NoError(t, err)
		assert.Len(t, fc.Features, 2)
	})

	t.Run("RegionLayers", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, []string{"A"})
		require.NoError(t, err)
		require.NoError(t, s.SaveRegion(ctx, run.ID, 0, okRegion("A")))

		stations, err := s.GetRegionLayer(ctx, run.ID, "A", LayerStations)
		require.NoError(t, err)
		require.Len(t, stations.Features, 2)
		assert.Equal(t, "Køge", stations.Features[0].Properties["name"])
		assert.Equal(t, orb.Point{12.1864, 55.4548}, stations.Features[0].Geometry)

		isos, err := s.GetRegionLayer(ctx, run.ID, "A", LayerIsochrones)
		require.NoError(t, err)
		require.Len(t, isos.Features, 1)
		assert.Equal(t, square(12, 55.5, 0.2), isos.Features[0].Geometry)
		assert.Equal(t, "Roskilde", isos.Features[0].Properties["station_name"])

		blds, err := s.GetRegionLayer(ctx, run.ID, "A", LayerBuildings)
		require.NoError(t, err)
		require.Len(t, blds.Features, 2)
		assert.Equal(t, true, blds.Features[0].Properties["inside"])
		assert.Equal(t, "Køge", blds.Features[1].Properties["nearest_station"])
		assert.InDelta(t, 12.25, blds.Features[1].Properties["distance_km"], 1e-9)

		_, err = s.GetRegionLayer(ctx, run.ID, "Nowhere", LayerBuildings)
		assert.True(t, eris.Is(err, ErrNotFound))
	})

	t.Run("IsochroneCache", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, ok, err := s.GetCachedIsochrone(ctx, "k1")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.SetCachedIsochrone(ctx, "k1", []byte(`{"type":"MultiPolygon"}`), time.Hour))
		data, ok, err := s.GetCachedIsochrone(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"type":"MultiPolygon"}`, string(data))

		// Overwrite.
		require.NoError(t, s.SetCachedIsochrone(ctx, "k1", []byte("v2"), 0))
		data, ok, err = s.GetCachedIsochrone(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v2", string(data))

		// Already expired.
		require.NoError(t, s.SetCachedIsochrone(ctx, "old", []byte("x"), -time.Hour))
		_, ok, err = s.GetCachedIsochrone(ctx, "old")
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := s.DeleteExpiredIsochrones(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestEWKBRoundTrip(t *testing.T) {
	mp := orb.MultiPolygon{
		{
			{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			{{4, 4}, {4, 6}, {6, 6}, {6, 4}, {4, 4}},
		},
		{{{20, 20}, {21, 20}, {21, 21}, {20, 20}}},
	}
	data, err := EncodeEWKB(mp)
	require.NoError(t, err)
	// NDR byte order marker, then a MultiPolygon with the SRID flag set.
	assert.Equal(t, byte(1), data[0])

	got, err := DecodeEWKB(data)
	require.NoError(t, err)
	assert.Equal(t, mp, got)

	_, err = DecodeEWKB([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestParseLayer(t *testing.T) {
	for _, l := range Layers {
		got, err := ParseLayer(string(l))
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
	_, err := ParseLayer("roads")
	require.Error(t, err)
}
