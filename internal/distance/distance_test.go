package distance

import (
	"context"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/isoreach/internal/model"
)

var zealand = []model.Station{
	{ID: 1, Name: "København H", Location: orb.Point{12.5653, 55.6727}},
	{ID: 2, Name: "Roskilde", Location: orb.Point{12.0887, 55.6391}},
	{ID: 3, Name: "Køge", Location: orb.Point{12.1864, 55.4548}},
	{ID: 4, Name: "Hillerød", Location: orb.Point{12.3102, 55.9276}},
	{ID: 5, Name: "Holbæk", Location: orb.Point{11.7150, 55.7170}},
}

func TestNewIndex_Empty(t *testing.T) {
	_, err := NewIndex(nil)
	require.ErrorIs(t, err, ErrNoStations)
}

func TestNearest_AtStation(t *testing.T) {
	x, err := NewIndex(zealand)
	require.NoError(t, err)
	for _, s := range zealand {
		got, km := x.Nearest(s.Location)
		assert.Equal(t, s.Name, got.Name)
		assert.InDelta(t, 0, km, 1e-9)
	}
}

func TestNearest_MatchesBruteForce(t *testing.T) {
	x, err := NewIndex(zealand)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		pt := orb.Point{11.5 + rng.Float64()*1.3, 55.3 + rng.Float64()*0.8}

		want := zealand[0]
		best := geo.DistanceHaversine(pt, want.Location)
		for _, s := range zealand[1:] {
			if d := geo.DistanceHaversine(pt, s.Location); d < best {
				want, best = s, d
			}
		}

		got, km := x.Nearest(pt)
		require.Equal(t, want.Name, got.Name, "point %v", pt)
		assert.InDelta(t, best/1000, km, 1e-9)
		assert.GreaterOrEqual(t, km, 0.0)
	}
}

func TestNearest_KnownDistance(t *testing.T) {
	x, err := NewIndex(zealand[:2])
	require.NoError(t, err)
	// Roskilde Cathedral is roughly 0.65 km from the station.
	s, km := x.Nearest(orb.Point{12.0803, 55.6426})
	assert.Equal(t, "Roskilde", s.Name)
	assert.InDelta(t, 0.65, km, 0.15)
}

func TestRepresentative(t *testing.T) {
	square := orb.MultiPolygon{{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}}}
	assert.Equal(t, orb.Point{1, 1}, Representative(square))

	flat := orb.MultiPolygon{{{{3, 3}, {4, 4}, {3, 3}}}}
	assert.Equal(t, orb.Point{3, 3}, Representative(flat))
}

func TestMeasure(t *testing.T) {
	x, err := NewIndex(zealand)
	require.NoError(t, err)

	buildings := []model.Building{
		{Index: 4, Region: "Sjaelland", Geometry: orb.MultiPolygon{{{{12.56, 55.67}, {12.57, 55.67}, {12.57, 55.675}, {12.56, 55.675}, {12.56, 55.67}}}}},
		{Index: 9, Region: "Sjaelland", Geometry: orb.MultiPolygon{{{{11.71, 55.71}, {11.72, 55.71}, {11.72, 55.72}, {11.71, 55.72}, {11.71, 55.71}}}}},
	}
	recs, err := Measure(context.Background(), "Sjaelland", buildings, x)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 4, recs[0].BuildingIndex)
	assert.Equal(t, "København H", recs[0].NearestStation)
	assert.Less(t, recs[0].DistanceKm, 1.0)
	assert.Equal(t, "Holbæk", recs[1].NearestStation)
	assert.Equal(t, "Sjaelland", recs[1].Region)
}

func TestMeasure_Cancelled(t *testing.T) {
	x, err := NewIndex(zealand)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Measure(ctx, "x", []model.Building{{}}, x)
	require.ErrorIs(t, err, context.Canceled)
}
