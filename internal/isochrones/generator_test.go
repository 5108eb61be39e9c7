package isochrones

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/internal/resilience"
	"github.com/sells-group/isoreach/pkg/isochrone"
)

func squareAt(lon, lat float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{{lon - 0.1, lat - 0.1}, {lon + 0.1, lat - 0.1}, {lon + 0.1, lat + 0.1}, {lon - 0.1, lat + 0.1}, {lon - 0.1, lat - 0.1}}}}
}

func atLon(lon float64) interface{} {
	return mock.MatchedBy(func(req isochrone.Request) bool { return req.Location.Lon() == lon })
}

func newProvider() *mockProvider {
	p := new(mockProvider)
	p.On("Name").Return("fake")
	return p
}

func newPacer() *mockPacer {
	p := new(mockPacer)
	p.On("Wait", mock.Anything).Return(nil)
	return p
}

func stationsAt(lons ...float64) []model.Station {
	out := make([]model.Station, len(lons))
	for i, lon := range lons {
		out[i] = model.Station{ID: int64(i + 1), Name: "S" + string(rune('A'+i)), Location: orb.Point{lon, 55}}
	}
	return out
}

func TestGenerate_SkipsFailuresAndPacesEveryRequest(t *testing.T) {
	prov := newProvider()
	prov.On("Isochrone", mock.Anything, atLon(10)).Return(squareAt(10, 55), nil).Once()
	prov.On("Isochrone", mock.Anything, atLon(11)).Return(nil, resilience.NewTransientError(errors.New("timeout"), 504)).Once()
	prov.On("Isochrone", mock.Anything, atLon(12)).Return(squareAt(12, 55), nil).Once()
	prov.On("Isochrone", mock.Anything, atLon(13)).Return(nil, errors.New("no routable point")).Once()
	pacer := newPacer()
	g := NewGenerator(prov, WithPacer(pacer))

	isos, failures, err := g.Generate(context.Background(), stationsAt(10, 11, 12, 13))
	require.NoError(t, err)

	require.Len(t, isos, 2)
	assert.Equal(t, int64(1), isos[0].StationID)
	assert.Equal(t, int64(3), isos[1].StationID)
	assert.Equal(t, 15, isos[0].Minutes)
	assert.Equal(t, model.ModeDriving, isos[0].Mode)

	require.Len(t, failures, 2)
	assert.Equal(t, int64(2), failures[0].StationID)
	assert.Equal(t, model.FailureTransient, failures[0].Kind)
	assert.Equal(t, model.FailurePermanent, failures[1].Kind)
	assert.Contains(t, failures[1].Error, "no routable point")

	pacer.AssertNumberOfCalls(t, "Wait", 4)
	prov.AssertNumberOfCalls(t, "Isochrone", 4)
	prov.AssertExpectations(t)
}

func TestGenerate_RetryIsOptIn(t *testing.T) {
	prov := newProvider()
	prov.On("Isochrone", mock.Anything, atLon(11)).Return(nil, resilience.NewTransientError(errors.New("busy"), 503))
	pacer := newPacer()
	g := NewGenerator(prov,
		WithPacer(pacer),
		WithRetry(resilience.Policy{MaxAttempts: 3, Backoff: time.Millisecond, MaxBackoff: time.Millisecond}),
	)

	_, failures, err := g.Generate(context.Background(), stationsAt(11))
	require.NoError(t, err)
	require.Len(t, failures, 1)
	prov.AssertNumberOfCalls(t, "Isochrone", 3)
	pacer.AssertNumberOfCalls(t, "Wait", 3)
}

func TestGenerate_BreakerFailsFast(t *testing.T) {
	down := resilience.NewTransientError(errors.New("down"), 503)
	prov := newProvider()
	prov.On("Isochrone", mock.Anything, mock.Anything).Return(nil, down)
	g := NewGenerator(prov,
		WithPacer(newPacer()),
		WithBreaker(resilience.NewBreaker(2, time.Hour)),
	)

	isos, failures, err := g.Generate(context.Background(), stationsAt(10, 11, 12, 13))
	require.NoError(t, err)
	assert.Empty(t, isos)
	require.Len(t, failures, 4)
	assert.Equal(t, model.FailureTransient, failures[1].Kind)
	assert.Equal(t, model.FailureCircuitOpen, failures[2].Kind)
	assert.Equal(t, model.FailureCircuitOpen, failures[3].Kind)
	prov.AssertNumberOfCalls(t, "Isochrone", 2)
}

func TestGenerate_CacheHitSkipsProviderAndPacer(t *testing.T) {
	st := stationsAt(10, 11)
	keyA := CacheKey("fake", model.ModeDriving, 15, st[0].Location)
	keyB := CacheKey("fake", model.ModeDriving, 15, st[1].Location)

	prov := newProvider()
	prov.On("Isochrone", mock.Anything, atLon(10)).Return(squareAt(10, 55), nil).Once()
	prov.On("Isochrone", mock.Anything, atLon(11)).Return(squareAt(11, 55), nil).Once()

	cache := new(mockCache)
	cache.On("GetIsochrone", mock.Anything, keyA).Return(nil, false, nil).Once()
	cache.On("GetIsochrone", mock.Anything, keyB).Return(nil, false, nil).Once()
	cache.On("SetIsochrone", mock.Anything, keyA, squareAt(10, 55)).Return(nil).Once()
	cache.On("SetIsochrone", mock.Anything, keyB, squareAt(11, 55)).Return(nil).Once()
	cache.On("GetIsochrone", mock.Anything, keyA).Return(squareAt(10, 55), true, nil).Once()
	cache.On("GetIsochrone", mock.Anything, keyB).Return(squareAt(11, 55), true, nil).Once()

	pacer := newPacer()
	g := NewGenerator(prov, WithPacer(pacer), WithCache(cache))

	_, _, err := g.Generate(context.Background(), st)
	require.NoError(t, err)

	isos, _, err := g.Generate(context.Background(), st)
	require.NoError(t, err)
	assert.Len(t, isos, 2)

	cache.AssertExpectations(t)
	cache.AssertNumberOfCalls(t, "SetIsochrone", 2)
	prov.AssertNumberOfCalls(t, "Isochrone", 2)
	pacer.AssertNumberOfCalls(t, "Wait", 2)
}

func TestGenerate_CacheErrorsFallThrough(t *testing.T) {
	prov := newProvider()
	prov.On("Isochrone", mock.Anything, atLon(10)).Return(squareAt(10, 55), nil).Once()

	cache := new(mockCache)
	cache.On("GetIsochrone", mock.Anything, mock.Anything).Return(nil, false, errors.New("redis: connection refused"))
	cache.On("SetIsochrone", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis: connection refused"))

	isos, failures, err := NewGenerator(prov, WithPacer(newPacer()), WithCache(cache)).
		Generate(context.Background(), stationsAt(10))
	require.NoError(t, err)
	assert.Len(t, isos, 1)
	assert.Empty(t, failures)
	cache.AssertExpectations(t)
}

func TestGenerate_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prov := new(mockProvider)
	pacer := new(mockPacer)
	isos, failures, err := NewGenerator(prov, WithPacer(pacer)).Generate(ctx, stationsAt(10, 11))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, isos)
	assert.Empty(t, failures)
	prov.AssertNotCalled(t, "Isochrone", mock.Anything, mock.Anything)
	pacer.AssertNotCalled(t, "Wait", mock.Anything)
}

func TestNewPacer(t *testing.T) {
	p := NewPacer(0)
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	p = NewPacer(50 * time.Millisecond)
	start = time.Now()
	require.NoError(t, p.Wait(context.Background()))
	require.NoError(t, p.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "ors:driving:15:12.56830,55.67610", CacheKey("ors", model.ModeDriving, 15, orb.Point{12.5683, 55.6761}))
}
