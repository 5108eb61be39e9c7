package pipeline

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/isoreach/internal/model"
	"github.com/sells-group/isoreach/pkg/isochrone"
)

// --- Resolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ResolveBBox(ctx context.Context, query string) (model.BBox, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(model.BBox), args.Error(1)
}

// --- Station Source Mock ---

type mockStationSource struct {
	mock.Mock
}

func (m *mockStationSource) Stations(ctx context.Context, box model.BBox) (osm.Nodes, error) {
	args := m.Called(ctx, box)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(osm.Nodes), args.Error(1)
}

// --- Isochrone Provider Mock ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string {
	return m.Called().String(0)
}

func (m *mockProvider) Isochrone(ctx context.Context, req isochrone.Request) (orb.MultiPolygon, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(orb.MultiPolygon), args.Error(1)
}

// --- Building Loader Mock ---

type mockLoader struct {
	mock.Mock
}

// Load accepts a func(model.Region) []model.Building as the first return
// value so each call can hand out a fresh slice.
func (m *mockLoader) Load(ctx context.Context, region model.Region) ([]model.Building, error) {
	args := m.Called(ctx, region)
	if fn, ok := args.Get(0).(func(model.Region) []model.Building); ok {
		return fn(region), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Building), args.Error(1)
}
