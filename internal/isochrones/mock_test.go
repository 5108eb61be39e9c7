package isochrones

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/isoreach/pkg/isochrone"
)

// --- Provider Mock ---

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

// --- Pacer Mock ---

type mockPacer struct {
	mock.Mock
}

func (m *mockPacer) Wait(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Cache Mock ---

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetIsochrone(ctx context.Context, key string) (orb.MultiPolygon, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(orb.MultiPolygon), args.Bool(1), args.Error(2)
}

func (m *mockCache) SetIsochrone(ctx context.Context, key string, mp orb.MultiPolygon) error {
	return m.Called(ctx, key, mp).Error(0)
}
