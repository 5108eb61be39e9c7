package classify

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/isoreach/internal/model"
)

func rect(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}}
}

func iso(polys ...orb.Polygon) model.Isochrone {
	return model.Isochrone{Minutes: 15, Mode: model.ModeDriving, Geometry: orb.MultiPolygon(polys)}
}

func building(i int, p orb.Polygon) model.Building {
	return model.Building{Index: i, Region: "Test", Geometry: orb.MultiPolygon{p}}
}

func TestNewArea_Empty(t *testing.T) {
	_, err := NewArea(nil)
	require.ErrorIs(t, err, ErrNoIsochrones)

	_, err = NewArea([]model.Isochrone{{Geometry: orb.MultiPolygon{}}})
	require.ErrorIs(t, err, ErrNoIsochrones)
}

func TestCovers(t *testing.T) {
	area, err := NewArea([]model.Isochrone{
		iso(rect(0, 0, 2, 2)),
		iso(rect(1, 1, 3, 3)),
		iso(rect(10, 0, 12, 2)),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, area.Polygons())

	tests := []struct {
		name string
		poly orb.Polygon
		want bool
	}{
		{"well inside", rect(0.2, 0.2, 0.4, 0.4), true},
		{"far outside", rect(20, 20, 21, 21), false},
		{"spans overlap of two isochrones", rect(1.5, 1.5, 2.5, 2.5), true},
		{"crosses outer boundary", rect(1.5, -0.5, 1.8, 0.5), false},
		{"touches boundary from inside", rect(0, 0, 0.5, 0.5), true},
		{"identical to isochrone", rect(10, 0, 12, 2), true},
		{"bridges the gap between disjoint isochrones", rect(1.5, 0.5, 10.5, 0.8), false},
		{"in the notch of the L shape", rect(2.2, 0.2, 2.8, 0.8), false},
		{"vertices inside but edge leaves the union", orb.Polygon{{{1.9, 0.5}, {2.5, 2.5}, {1.9, 1.5}, {1.9, 0.5}}}, false},
		{"edge passes through the notch corner", orb.Polygon{{{1.5, 0.5}, {2.5, 1.5}, {1.5, 1.5}, {1.5, 0.5}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, area.Covers(orb.MultiPolygon{tt.poly}))
		})
	}
}

func TestCovers_HoleInsideBuilding(t *testing.T) {
	donut := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{4, 4}, {4, 6}, {6, 6}, {6, 4}, {4, 4}},
	}
	area, err := NewArea([]model.Isochrone{iso(donut)})
	require.NoError(t, err)

	// Every vertex and edge is covered, but the hole lies inside.
	assert.False(t, area.Covers(orb.MultiPolygon{rect(2, 2, 8, 8)}))
	assert.True(t, area.Covers(orb.MultiPolygon{rect(1, 1, 3, 3)}))
	assert.False(t, area.Covers(orb.MultiPolygon{rect(4.5, 4.5, 5.5, 5.5)}))

	// The hole boundary counts as covered.
	assert.True(t, area.CoversPoint(orb.Point{4, 5}))
	assert.False(t, area.CoversPoint(orb.Point{5, 5}))
}

func TestCovers_EmptyGeometry(t *testing.T) {
	area, err := NewArea([]model.Isochrone{iso(rect(0, 0, 1, 1))})
	require.NoError(t, err)
	assert.False(t, area.Covers(nil))
	assert.False(t, area.Covers(orb.MultiPolygon{{}}))
}

func TestPartition_TenBuildings(t *testing.T) {
	area, err := NewArea([]model.Isochrone{iso(rect(0, 0, 1, 1))})
	require.NoError(t, err)

	var buildings []model.Building
	for i := 0; i < 6; i++ {
		x := 0.1 + float64(i)*0.1
		buildings = append(buildings, building(len(buildings), rect(x, 0.1, x+0.05, 0.15)))
	}
	for i := 0; i < 4; i++ {
		x := 5 + float64(i)
		buildings = append(buildings, building(len(buildings), rect(x, 5, x+0.05, 5.05)))
	}
	// Interleave so labels are not just row positions.
	buildings[1], buildings[7] = buildings[7], buildings[1]

	counts, err := Partition(context.Background(), buildings, area)
	require.NoError(t, err)
	assert.Equal(t, Counts{Inside: 6, Outside: 4}, counts)
	assert.Equal(t, 10, counts.Total())

	var in, out []int
	for _, b := range buildings {
		if b.Inside {
			in = append(in, b.Label)
		} else {
			out = append(out, b.Label)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, in)
	assert.Equal(t, []int{1, 2, 3, 4}, out)
	assert.False(t, buildings[1].Inside)
	assert.Equal(t, 1, buildings[1].Label)

	row := Summarize("Test", counts)
	assert.Equal(t, model.SummaryRow{Region: "Test", Inside: 6, Outside: 4, Total: 10, ProportionInside: 60}, row)
	assert.Equal(t, "60.0%", row.ProportionLabel())
}

func TestPartition_MoreIsochronesNeverShrinks(t *testing.T) {
	var buildings []model.Building
	for i := 0; i < 20; i++ {
		x := float64(i) * 0.5
		buildings = append(buildings, building(i, rect(x, 0.1, x+0.1, 0.2)))
	}
	isos := []model.Isochrone{iso(rect(0, 0, 2, 1))}

	prev := -1
	for _, extra := range []orb.Polygon{rect(1.9, 0, 4, 1), rect(6, 0, 7, 1), rect(-1, -1, 11, 2)} {
		isos = append(isos, iso(extra))
		area, err := NewArea(isos)
		require.NoError(t, err)
		copied := append([]model.Building(nil), buildings...)
		c, err := Partition(context.Background(), copied, area)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, c.Inside, prev)
		assert.Equal(t, len(buildings), c.Total())
		prev = c.Inside
	}
	assert.Equal(t, len(buildings), prev)
}

func TestPartition_WorkersKeepLabels(t *testing.T) {
	area, err := NewArea([]model.Isochrone{iso(rect(0, 0, 1, 1)), iso(rect(0.9, 0, 2, 1))})
	require.NoError(t, err)

	var base []model.Building
	for i := 0; i < 50; i++ {
		x := float64(i) * 0.06
		base = append(base, building(i, rect(x, 0.1, x+0.05, 0.15)))
	}

	seq := append([]model.Building(nil), base...)
	want, err := Partition(context.Background(), seq, area)
	require.NoError(t, err)

	par := append([]model.Building(nil), base...)
	got, err := Partition(context.Background(), par, area, WithWorkers(4))
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, seq, par)
	assert.Positive(t, got.Inside)
	assert.Positive(t, got.Outside)
}

func TestPartition_Cancelled(t *testing.T) {
	area, err := NewArea([]model.Isochrone{iso(rect(0, 0, 1, 1))})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Partition(ctx, []model.Building{building(0, rect(0.1, 0.1, 0.2, 0.2))}, area)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	assert.InDelta(t, 0, Summarize("x", Counts{}).ProportionInside, 0)
	assert.InDelta(t, 66.7, Summarize("x", Counts{Inside: 2, Outside: 1}).ProportionInside, 1e-9)
	// exact ties go to the even digit
	assert.InDelta(t, 6.2, Summarize("x", Counts{Inside: 1, Outside: 15}).ProportionInside, 1e-9)
	assert.InDelta(t, 0.2, Summarize("x", Counts{Inside: 1, Outside: 399}).ProportionInside, 1e-9)
	assert.InDelta(t, 18.8, Summarize("x", Counts{Inside: 3, Outside: 13}).ProportionInside, 1e-9)
	assert.Equal(t, "100.0%", Summarize("x", Counts{Inside: 3}).ProportionLabel())
}
