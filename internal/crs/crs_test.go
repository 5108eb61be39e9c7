package crs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, code := range []int{4326, 3857, 25832, 25833, 32632, 32633} {
		tr, err := New(code)
		require.NoError(t, err, code)
		assert.Equal(t, code, tr.EPSG())
	}

	_, err := New(999999)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = New(4978)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestGeographic(t *testing.T) {
	wgs, err := New(WGS84)
	require.NoError(t, err)
	assert.True(t, wgs.Geographic())

	utm, err := New(25832)
	require.NoError(t, err)
	assert.False(t, utm.Geographic())
}

func TestUTMCentralMeridian(t *testing.T) {
	tr, err := New(25832)
	require.NoError(t, err)

	p := tr.FromWGS84(orb.Point{9, 0})
	assert.InDelta(t, 500000, p[0], 0.01)
	assert.InDelta(t, 0, p[1], 0.01)

	// k0 times the meridian arc to 45N.
	p = tr.FromWGS84(orb.Point{9, 45})
	assert.InDelta(t, 500000, p[0], 0.01)
	assert.InDelta(t, 4982950.40, p[1], 0.1)
}

func TestUTMCopenhagen(t *testing.T) {
	tr, err := New(32632)
	require.NoError(t, err)

	p := tr.FromWGS84(orb.Point{12.5683, 55.6761})
	assert.InDelta(t, 724351.93, p[0], 1)
	assert.InDelta(t, 6175804.02, p[1], 1)
}

func TestUTMRoundTrip(t *testing.T) {
	tr, err := New(25832)
	require.NoError(t, err)

	for _, lon := range []float64{6, 8.1, 9, 12.6} {
		for _, lat := range []float64{30, 54.6, 55.7, 57.7} {
			in := orb.Point{lon, lat}
			xy := tr.FromWGS84(in)
			back := tr.ToWGS84(xy)
			assert.InDelta(t, lon, back.Lon(), 1e-7, "lon %v lat %v", lon, lat)
			assert.InDelta(t, lat, back.Lat(), 1e-7, "lon %v lat %v", lon, lat)

			again := tr.FromWGS84(back)
			assert.InDelta(t, xy[0], again[0], 0.01)
			assert.InDelta(t, xy[1], again[1], 0.01)
		}
	}
}

func TestMercatorRoundTrip(t *testing.T) {
	tr, err := New(WebMercator)
	require.NoError(t, err)
	assert.False(t, tr.Geographic())

	in := orb.Point{12.5683, 55.6761}
	back := tr.ToWGS84(tr.FromWGS84(in))
	assert.InDelta(t, in.Lon(), back.Lon(), 1e-9)
	assert.InDelta(t, in.Lat(), back.Lat(), 1e-9)
}

func TestPolygonCopies(t *testing.T) {
	tr, err := New(25832)
	require.NoError(t, err)

	src := orb.Polygon{{{724000, 6175000}, {724100, 6175000}, {724100, 6175100}, {724000, 6175000}}}
	out := Polygon(tr, src)
	require.Len(t, out, 1)
	require.Len(t, out[0], 4)
	assert.InDelta(t, 12.56, out[0][0].Lon(), 0.02)
	assert.InDelta(t, 55.67, out[0][0].Lat(), 0.02)
	assert.Equal(t, 724000.0, src[0][0][0], "source untouched")
}

func TestParseWKT(t *testing.T) {
	tests := []struct {
		name string
		wkt  string
		want int
		ok   bool
	}{
		{
			name: "esri etrs89 utm32",
			wkt:  `PROJCS["ETRS_1989_UTM_Zone_32N",GEOGCS["GCS_ETRS_1989",DATUM["D_ETRS_1989",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["Central_Meridian",9.0],UNIT["Meter",1.0]]`,
			want: 25832, ok: true,
		},
		{
			name: "ogc wgs84 utm33",
			wkt:  `PROJCS["WGS 84 / UTM zone 33N",GEOGCS["WGS 84"],PROJECTION["Transverse_Mercator"]]`,
			want: 32633, ok: true,
		},
		{
			name: "authority wins",
			wkt:  `PROJCS["custom",GEOGCS["ETRS89"],AUTHORITY["EPSG","25832"]]`,
			want: 25832, ok: true,
		},
		{
			name: "geographic",
			wkt:  `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]]]`,
			want: 4326, ok: true,
		},
		{
			name: "web mercator",
			wkt:  `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984"]]`,
			want: 3857, ok: true,
		},
		{name: "unknown", wkt: `PROJCS["RGF93_Lambert_93"]`, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseWKT(tt.wkt)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDetectPRJ(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bygninger.prj")
	require.NoError(t, os.WriteFile(path, []byte(`PROJCS["ETRS89 / UTM zone 32N"]`), 0o644))

	code, err := DetectPRJ(path)
	require.NoError(t, err)
	assert.Equal(t, 25832, code)

	_, err = DetectPRJ(filepath.Join(dir, "missing.prj"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.prj")
	require.NoError(t, os.WriteFile(bad, []byte(`LOCAL_CS["whatever"]`), 0o644))
	_, err = DetectPRJ(bad)
	assert.ErrorIs(t, err, ErrUnsupported)
}
