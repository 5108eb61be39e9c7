package store

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/isoreach/internal/model"
)

// Child tables hold the per-region detail rows. They are replaced wholesale
// when a region is saved again.
var (
	stationColumns   = []string{"run_id", "region", "station_id", "name", "lon", "lat"}
	isochroneColumns = []string{"run_id", "region", "station_id", "station_name", "minutes", "mode", "geom"}
	failureColumns   = []string{"run_id", "region", "station_id", "station_name", "kind", "error"}
	buildingColumns  = []string{"run_id", "region", "idx", "inside", "label", "nearest_station", "distance_km", "geom"}

	childTables = []string{"stations", "isochrones", "isochrone_failures", "buildings"}
)

// regionRow is the flattened region_results row.
type regionRow struct {
	ok         bool
	inside     int
	outside    int
	total      int
	proportion float64
	errorKind  string
	errorMsg   string
	stations   int
	isochrones int
	failures   int
	bbox       []byte
}

func newRegionRow(res *model.RegionResult) (regionRow, error) {
	r := regionRow{
		ok:         res.OK(),
		stations:   len(res.Stations),
		isochrones: len(res.Isochrones),
		failures:   len(res.Failures),
	}
	if res.Summary != nil {
		r.inside = res.Summary.Inside
		r.outside = res.Summary.Outside
		r.total = res.Summary.Total
		r.proportion = res.Summary.ProportionInside
	}
	if res.Err != nil {
		r.errorKind = string(res.Err.Kind)
		if res.Err.Err != nil {
			r.errorMsg = res.Err.Err.Error()
		}
	}
	bbox, err := json.Marshal(res.BBox)
	if err != nil {
		return r, eris.Wrap(err, "store: marshal bbox")
	}
	r.bbox = bbox
	return r, nil
}

func (r regionRow) record(region string, position int) RegionRecord {
	rec := RegionRecord{
		Region:     region,
		Position:   position,
		ErrorKind:  model.ErrorKind(r.errorKind),
		Error:      r.errorMsg,
		Stations:   r.stations,
		Isochrones: r.isochrones,
		Failures:   r.failures,
	}
	if r.ok {
		rec.Summary = &model.SummaryRow{
			Region:           region,
			Inside:           r.inside,
			Outside:          r.outside,
			Total:            r.total,
			ProportionInside: r.proportion,
		}
	}
	return rec
}

func stationRows(runID string, res *model.RegionResult) [][]any {
	rows := make([][]any, 0, len(res.Stations))
	for _, s := range res.Stations {
		rows = append(rows, []any{runID, res.Region.Name, s.ID, s.Name, s.Location.Lon(), s.Location.Lat()})
	}
	return rows
}

func isochroneRows(runID string, res *model.RegionResult) ([][]any, error) {
	rows := make([][]any, 0, len(res.Isochrones))
	for _, iso := range res.Isochrones {
		g, err := EncodeEWKB(iso.Geometry)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []any{runID, res.Region.Name, iso.StationID, iso.StationName, iso.Minutes, string(iso.Mode), g})
	}
	return rows, nil
}

func failureRows(runID string, res *model.RegionResult) [][]any {
	rows := make([][]any, 0, len(res.Failures))
	for _, f := range res.Failures {
		rows = append(rows, []any{runID, res.Region.Name, f.StationID, f.StationName, string(f.Kind), f.Error})
	}
	return rows
}

// buildingRows joins each building with its distance record.
func buildingRows(runID string, res *model.RegionResult) ([][]any, error) {
	dist := make(map[int]model.DistanceRecord, len(res.Distances))
	for _, d := range res.Distances {
		dist[d.BuildingIndex] = d
	}
	rows := make([][]any, 0, len(res.Buildings))
	for _, b := range res.Buildings {
		g, err := EncodeEWKB(b.Geometry)
		if err != nil {
			return nil, err
		}
		d := dist[b.Index]
		rows = append(rows, []any{runID, res.Region.Name, b.Index, b.Inside, b.Label, d.NearestStation, d.DistanceKm, g})
	}
	return rows, nil
}

func expiry(now time.Time, ttl time.Duration) *time.Time {
	if ttl == 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}

// scannable is satisfied by *sql.Row, *sql.Rows and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanStationFeature(row scannable) (*geojson.Feature, error) {
	var (
		id       int64
		name     string
		lon, lat float64
	)
	if err := row.Scan(&id, &name, &lon, &lat); err != nil {
		return nil, eris.Wrap(err, "store: scan station")
	}
	f := geojson.NewFeature(orb.Point{lon, lat})
	f.ID = id
	f.Properties["name"] = name
	return f, nil
}

func scanIsochroneFeature(row scannable) (*geojson.Feature, error) {
	var (
		id      int64
		name    string
		minutes int
		mode    string
		g       []byte
	)
	if err := row.Scan(&id, &name, &minutes, &mode, &g); err != nil {
		return nil, eris.Wrap(err, "store: scan isochrone")
	}
	mp, err := DecodeEWKB(g)
	if err != nil {
		return nil, err
	}
	f := geojson.NewFeature(mp)
	f.Properties["station_id"] = id
	f.Properties["station_name"] = name
	f.Properties["minutes"] = minutes
	f.Properties["mode"] = mode
	return f, nil
}

func scanBuildingFeature(row scannable) (*geojson.Feature, error) {
	var (
		idx, label int
		inside     bool
		nearest    string
		km         float64
		g          []byte
	)
	if err := row.Scan(&idx, &inside, &label, &nearest, &km, &g); err != nil {
		return nil, eris.Wrap(err, "store: scan building")
	}
	mp, err := DecodeEWKB(g)
	if err != nil {
		return nil, err
	}
	f := geojson.NewFeature(mp)
	f.Properties["index"] = idx
	f.Properties["inside"] = inside
	f.Properties["label"] = label
	f.Properties["nearest_station"] = nearest
	f.Properties["distance_km"] = km
	return f, nil
}

func layerScanner(layer Layer) func(scannable) (*geojson.Feature, error) {
	switch layer {
	case LayerStations:
		return scanStationFeature
	case LayerIsochrones:
		return scanIsochroneFeature
	default:
		return scanBuildingFeature
	}
}
