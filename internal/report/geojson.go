package report

import (
	"github.com/paulmach/orb/geojson"

	"github.com/sells-group/isoreach/internal/model"
)

// StationsLayer returns the region's stations as point features.
func StationsLayer(res *model.RegionResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range res.Stations {
		f := geojson.NewFeature(s.Location)
		f.ID = s.ID
		f.Properties["name"] = s.Name
		fc.Append(f)
	}
	return fc
}

// IsochronesLayer returns one feature per station reach area.
func IsochronesLayer(res *model.RegionResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, iso := range res.Isochrones {
		f := geojson.NewFeature(iso.Geometry)
		f.Properties["station_id"] = iso.StationID
		f.Properties["station_name"] = iso.StationName
		f.Properties["minutes"] = iso.Minutes
		f.Properties["mode"] = string(iso.Mode)
		fc.Append(f)
	}
	return fc
}

// BuildingsLayer returns the classified buildings with their distances.
func BuildingsLayer(res *model.RegionResult) *geojson.FeatureCollection {
	dist := make(map[int]model.DistanceRecord, len(res.Distances))
	for _, d := range res.Distances {
		dist[d.BuildingIndex] = d
	}
	fc := geojson.NewFeatureCollection()
	for _, b := range res.Buildings {
		f := geojson.NewFeature(b.Geometry)
		f.Properties["index"] = b.Index
		f.Properties["inside"] = b.Inside
		f.Properties["label"] = b.Label
		if d, ok := dist[b.Index]; ok {
			f.Properties["nearest_station"] = d.NearestStation
			f.Properties["distance_km"] = d.DistanceKm
		}
		fc.Append(f)
	}
	return fc
}
