// Package report writes run results as tables, spreadsheets and map layers.
package report

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/isoreach/internal/model"
)

// Formats accepted by the exporter.
const (
	FormatCSV     = "csv"
	FormatXLSX    = "xlsx"
	FormatGeoJSON = "geojson"
)

// Exporter writes the artifacts of a run under Dir/<run id>/.
type Exporter struct {
	Dir            string
	Formats        []string
	HistogramBinKm float64
}

func (e *Exporter) enabled(format string) bool {
	for _, f := range e.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Export writes every enabled format and returns the files written.
func (e *Exporter) Export(run *model.RunResult) ([]string, error) {
	dir := filepath.Join(e.Dir, run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", dir)
	}
	log := zap.L().With(zap.String("component", "report"), zap.String("run_id", run.ID))

	var written []string
	bins := Histograms(run, e.HistogramBinKm)

	if e.enabled(FormatCSV) {
		for _, f := range []struct {
			name  string
			write func(string) error
		}{
			{"summary.csv", func(p string) error { return WriteSummaryCSV(p, run.Summary()) }},
			{"distances.csv", func(p string) error { return WriteDistancesCSV(p, run.Distances()) }},
			{"histogram.csv", func(p string) error { return WriteHistogramCSV(p, bins) }},
		} {
			p := filepath.Join(dir, f.name)
			if err := f.write(p); err != nil {
				return written, err
			}
			written = append(written, p)
		}
	}

	if e.enabled(FormatXLSX) {
		p := filepath.Join(dir, "results.xlsx")
		if err := WriteWorkbook(p, run, bins); err != nil {
			return written, err
		}
		written = append(written, p)
	}

	if e.enabled(FormatGeoJSON) {
		for _, name := range run.Order {
			res := run.Regions[name]
			if !res.OK() {
				continue
			}
			for _, layer := range []struct {
				suffix string
				fc     *geojson.FeatureCollection
			}{
				{"buildings", BuildingsLayer(res)},
				{"isochrones", IsochronesLayer(res)},
				{"stations", StationsLayer(res)},
			} {
				p := filepath.Join(dir, Slug(name)+"_"+layer.suffix+".geojson")
				if err := writeGeoJSON(p, layer.fc); err != nil {
					return written, err
				}
				written = append(written, p)
			}
		}
	}

	log.Info("report: exported", zap.Int("files", len(written)), zap.String("dir", dir))
	return written, nil
}

func writeGeoJSON(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return eris.Wrapf(err, "report: encode %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

// Slug turns a region name into a file name fragment.
func Slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == 'æ':
			b.WriteString("ae")
		case r == 'ø':
			b.WriteString("oe")
		case r == 'å':
			b.WriteString("aa")
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
