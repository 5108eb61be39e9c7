package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/isoreach/internal/model"
)

// WriteWorkbook writes the run's results as one workbook with the sheets
// Summary, Distances, Histogram and Failures.
func WriteWorkbook(path string, run *model.RunResult, bins []Bin) error {
	f := xlsx.NewFile()

	summary, err := addSheet(f, "Summary", "Region", "Inside", "Outside", "Total", "Proportion inside")
	if err != nil {
		return err
	}
	for _, r := range run.Summary() {
		row := summary.AddRow()
		row.AddCell().SetString(r.Region)
		row.AddCell().SetInt(r.Inside)
		row.AddCell().SetInt(r.Outside)
		row.AddCell().SetInt(r.Total)
		row.AddCell().SetString(r.ProportionLabel())
	}

	distances, err := addSheet(f, "Distances", "Region", "Building", "Nearest station", "Distance (km)")
	if err != nil {
		return err
	}
	for _, d := range run.Distances() {
		row := distances.AddRow()
		row.AddCell().SetString(d.Region)
		row.AddCell().SetInt(d.BuildingIndex)
		row.AddCell().SetString(d.NearestStation)
		row.AddCell().SetFloat(d.DistanceKm)
	}

	hist, err := addSheet(f, "Histogram", "Region", "From (km)", "To (km)", "Buildings")
	if err != nil {
		return err
	}
	for _, b := range bins {
		row := hist.AddRow()
		row.AddCell().SetString(b.Region)
		row.AddCell().SetFloat(b.LowerKm)
		row.AddCell().SetFloat(b.UpperKm)
		row.AddCell().SetInt(b.Count)
	}

	failures, err := addSheet(f, "Failures", "Region", "Station", "Kind", "Error")
	if err != nil {
		return err
	}
	for _, name := range run.Order {
		res := run.Regions[name]
		if res == nil {
			continue
		}
		if res.Err != nil {
			row := failures.AddRow()
			row.AddCell().SetString(name)
			row.AddCell().SetString("")
			row.AddCell().SetString(string(res.Err.Kind))
			msg := ""
			if res.Err.Err != nil {
				msg = res.Err.Err.Error()
			}
			row.AddCell().SetString(msg)
		}
		for _, fl := range res.Failures {
			row := failures.AddRow()
			row.AddCell().SetString(name)
			row.AddCell().SetString(fl.StationName)
			row.AddCell().SetString(string(fl.Kind))
			row.AddCell().SetString(fl.Error)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func addSheet(f *xlsx.File, name string, header ...string) (*xlsx.Sheet, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, eris.Wrapf(err, "report: add sheet %s", name)
	}
	row := sheet.AddRow()
	for _, h := range header {
		row.AddCell().SetString(h)
	}
	return sheet, nil
}
