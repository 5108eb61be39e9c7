package report

import (
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/isoreach/internal/model"
)

// summaryLine is a summary row with the proportion as printed.
type summaryLine struct {
	Region           string `csv:"region"`
	Inside           int    `csv:"inside"`
	Outside          int    `csv:"outside"`
	Total            int    `csv:"total"`
	ProportionInside string `csv:"proportion_inside"`
}

// WriteSummaryCSV writes the summary rows. The header is written even
// when there are no rows.
func WriteSummaryCSV(path string, rows []model.SummaryRow) error {
	lines := make([]summaryLine, len(rows))
	for i, r := range rows {
		lines[i] = summaryLine{r.Region, r.Inside, r.Outside, r.Total, r.ProportionLabel()}
	}
	return writeCSV(path, lines)
}

// WriteDistancesCSV writes one row per building.
func WriteDistancesCSV(path string, recs []model.DistanceRecord) error {
	if recs == nil {
		recs = []model.DistanceRecord{}
	}
	return writeCSV(path, recs)
}

// WriteHistogramCSV writes the distance histogram bins.
func WriteHistogramCSV(path string, bins []Bin) error {
	if bins == nil {
		bins = []Bin{}
	}
	return writeCSV(path, bins)
}

func writeCSV(path string, v any) error {
	data, err := csvutil.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "report: encode %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}
