package report

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/isoreach/internal/model"
)

// Bin is one fixed-width bucket of nearest-station distances.
type Bin struct {
	Region  string  `csv:"region"`
	LowerKm float64 `csv:"lower_km"`
	UpperKm float64 `csv:"upper_km"`
	Count   int     `csv:"count"`
}

// Histogram buckets a region's distances into bins of width km, starting
// at zero. Bins run up to the first one past the largest distance.
func Histogram(region string, recs []model.DistanceRecord, width float64) []Bin {
	if len(recs) == 0 || width <= 0 {
		return nil
	}
	x := make([]float64, len(recs))
	for i, r := range recs {
		x[i] = math.Max(r.DistanceKm, 0)
	}
	sort.Float64s(x)

	n := int(math.Floor(x[len(x)-1]/width)) + 1
	for float64(n)*width <= x[len(x)-1] {
		n++
	}
	dividers := make([]float64, n+1)
	for i := range dividers {
		dividers[i] = float64(i) * width
	}
	counts := stat.Histogram(nil, dividers, x, nil)

	bins := make([]Bin, n)
	for i := range bins {
		bins[i] = Bin{Region: region, LowerKm: dividers[i], UpperKm: dividers[i+1], Count: int(counts[i])}
	}
	return bins
}

// Histograms builds one series per completed region in run order.
func Histograms(run *model.RunResult, width float64) []Bin {
	var out []Bin
	for _, name := range run.Order {
		res := run.Regions[name]
		if !res.OK() {
			continue
		}
		out = append(out, Histogram(name, res.Distances, width)...)
	}
	return out
}
