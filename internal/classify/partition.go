package classify

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/isoreach/internal/metrics"
	"github.com/sells-group/isoreach/internal/model"
)

// Counts is the size of each side of a partition.
type Counts struct {
	Inside  int
	Outside int
}

// Total returns the number of classified buildings.
func (c Counts) Total() int { return c.Inside + c.Outside }

// Option configures Partition.
type Option func(*partitionConfig)

type partitionConfig struct {
	workers int
}

// WithWorkers splits coverage tests across n goroutines. The default is 1.
func WithWorkers(n int) Option {
	return func(c *partitionConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// Partition marks each building inside or outside the area and numbers
// the buildings 1..n within each group in input order. Labels do not
// depend on the worker count.
func Partition(ctx context.Context, buildings []model.Building, area *Area, opts ...Option) (Counts, error) {
	cfg := partitionConfig{workers: 1}
	for _, o := range opts {
		o(&cfg)
	}
	inside := make([]bool, len(buildings))

	workers := cfg.workers
	chunk := (len(buildings) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(buildings); start += chunk {
		lo, hi := start, min(start+chunk, len(buildings))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				inside[i] = area.Covers(buildings[i].Geometry)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Counts{}, err
	}

	var c Counts
	for i := range buildings {
		b := &buildings[i]
		b.Inside = inside[i]
		if b.Inside {
			c.Inside++
			b.Label = c.Inside
		} else {
			c.Outside++
			b.Label = c.Outside
		}
	}
	if len(buildings) > 0 {
		region := buildings[0].Region
		metrics.BuildingsClassified.WithLabelValues(region, "inside").Add(float64(c.Inside))
		metrics.BuildingsClassified.WithLabelValues(region, "outside").Add(float64(c.Outside))
	}
	return c, nil
}

// Summarize turns counts into a summary row. The proportion is a
// percentage rounded to one decimal, with exact halves going to the even
// digit.
func Summarize(region string, c Counts) model.SummaryRow {
	row := model.SummaryRow{
		Region:  region,
		Inside:  c.Inside,
		Outside: c.Outside,
		Total:   c.Total(),
	}
	if row.Total > 0 {
		row.ProportionInside = roundHalfEven(float64(c.Inside)/float64(row.Total)*100, 1)
	}
	return row
}

// roundHalfEven rounds the exact binary value of x to the given decimals.
// strconv formats with round-half-even on exact ties.
func roundHalfEven(x float64, decimals int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', decimals, 64), 64)
	if err != nil {
		return x
	}
	return r
}
