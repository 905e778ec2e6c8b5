// Package colstats implements the per-column accumulators: online numeric
// moments with a robust outlier estimate, and exact categorical frequency
// tracking.
//
// Numeric accumulation is Welford's incremental method, which keeps the
// mean and sum of squared deviations numerically stable in a single pass.
// Outlier detection deliberately does not reuse those moments: extreme
// values inflate the mean and variance used to judge them, hiding their own
// signal. The robust path keeps a bounded uniform sample of the column and
// derives median and MAD from it, which a minority of extreme values cannot
// shift materially.
package colstats

import (
	"math"

	"github.com/montanaflynn/stats"

	"datainspect/internal/config"
)

// normalMADScale makes the MAD a consistent estimator of the standard
// deviation under normality.
const normalMADScale = 1.4826

// Numeric accumulates one numeric column. Not safe for concurrent use; a
// column is owned by exactly one worker for the lifetime of the pass.
type Numeric struct {
	count int64
	mean  float64
	m2    float64
	min   float64
	max   float64

	res  *Reservoir
	done bool
}

// NumericSummary is the finalized state handed to diagnostics and the
// report.
type NumericSummary struct {
	Count  int64
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64

	// Median and MAD come from the robust buffer, not the moments above.
	Median    float64
	ScaledMAD float64

	// OutlierCount is exact when the buffer held the whole column and a
	// sample-rate-adjusted estimate otherwise.
	OutlierCount int64

	// SampleExact records which of the two cases applied.
	SampleExact bool
}

// NewNumeric creates an accumulator with the policy's reservoir bounds.
// The seed is offset per column by the caller so columns sample
// independently.
func NewNumeric(p config.Policy, seed int64) *Numeric {
	return &Numeric{res: NewReservoir(p.RobustBufferCap, seed)}
}

// Update folds one value into the running moments, min/max, and the robust
// buffer.
func (a *Numeric) Update(x float64) {
	if a.done {
		panic("colstats: Update after Finalize")
	}

	a.count++
	delta := x - a.mean
	a.mean += delta / float64(a.count)
	delta2 := x - a.mean
	a.m2 += delta * delta2

	if a.count == 1 {
		a.min = x
		a.max = x
	} else {
		if x < a.min {
			a.min = x
		}
		if x > a.max {
			a.max = x
		}
	}

	a.res.Add(x)
}

// Merge combines a shard accumulator into this one using the parallel
// variance merge. Callers must merge shards in a fixed order (shard index)
// so results are bit-for-bit reproducible regardless of scheduling. The
// argument must not be used after Merge.
func (a *Numeric) Merge(b *Numeric) {
	if a.done || b.done {
		panic("colstats: Merge after Finalize")
	}
	if b.count == 0 {
		return
	}
	if a.count == 0 {
		a.count, a.mean, a.m2, a.min, a.max = b.count, b.mean, b.m2, b.min, b.max
		a.res.Merge(b.res)
		return
	}

	n1, n2 := float64(a.count), float64(b.count)
	delta := b.mean - a.mean
	total := n1 + n2

	a.mean += delta * n2 / total
	a.m2 += b.m2 + delta*delta*n1*n2/total
	a.count += b.count

	if b.min < a.min {
		a.min = b.min
	}
	if b.max > a.max {
		a.max = b.max
	}
	a.res.Merge(b.res)
}

// Count returns the number of values accumulated so far.
func (a *Numeric) Count() int64 { return a.count }

// Finalize closes the accumulator and computes the summary, including the
// robust median/MAD and the outlier count. It may be called exactly once;
// no updates are permitted afterwards.
func (a *Numeric) Finalize(p config.Policy) NumericSummary {
	if a.done {
		panic("colstats: Finalize called twice")
	}
	a.done = true

	s := NumericSummary{
		Count:       a.count,
		Mean:        a.mean,
		Min:         a.min,
		Max:         a.max,
		SampleExact: a.res.Exact(),
	}
	if a.count > 1 {
		s.StdDev = math.Sqrt(a.m2 / float64(a.count-1))
	}

	buf := a.res.Values()
	if len(buf) == 0 {
		return s
	}

	// stats.Median sorts a copy; errors are impossible on non-empty input.
	s.Median, _ = stats.Median(buf)

	dev := make([]float64, len(buf))
	for i, x := range buf {
		dev[i] = math.Abs(x - s.Median)
	}
	mad, _ := stats.Median(dev)
	s.ScaledMAD = mad * normalMADScale

	var flagged int64
	for _, x := range buf {
		// A zero MAD divides to +Inf for any off-median value, which is the
		// wanted behavior: in a degenerate column every deviant is extreme.
		if math.Abs(x-s.Median)/s.ScaledMAD >= p.OutlierRobustZ {
			flagged++
		}
	}

	if s.SampleExact {
		s.OutlierCount = flagged
	} else {
		rate := float64(a.res.Seen()) / float64(len(buf))
		s.OutlierCount = int64(math.Round(float64(flagged) * rate))
	}
	return s
}
