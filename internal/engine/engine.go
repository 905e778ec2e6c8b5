package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"datainspect/internal/classify"
	"datainspect/internal/colstats"
	"datainspect/internal/config"
	"datainspect/internal/diagnose"
	"datainspect/internal/metrics"
	"datainspect/internal/report"
)

// state is the engine lifecycle. Transitions only move forward; updating a
// finalized engine is a programming error and panics.
type state uint8

const (
	stateEmpty state = iota
	stateStreaming
	stateFinalized
	stateReported
)

func (s state) String() string {
	switch s {
	case stateEmpty:
		return "empty"
	case stateStreaming:
		return "streaming"
	case stateFinalized:
		return "finalized"
	case stateReported:
		return "reported"
	default:
		return "unknown"
	}
}

// Options controls a single engine run.
type Options struct {
	// Workers is the number of goroutines columns are sharded across during
	// Run. Values below 2 select the serial path.
	Workers int
}

// column bundles everything one column owns for the lifetime of the pass.
// Each column is touched by exactly one goroutine, so none of this is
// locked.
type column struct {
	name     string
	resolver *classify.Resolver
	num      *colstats.Numeric
	cat      *colstats.Categorical

	// populated by Finalize
	resolution classify.Resolution
	numSum     *colstats.NumericSummary
	catSum     *colstats.CategoricalSummary
}

// Engine is the single-use orchestrator for one pass over one file. It is
// created at stream start and discarded after the report is emitted; there
// is no cross-file reuse of accumulator state.
type Engine struct {
	policy     config.Policy
	opts       Options
	classifier *classify.Classifier

	state     state
	cols      []*column
	rowCount  int64
	malformed int64
}

// New creates an engine in the Empty state.
func New(p config.Policy, opts Options) *Engine {
	return &Engine{
		policy:     p,
		opts:       opts,
		classifier: classify.NewClassifier(p),
	}
}

// Begin fixes the column count from the header and creates each column's
// resolver and accumulators. It transitions Empty -> Streaming.
func (e *Engine) Begin(header []string) error {
	if e.state != stateEmpty {
		panic(fmt.Sprintf("engine: Begin in state %s", e.state))
	}
	if len(header) == 0 {
		return fmt.Errorf("engine: empty header")
	}

	e.cols = make([]*column, len(header))
	for i, name := range header {
		e.cols[i] = &column{
			name:     name,
			resolver: &classify.Resolver{},
			// Offset the seed per column so reservoirs sample independently
			// while staying reproducible across runs.
			num: colstats.NewNumeric(e.policy, e.policy.RobustSeed+int64(i)),
			cat: colstats.NewCategorical(),
		}
	}
	e.state = stateStreaming
	return nil
}

// Consume folds one row into the per-column state and releases it. Rows
// whose field count does not match the header are counted as malformed and
// skipped; the pass continues.
func (e *Engine) Consume(row *Row) {
	if e.state != stateStreaming {
		panic(fmt.Sprintf("engine: Consume in state %s", e.state))
	}
	if len(row.Fields) != len(e.cols) {
		e.NoteMalformed()
		row.Free()
		return
	}
	e.rowCount++
	for i, col := range e.cols {
		e.observe(col, row.Fields[i])
	}
	row.Free()
}

// observe classifies one field and routes it to the owning column's
// accumulators. The classification is recorded independently of the
// column's eventual type; resolution only happens at end of stream, so a
// numeric field always reaches the numeric accumulator and every
// non-missing field reaches the categorical one. The losing branch is
// discarded at Finalize.
func (e *Engine) observe(col *column, raw string) {
	fv := e.classifier.Classify(raw)
	col.resolver.Observe(fv.Kind)

	switch fv.Kind {
	case classify.KindMissing:
	case classify.KindInteger, classify.KindFloat:
		col.num.Update(fv.AsFloat())
		col.cat.Update(fv.CanonicalText())
	default:
		col.cat.Update(fv.CanonicalText())
	}
}

// NoteMalformed counts one skipped row. The parser calls this for rows it
// could not tokenize at all; Consume calls it for wrong-arity rows. Safe
// for concurrent use.
func (e *Engine) NoteMalformed() {
	atomic.AddInt64(&e.malformed, 1)
	metrics.IncCounter("rows_malformed", 1, nil)
}

// Run consumes rows until the channel closes or ctx is canceled. With
// Workers >= 2 the columns are sharded across workers; each worker owns its
// shard's accumulators exclusively, and every column still sees its fields
// in row order, so the result is identical to the serial path.
func (e *Engine) Run(ctx context.Context, rows <-chan *Row) error {
	if e.state != stateStreaming {
		panic(fmt.Sprintf("engine: Run in state %s", e.state))
	}

	workers := e.opts.Workers
	if workers > len(e.cols) {
		workers = len(e.cols)
	}
	if workers < 2 {
		return e.runSerial(ctx, rows)
	}

	// Contiguous column shards.
	shards := make([][]int, workers)
	for i := range e.cols {
		w := i * workers / len(e.cols)
		shards[w] = append(shards[w], i)
	}

	feeds := make([]chan *Row, workers)
	for w := range feeds {
		feeds[w] = make(chan *Row, 64)
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		shard := shards[w]
		feed := feeds[w]
		g.Go(func() error {
			for row := range feed {
				for _, i := range shard {
					e.observe(e.cols[i], row.Fields[i])
				}
				row.Free()
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, feed := range feeds {
				close(feed)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case row, ok := <-rows:
				if !ok {
					return nil
				}
				if len(row.Fields) != len(e.cols) {
					e.NoteMalformed()
					row.Free()
					continue
				}
				e.rowCount++
				row.retain(int32(workers))
				for _, feed := range feeds {
					select {
					case feed <- row:
					case <-ctx.Done():
						row.Drop()
						return ctx.Err()
					}
				}
			}
		}
	})

	return g.Wait()
}

func (e *Engine) runSerial(ctx context.Context, rows <-chan *Row) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case row, ok := <-rows:
			if !ok {
				return nil
			}
			e.Consume(row)
		}
	}
}

// Finalize resolves every column's type and closes its accumulators, in
// column order, exactly once. No updates are permitted afterwards.
func (e *Engine) Finalize() {
	if e.state != stateStreaming {
		panic(fmt.Sprintf("engine: Finalize in state %s", e.state))
	}
	e.state = stateFinalized

	for _, col := range e.cols {
		col.resolution = col.resolver.Resolve()
		// The categorical view is closed for every column; cardinality rules
		// apply to numeric columns too.
		s := col.cat.Finalize()
		col.catSum = &s
		if col.resolution.Effective == classify.TypeNumeric {
			n := col.num.Finalize(e.policy)
			col.numSum = &n
		}
	}
}

// Report evaluates diagnostics and assembles the report, exactly once.
func (e *Engine) Report(source, format string) *report.Report {
	if e.state != stateFinalized {
		panic(fmt.Sprintf("engine: Report in state %s", e.state))
	}
	e.state = stateReported

	rep := &report.Report{
		Source:        source,
		Format:        format,
		RowCount:      e.rowCount,
		MalformedRows: e.malformed,
		Columns:       make([]report.Column, len(e.cols)),
	}

	for i, col := range e.cols {
		state := diagnose.ColumnState{
			Name:        col.name,
			Index:       i,
			Resolution:  col.resolution,
			Missing:     col.resolver.Missing(),
			Numeric:     col.numSum,
			Categorical: col.catSum,
		}
		findings := diagnose.Evaluate(state, e.rowCount, e.policy)

		rc := report.Column{
			Name:         col.name,
			Index:        i,
			InferredType: col.resolution.Type.String(),
			MissingCount: col.resolver.Missing(),
			Findings:     findings,
		}
		// The report carries exactly one stats block, matching the effective
		// type; diagnostics above saw both views.
		if col.numSum != nil {
			rc.Numeric = &report.NumericStats{
				Count:        col.numSum.Count,
				Min:          col.numSum.Min,
				Max:          col.numSum.Max,
				Mean:         col.numSum.Mean,
				StdDev:       col.numSum.StdDev,
				Median:       col.numSum.Median,
				OutlierCount: col.numSum.OutlierCount,
			}
		} else {
			rc.Categorical = &report.CategoricalStats{
				Count:          col.catSum.NonMissing,
				DistinctCount:  col.catSum.DistinctCount,
				DistinctRatio:  col.catSum.DistinctRatio,
				ModalValue:     col.catSum.ModalValue,
				ModalFrequency: col.catSum.ModalCount,
			}
		}
		rep.Columns[i] = rc

		for _, f := range findings {
			metrics.IncCounter("findings", 1, metrics.Labels{
				"rule":     string(f.Rule),
				"severity": f.Severity.String(),
			})
		}
	}

	metrics.IncCounter("rows_read", float64(e.rowCount), nil)
	return rep
}
