package engine

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"datainspect/internal/config"
	"datainspect/internal/diagnose"
	"datainspect/internal/report"
)

func rowOf(fields ...string) *Row {
	r := GetRow(len(fields))
	copy(r.Fields, fields)
	return r
}

func runRows(t *testing.T, workers int, header []string, rows [][]string) *report.Report {
	t.Helper()

	eng := New(config.DefaultPolicy(), Options{Workers: workers})
	if err := eng.Begin(header); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	ch := make(chan *Row, 16)
	go func() {
		defer close(ch)
		for _, r := range rows {
			ch <- rowOf(r...)
		}
	}()
	if err := eng.Run(context.Background(), ch); err != nil {
		t.Fatalf("Run: %v", err)
	}

	eng.Finalize()
	return eng.Report("test", "csv")
}

// salaryFixture builds the canonical scenario: 99 salaries around
// N(50000, 8000) plus one at 200000, a department cycling over three
// labels, and a unique user id per row.
func salaryFixture() (header []string, rows [][]string) {
	dist := distuv.Normal{Mu: 50000, Sigma: 8000, Src: rand.NewSource(42)}
	depts := []string{"eng", "sales", "ops"}

	header = []string{"salary", "department", "user_id"}
	for i := 0; i < 100; i++ {
		salary := fmt.Sprintf("%.2f", dist.Rand())
		if i == 37 {
			salary = "200000"
		}
		rows = append(rows, []string{salary, depts[i%3], fmt.Sprintf("%d", i)})
	}
	return header, rows
}

func findingFor(rep *report.Report, column string, rule diagnose.RuleKind) *diagnose.Finding {
	for _, c := range rep.Columns {
		if c.Name != column {
			continue
		}
		for i := range c.Findings {
			if c.Findings[i].Rule == rule {
				return &c.Findings[i]
			}
		}
	}
	return nil
}

// TestEndToEndSalaryScenario is the canonical whole-engine check: the
// injected salary is the only outlier, user_id reads as an identifier,
// and department comes back clean.
func TestEndToEndSalaryScenario(t *testing.T) {
	t.Parallel()

	header, rows := salaryFixture()
	rep := runRows(t, 1, header, rows)

	if rep.RowCount != 100 {
		t.Fatalf("RowCount = %d, want 100", rep.RowCount)
	}

	f := findingFor(rep, "salary", diagnose.RuleExtremeOutliers)
	if f == nil {
		t.Fatalf("salary outlier finding absent; report %+v", rep.Columns[0])
	}
	if f.Count != 1 {
		t.Errorf("salary outlier count = %d, want 1", f.Count)
	}

	id := findingFor(rep, "user_id", diagnose.RuleIdentifierLike)
	if id == nil {
		t.Fatalf("user_id identifier finding absent")
	}
	if math.Abs(id.Fraction-1.0) > 1e-12 {
		t.Errorf("user_id distinct ratio = %v, want 1.0", id.Fraction)
	}

	for _, c := range rep.Columns {
		if c.Name == "department" && !c.OK() {
			t.Errorf("department should be ok, got findings %+v", c.Findings)
		}
	}

	// user_id is all integers, so it resolves numeric; the identifier rule
	// must still have seen its cardinality through the categorical view.
	// department stays categorical with 3 distinct values.
	for _, c := range rep.Columns {
		if c.Name == "department" {
			if c.Categorical == nil || c.Categorical.DistinctCount != 3 {
				t.Errorf("department stats = %+v, want 3 distinct", c.Categorical)
			}
		}
	}
}

// TestDeterministicReports runs the same input twice and requires
// byte-identical JSON output.
func TestDeterministicReports(t *testing.T) {
	t.Parallel()

	header, rows := salaryFixture()

	render := func() []byte {
		rep := runRows(t, 1, header, rows)
		var buf bytes.Buffer
		if err := report.RenderJSON(&buf, rep); err != nil {
			t.Fatalf("render: %v", err)
		}
		return buf.Bytes()
	}

	first, second := render(), render()
	if !bytes.Equal(first, second) {
		t.Fatalf("reports differ between identical runs:\n%s\n---\n%s", first, second)
	}
}

// TestParallelMatchesSerial shards columns across workers and requires
// the exact same report as the serial pass.
func TestParallelMatchesSerial(t *testing.T) {
	t.Parallel()

	header, rows := salaryFixture()

	var rendered [][]byte
	for _, workers := range []int{1, 2, 3, 8} {
		rep := runRows(t, workers, header, rows)
		var buf bytes.Buffer
		if err := report.RenderJSON(&buf, rep); err != nil {
			t.Fatalf("render: %v", err)
		}
		rendered = append(rendered, buf.Bytes())
	}
	for i := 1; i < len(rendered); i++ {
		if !bytes.Equal(rendered[0], rendered[i]) {
			t.Fatalf("worker variant %d diverged from serial:\n%s\n---\n%s",
				i, rendered[0], rendered[i])
		}
	}
}

// TestMalformedRowsAreCountedNotFatal feeds rows with the wrong arity and
// expects them skipped, counted, and the pass to continue.
func TestMalformedRowsAreCountedNotFatal(t *testing.T) {
	t.Parallel()

	header := []string{"a", "b"}
	rows := [][]string{
		{"1", "x"},
		{"2"},                // short
		{"3", "y", "extra"},  // long
		{"4", "z"},
	}

	rep := runRows(t, 1, header, rows)
	if rep.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", rep.RowCount)
	}
	if rep.MalformedRows != 2 {
		t.Errorf("MalformedRows = %d, want 2", rep.MalformedRows)
	}
}

func TestMissingFractionGrading(t *testing.T) {
	t.Parallel()

	build := func(missing, total int) [][]string {
		var rows [][]string
		for i := 0; i < total; i++ {
			v := "ok"
			if i < missing {
				v = ""
			}
			rows = append(rows, []string{v})
		}
		return rows
	}

	tests := []struct {
		name    string
		missing int
		wantSev diagnose.Severity
		none    bool
	}{
		{"sixty percent empty", 60, diagnose.SeverityCritical, false},
		{"fifteen percent empty", 15, diagnose.SeverityWarning, false},
		{"fully populated", 0, 0, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rep := runRows(t, 1, []string{"col"}, build(tt.missing, 100))
			f := findingFor(rep, "col", diagnose.RuleMissingValues)
			if tt.none {
				if f != nil {
					t.Fatalf("unexpected missing finding %+v", f)
				}
				return
			}
			if f == nil {
				t.Fatalf("missing finding absent")
			}
			if f.Severity != tt.wantSev {
				t.Errorf("severity = %v, want %v", f.Severity, tt.wantSev)
			}
		})
	}
}

// TestLifecycleUsageErrors pins the fatal usage contract: touching the
// engine outside its current state panics rather than corrupting a run.
func TestLifecycleUsageErrors(t *testing.T) {
	t.Parallel()

	mustPanic := func(name string, fn func()) {
		defer func() {
			if recover() == nil {
				t.Errorf("%s did not panic", name)
			}
		}()
		fn()
	}

	t.Run("consume before begin", func(t *testing.T) {
		t.Parallel()
		eng := New(config.DefaultPolicy(), Options{})
		mustPanic("Consume in Empty", func() { eng.Consume(rowOf("1")) })
	})

	t.Run("update after finalize", func(t *testing.T) {
		t.Parallel()
		eng := New(config.DefaultPolicy(), Options{})
		if err := eng.Begin([]string{"a"}); err != nil {
			t.Fatal(err)
		}
		eng.Consume(rowOf("1"))
		eng.Finalize()
		mustPanic("Consume in Finalized", func() { eng.Consume(rowOf("2")) })
		mustPanic("double Finalize", func() { eng.Finalize() })
	})

	t.Run("report before finalize and double report", func(t *testing.T) {
		t.Parallel()
		eng := New(config.DefaultPolicy(), Options{})
		if err := eng.Begin([]string{"a"}); err != nil {
			t.Fatal(err)
		}
		mustPanic("Report in Streaming", func() { eng.Report("x", "csv") })
		eng.Finalize()
		eng.Report("x", "csv")
		mustPanic("double Report", func() { eng.Report("x", "csv") })
	})

	t.Run("empty header is an error not a panic", func(t *testing.T) {
		t.Parallel()
		eng := New(config.DefaultPolicy(), Options{})
		if err := eng.Begin(nil); err == nil {
			t.Fatalf("Begin(nil) succeeded")
		}
	})
}

// TestMixedColumnFinding drives a column that is mostly numeric with text
// contamination through the whole engine.
func TestMixedColumnFinding(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		{"1"}, {"2"}, {"3"}, {"4"}, {"5"}, {"6"}, {"7"}, {"oops"}, {"9"}, {"10"},
	}
	rep := runRows(t, 1, []string{"v"}, rows)

	f := findingFor(rep, "v", diagnose.RuleMixedType)
	if f == nil {
		t.Fatalf("mixed-type finding absent")
	}
	if f.Count != 1 {
		t.Errorf("nonconforming count = %d, want 1", f.Count)
	}
	for _, c := range rep.Columns {
		if c.InferredType != "mixed" {
			t.Errorf("inferred type = %q, want mixed", c.InferredType)
		}
		if c.Numeric == nil || c.Numeric.Count != 9 {
			t.Errorf("numeric stats should cover the 9 conforming values, got %+v", c.Numeric)
		}
	}
}

func TestContextCancellationStopsRun(t *testing.T) {
	t.Parallel()

	eng := New(config.DefaultPolicy(), Options{Workers: 2})
	if err := eng.Begin([]string{"a", "b"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan *Row)
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, ch) }()

	ch <- rowOf("1", "2")
	cancel()

	if err := <-done; err != context.Canceled {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}
