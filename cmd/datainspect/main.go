// Command datainspect profiles a tabular file in one streaming pass and
// reports per-column summary statistics and data-quality findings.
//
// Usage:
//
//	datainspect [flags] <file|url>
//
// The input format is decided by extension (.csv, .tsv, .json, .xlsx),
// looking beneath a compression suffix (.gz, .bz2, .xz, .zst). Exit codes:
// 0 on success, 1 on usage or configuration errors, 2 when the input
// stream fails mid-pass (no partial report is emitted).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"datainspect/internal/config"
	"datainspect/internal/engine"
	"datainspect/internal/metrics"
	"datainspect/internal/metrics/datadog"
	csvparser "datainspect/internal/parser/csv"
	jsonparser "datainspect/internal/parser/json"
	xlsxparser "datainspect/internal/parser/xlsx"
	"datainspect/internal/report"
	"datainspect/internal/source"
)

func main() {
	var (
		showTypes   bool
		showSummary bool
		showDiag    bool
		asJSON      bool
		delimiter   string
		encoding    string
		policyPath  string
		robustCap   int
		workers     int
		metricsFlg  string
		insecureTLS bool
	)

	flag.BoolVar(&showTypes, "types", false, "print inferred column types")
	flag.BoolVar(&showSummary, "summary", false, "print per-column summary statistics")
	flag.BoolVar(&showDiag, "diagnose", false, "print data-quality findings")
	flag.BoolVar(&asJSON, "json", false, "emit the full report as JSON instead of text")
	flag.StringVar(&delimiter, "delimiter", "", "field delimiter override (single character)")
	flag.StringVar(&encoding, "encoding", "", "input charset (latin1, windows-1252); default UTF-8")
	flag.StringVar(&policyPath, "policy", "", "policy JSON path overriding the built-in thresholds")
	flag.IntVar(&robustCap, "robust-cap", 0, "robust-statistics buffer cap override (0 keeps the policy value)")
	flag.IntVar(&workers, "workers", 1, "column worker goroutines")
	flag.StringVar(&metricsFlg, "metrics-backend", "", "metrics backend to use (none, datadog)")
	flag.BoolVar(&insecureTLS, "insecure-tls", false, "skip TLS verification for https inputs")
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: datainspect [flags] <file|url>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	target := flag.Arg(0)

	policy := config.DefaultPolicy()
	if policyPath != "" {
		var err error
		if policy, err = config.LoadPolicy(policyPath); err != nil {
			fatalf("load policy: %v", err)
		}
	}
	if robustCap > 0 {
		policy.RobustBufferCap = robustCap
	}

	issues := config.ValidatePolicy(policy)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintln(os.Stderr, iss)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		fatalf("policy is invalid")
	}

	format, err := source.DetectFormat(target)
	if err != nil {
		fatalf("%v", err)
	}

	comma := defaultComma(format)
	if delimiter != "" {
		runes := []rune(delimiter)
		if len(runes) != 1 {
			fatalf("delimiter must be a single character, got %q", delimiter)
		}
		comma = runes[0]
	}

	// Decide metrics backend: flag -> env -> default (none).
	backendName := metricsFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: "datainspect",
			Tags:    datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			if *verbose {
				log.Printf("metrics: backend=%v", backendName)
			}
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}
	case "", "none":
		// nop backend remains
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	rep, err := inspect(ctx, target, format, comma, encoding, insecureTLS, policy, workers, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect %s: %v\n", target, err)
		os.Exit(2)
	}
	metrics.ObserveHistogram("run_duration_seconds", time.Since(start).Seconds(), nil)

	if *verbose {
		log.Printf("inspected %d rows in %s", rep.RowCount, time.Since(start).Truncate(time.Millisecond))
	}

	if asJSON {
		if err := report.RenderJSON(os.Stdout, rep); err != nil {
			fatalf("render: %v", err)
		}
		return
	}

	opts := report.RenderOptions{
		ShowTypes:       showTypes,
		ShowSummary:     showSummary,
		ShowDiagnostics: showDiag,
	}
	if err := report.RenderText(os.Stdout, rep, opts); err != nil {
		fatalf("render: %v", err)
	}
}

// inspect runs the whole pass: open, parse, accumulate, finalize, report.
// A stream-level failure aborts before Finalize so no partial report can
// escape.
func inspect(
	ctx context.Context,
	target string,
	format source.Format,
	comma rune,
	encoding string,
	insecureTLS bool,
	policy config.Policy,
	workers int,
	verbose bool,
) (*report.Report, error) {
	src, err := source.Open(ctx, target, source.Options{
		Encoding:    encoding,
		InsecureTLS: insecureTLS,
	})
	if err != nil {
		return nil, err
	}
	defer src.Close()

	eng := engine.New(policy, engine.Options{Workers: workers})
	rows := make(chan *engine.Row, 256)
	started := make(chan struct{})

	begin := func(header []string) error {
		if err := eng.Begin(header); err != nil {
			return err
		}
		close(started)
		return nil
	}

	onRowErr := func(line int, err error) {
		eng.NoteMalformed()
		if verbose {
			log.Printf("row %d skipped: %v", line, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rows)
		switch format {
		case source.FormatCSV, source.FormatTSV:
			opt := csvparser.Options{Comma: comma, TrimSpace: true}
			return csvparser.Stream(ctx, src, opt, begin, rows, onRowErr)
		case source.FormatJSON:
			return jsonparser.Stream(ctx, src, begin, rows)
		case source.FormatXLSX:
			return xlsxparser.Stream(ctx, src, begin, rows)
		default:
			return fmt.Errorf("no parser for format %q", format)
		}
	})
	g.Go(func() error {
		select {
		case <-started:
		case <-ctx.Done():
			return ctx.Err()
		}
		return eng.Run(ctx, rows)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	eng.Finalize()
	return eng.Report(target, string(format)), nil
}

func defaultComma(f source.Format) rune {
	if f == source.FormatTSV {
		return '\t'
	}
	return ','
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
