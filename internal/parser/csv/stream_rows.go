// Package csv streams delimiter-separated rows into pooled engine rows.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"datainspect/internal/engine"
)

// Options controls CSV tokenization.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// TrimSpace trims ASCII whitespace from every field.
	TrimSpace bool
	// LazyQuotes relaxes quote handling for sloppy producers.
	LazyQuotes bool
}

// Stream reads the header row, reports it through begin, then streams every
// data row into out as a pooled *engine.Row.
//
// Error taxonomy:
//   - Row-level parse errors (bad quoting) go to onErr and the row is
//     skipped; the pass continues.
//   - Wrong-arity rows are NOT an error here: they are delivered as-is and
//     counted by the engine as malformed.
//   - Any other read failure is stream-level and fatal: Stream returns it,
//     wrapped with the record number at which it occurred.
//
// On ctx cancellation in-flight rows are dropped, not re-pooled, so a
// downstream stage still reading them cannot race a reuse.
func Stream(
	ctx context.Context,
	src io.Reader,
	opt Options,
	begin func(header []string) error,
	out chan<- *engine.Row,
	onErr func(line int, err error),
) error {
	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1 // arity is validated by the engine

	var line int
	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	hdr, err := readRec()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	header := make([]string, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		header[i] = strings.TrimSpace(h)
	}
	if err := begin(header); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				if onErr != nil {
					onErr(line, fmt.Errorf("csv read: %w", err))
				}
				continue
			}
			return fmt.Errorf("csv read at record %d: %w", line, err)
		}

		row := engine.GetRow(len(rec))
		row.Line = line
		for i, v := range rec {
			if opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			row.Fields[i] = v
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
}
