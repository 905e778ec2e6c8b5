// Package xlsx streams spreadsheet rows from the first sheet of an xlsx
// workbook. The first row is the header; data rows are padded with empty
// fields up to the header width, since xlsx omits trailing empty cells.
package xlsx

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"datainspect/internal/engine"
)

// Stream opens the workbook from src and streams the first sheet's rows.
// begin receives the header before the first data row.
func Stream(
	ctx context.Context,
	src io.Reader,
	begin func(header []string) error,
	out chan<- *engine.Row,
) error {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return fmt.Errorf("xlsx open: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("xlsx: workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return fmt.Errorf("xlsx rows %q: %w", sheets[0], err)
	}
	defer rows.Close()

	var (
		header []string
		line   int
	)
	for rows.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line++
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("xlsx read row %d: %w", line, err)
		}

		if header == nil {
			header = cells
			if len(header) == 0 {
				return fmt.Errorf("xlsx: sheet %q has an empty header row", sheets[0])
			}
			if err := begin(header); err != nil {
				return err
			}
			continue
		}

		row := engine.GetRow(len(header))
		row.Line = line
		for i := range header {
			if i < len(cells) {
				row.Fields[i] = cells[i]
			}
		}
		// Rows wider than the header keep their surplus so the engine can
		// count them as malformed instead of silently truncating.
		if len(cells) > len(header) {
			row.Fields = append(row.Fields, cells[len(header):]...)
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("xlsx iterate after row %d: %w", line, err)
	}
	// No header row means begin was never called; fail rather than leave a
	// downstream stage waiting on it.
	if header == nil {
		return fmt.Errorf("xlsx: sheet %q is empty", sheets[0])
	}
	return nil
}
