package xlsx

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"datainspect/internal/engine"
)

// buildWorkbook renders rows into an in-memory xlsx workbook.
func buildWorkbook(t *testing.T, rows [][]any) *bytes.Reader {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func collect(t *testing.T, src *bytes.Reader) (header []string, rows [][]string, err error) {
	t.Helper()

	out := make(chan *engine.Row, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for row := range out {
			fields := make([]string, len(row.Fields))
			copy(fields, row.Fields)
			rows = append(rows, fields)
			row.Free()
		}
	}()

	err = Stream(context.Background(), src,
		func(h []string) error { header = h; return nil }, out)
	close(out)
	<-done
	return header, rows, err
}

func TestStreamFirstSheet(t *testing.T) {
	t.Parallel()

	src := buildWorkbook(t, [][]any{
		{"name", "age", "active"},
		{"alice", 30, true},
		{"bob", 41.5, false},
	})

	header, rows, err := collect(t, src)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got, want := strings.Join(header, "|"), "name|age|active"; got != want {
		t.Errorf("header = %q, want %q", got, want)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][0] != "alice" || rows[0][1] != "30" {
		t.Errorf("row 0 = %v", rows[0])
	}
	if rows[1][1] != "41.5" {
		t.Errorf("float cell = %q, want 41.5", rows[1][1])
	}
	if got := strings.ToLower(rows[0][2]); got != "true" {
		t.Errorf("bool cell = %q", rows[0][2])
	}
}

// TestStreamPadsShortRows checks that omitted trailing cells come back as
// empty fields so the engine sees them as missing, not as malformed rows.
func TestStreamPadsShortRows(t *testing.T) {
	t.Parallel()

	src := buildWorkbook(t, [][]any{
		{"a", "b", "c"},
		{"1"},
		{"2", "3", "4"},
	})

	_, rows, err := collect(t, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if len(rows[0]) != 3 || rows[0][1] != "" || rows[0][2] != "" {
		t.Errorf("short row = %v, want padded to header width", rows[0])
	}
}

func TestStreamKeepsSurplusCells(t *testing.T) {
	t.Parallel()

	src := buildWorkbook(t, [][]any{
		{"a", "b"},
		{"1", "2", "3"},
	})

	_, rows, err := collect(t, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || len(rows[0]) != 3 {
		t.Errorf("rows = %v, want the surplus cell preserved", rows)
	}
}

func TestStreamRejectsEmptySheet(t *testing.T) {
	t.Parallel()

	if _, _, err := collect(t, buildWorkbook(t, nil)); err == nil {
		t.Fatalf("Stream accepted a sheet with no header row")
	}
}

func TestStreamRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, _, err := collect(t, bytes.NewReader([]byte("not a zip archive"))); err == nil {
		t.Fatalf("Stream accepted a non-xlsx input")
	}
}
