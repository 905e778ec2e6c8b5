// Package json streams JSON records as tabular rows.
//
// Supported shapes:
//   - root array of objects: one row per object
//   - root object containing an array-of-objects field: one row per element
//     (envelope pattern; the first such field wins)
//   - root object with no such field: a single row
//   - concatenated top-level documents (jsonl/ndjson): the shapes above,
//     repeated until EOF, one after another
//
// The header is derived from the first record: its keys, sorted. Sorting
// matters; map iteration order would otherwise leak into the report and
// break run-to-run determinism. Later records are projected onto that
// header, with absent keys delivered as empty fields.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"datainspect/internal/engine"
)

// Stream decodes JSON from src and streams rows into out. begin receives
// the derived header before the first row.
//
// Decode failures are stream-level and fatal: unlike CSV there is no way to
// resynchronize mid-document, so the error is returned with the record
// index at which it occurred.
func Stream(
	ctx context.Context,
	src io.Reader,
	begin func(header []string) error,
	out chan<- *engine.Row,
) error {
	dec := json.NewDecoder(src)
	dec.UseNumber() // numbers stay textual; the classifier parses them

	var (
		header  []string
		record  int
		started bool
	)

	emit := func(obj map[string]any) error {
		record++
		if !started {
			header = headerFromRecord(obj)
			if err := begin(header); err != nil {
				return err
			}
			started = true
		}

		row := engine.GetRow(len(header))
		row.Line = record
		for i, key := range header {
			row.Fields[i] = stringifyScalar(obj[key])
		}

		select {
		case out <- row:
			return nil
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}

	// A plain file holds one top-level document; jsonl holds one per line.
	// The decoder treats both as a stream of concatenated documents, so a
	// single loop covers them.
	var doc int
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			if doc == 0 {
				return fmt.Errorf("json: empty input")
			}
			// Without at least one record there is no header and a
			// downstream stage waiting on begin would block forever.
			if !started {
				return fmt.Errorf("json: no records in input")
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("json: read document %d: %w", doc+1, err)
		}
		doc++

		d, ok := tok.(json.Delim)
		if !ok {
			return fmt.Errorf("json: unsupported root token %T in document %d (want object or array)", tok, doc)
		}

		switch d {
		case '[':
			for dec.More() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				var obj map[string]any
				if err := dec.Decode(&obj); err != nil {
					return fmt.Errorf("json: decode record %d: %w", record+1, err)
				}
				if obj == nil {
					continue
				}
				if err := emit(obj); err != nil {
					return err
				}
			}
			if _, err := dec.Token(); err != nil { // closing ]
				return fmt.Errorf("json: close document %d: %w", doc, err)
			}

		case '{':
			root := map[string]any{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return fmt.Errorf("json: read key: %w", err)
				}
				key, _ := keyTok.(string)
				var val any
				if err := dec.Decode(&val); err != nil {
					return fmt.Errorf("json: decode field %q: %w", key, err)
				}
				root[key] = val
			}
			if _, err := dec.Token(); err != nil { // closing }
				return fmt.Errorf("json: close document %d: %w", doc, err)
			}

			if arr := findObjectArray(root); arr != nil {
				for _, el := range arr {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
					if err := emit(el); err != nil {
						return err
					}
				}
				continue
			}
			if err := emit(root); err != nil {
				return err
			}

		default:
			return fmt.Errorf("json: unsupported root delimiter %q", d)
		}
	}
}

func headerFromRecord(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// findObjectArray returns the first (by sorted key) root field that is an
// array of objects, converted element-wise. Nil when there is none.
func findObjectArray(root map[string]any) []map[string]any {
	keys := make([]string, 0, len(root))
	for k := range root {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		arr, ok := root[k].([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		objs := make([]map[string]any, 0, len(arr))
		allObjects := true
		for _, el := range arr {
			obj, ok := el.(map[string]any)
			if !ok {
				allObjects = false
				break
			}
			objs = append(objs, obj)
		}
		if allObjects {
			return objs
		}
	}
	return nil
}

// stringifyScalar renders a decoded JSON value as the raw field string the
// classifier consumes. Nulls and absent keys become empty (missing);
// composites render as compact JSON and classify as text.
func stringifyScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
