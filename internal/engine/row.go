// Package engine drives the single streaming pass: it routes each row's
// fields to the owning column's classifier and accumulator, finalizes every
// column exactly once at end of stream, and evaluates diagnostics.
package engine

import (
	"sync"
	"sync/atomic"
)

// Row is a pooled container holding one tokenized data row.
//
// Ownership contract:
//   - The parser fills a Row and hands it to the engine (ownership transfer).
//   - The engine calls Free() when every worker is done with it.
//   - On cancellation paths callers use Drop() instead, so an in-flight Row
//     is never re-pooled while another stage may still read it.
type Row struct {
	Fields []string
	Line   int // 1-based record number in the source

	refs int32
}

var rowPool sync.Pool

// GetRow returns a pooled Row sized for colCount fields, zeroed.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.Fields) < colCount {
			r.Fields = make([]string, colCount)
		}
		r.Fields = r.Fields[:colCount]
		for i := range r.Fields {
			r.Fields[i] = ""
		}
		r.Line = 0
		r.refs = 0
		return r
	}
	return &Row{Fields: make([]string, colCount)}
}

// retain marks the Row as shared by n consumers; the last Free re-pools it.
func (r *Row) retain(n int32) { atomic.StoreInt32(&r.refs, n) }

// Free returns the Row to the pool once all consumers have released it.
func (r *Row) Free() {
	if atomic.AddInt32(&r.refs, -1) > 0 {
		return
	}
	rowPool.Put(r)
}

// Drop releases the Row without re-pooling. Use on cancellation paths.
func (r *Row) Drop() {}
