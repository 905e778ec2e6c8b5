// Package report defines the inspection output structure and its textual
// and JSON renderings.
//
// The structure is the stable surface consumed by the CLI; everything in it
// is ordered (header order for columns, rule order for findings) so that
// repeated runs on identical input render byte-identical output.
package report

import "datainspect/internal/diagnose"

// NumericStats is the summary block for numeric columns.
type NumericStats struct {
	Count        int64   `json:"count"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"stddev"`
	Median       float64 `json:"median"`
	OutlierCount int64   `json:"outlier_count"`
}

// CategoricalStats is the summary block for non-numeric columns.
type CategoricalStats struct {
	Count          int64   `json:"count"`
	DistinctCount  int64   `json:"distinct_count"`
	DistinctRatio  float64 `json:"distinct_ratio"`
	ModalValue     string  `json:"modal_value"`
	ModalFrequency int64   `json:"modal_frequency"`
}

// Column is the per-column report record. Exactly one of Numeric and
// Categorical is set, matching the effective column type.
type Column struct {
	Name         string             `json:"name"`
	Index        int                `json:"index"`
	InferredType string             `json:"inferred_type"`
	MissingCount int64              `json:"missing_count"`
	Numeric      *NumericStats      `json:"numeric,omitempty"`
	Categorical  *CategoricalStats  `json:"categorical,omitempty"`
	Findings     []diagnose.Finding `json:"findings"`
}

// OK reports whether the column has no findings.
func (c Column) OK() bool { return len(c.Findings) == 0 }

// Report is the whole-file inspection result.
type Report struct {
	Source        string   `json:"source"`
	Format        string   `json:"format"`
	RowCount      int64    `json:"row_count"`
	MalformedRows int64    `json:"malformed_rows"`
	Columns       []Column `json:"columns"`
}

// Findings returns all findings across columns, in column then rule order.
func (r *Report) Findings() []diagnose.Finding {
	var out []diagnose.Finding
	for _, c := range r.Columns {
		out = append(out, c.Findings...)
	}
	return out
}
