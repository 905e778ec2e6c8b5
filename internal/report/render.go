package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// RenderOptions selects which report sections the text renderer emits.
// Sections combine freely; with everything off only the file overview is
// printed.
type RenderOptions struct {
	ShowTypes       bool
	ShowSummary     bool
	ShowDiagnostics bool
}

// RenderJSON writes the full report as indented JSON. Output is
// deterministic: every collection in the report is a slice.
func RenderJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// RenderText writes the human-readable report.
func RenderText(w io.Writer, r *Report, opt RenderOptions) error {
	var b strings.Builder

	fmt.Fprintf(&b, "File type: %s\n", strings.ToUpper(r.Format))
	fmt.Fprintf(&b, "Source: %s\n", r.Source)
	fmt.Fprintf(&b, "Rows: %d", r.RowCount)
	if r.MalformedRows > 0 {
		fmt.Fprintf(&b, " (%d malformed rows skipped)", r.MalformedRows)
	}
	b.WriteString("\nColumns:\n")
	for _, c := range r.Columns {
		fmt.Fprintf(&b, "  - %s\n", c.Name)
	}

	if opt.ShowTypes {
		b.WriteString("Inferred types:\n")
		for _, c := range r.Columns {
			fmt.Fprintf(&b, "  - %s: %s\n", c.Name, c.InferredType)
		}
	}

	if opt.ShowSummary {
		b.WriteString("Summary:\n")
		for _, c := range r.Columns {
			if n := c.Numeric; n != nil {
				fmt.Fprintf(&b, "  - %s (%s): count=%d missing=%d min=%g max=%g mean=%g stddev=%g median=%g\n",
					c.Name, c.InferredType, n.Count, c.MissingCount, n.Min, n.Max, n.Mean, n.StdDev, n.Median)
				continue
			}
			cat := c.Categorical
			fmt.Fprintf(&b, "  - %s (%s): count=%d missing=%d distinct=%d (ratio %.3f) modal=%q (%d)\n",
				c.Name, c.InferredType, cat.Count, c.MissingCount, cat.DistinctCount,
				cat.DistinctRatio, cat.ModalValue, cat.ModalFrequency)
		}
	}

	if opt.ShowDiagnostics {
		b.WriteString("Diagnostics:\n")
		for _, c := range r.Columns {
			if c.OK() {
				fmt.Fprintf(&b, "  - %s: ok\n", c.Name)
				continue
			}
			for _, f := range c.Findings {
				fmt.Fprintf(&b, "  - %s: [%s] %s: %s\n", c.Name, f.Severity, f.Rule, f.Message)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
