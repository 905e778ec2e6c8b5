// Package diagnose evaluates finalized column state against the fixed
// data-quality rule table.
//
// Evaluation is pure and deterministic: rules fire in table order, columns
// are evaluated in header order by the caller, and no map iteration feeds
// the output. Running twice on identical state yields identical findings.
package diagnose

import (
	"fmt"
	"math"

	"datainspect/internal/classify"
	"datainspect/internal/colstats"
	"datainspect/internal/config"
)

// Severity grades a finding.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler for JSON report output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RuleKind identifies which rule produced a finding.
type RuleKind string

const (
	RuleMissingValues   RuleKind = "missing_values"
	RuleIdentifierLike  RuleKind = "identifier_like"
	RuleNearConstant    RuleKind = "near_constant"
	RuleMixedType       RuleKind = "mixed_type"
	RuleExtremeOutliers RuleKind = "extreme_outliers"
)

// Finding is one data-quality observation about one column.
type Finding struct {
	Column   string   `json:"column"`
	Index    int      `json:"index"`
	Rule     RuleKind `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	// Fraction and Count carry the numeric evidence behind the message.
	// Which of the two is meaningful depends on the rule.
	Fraction float64 `json:"fraction,omitempty"`
	Count    int64   `json:"count,omitempty"`
}

// ColumnState is the finalized per-column input to rule evaluation.
// Categorical carries the canonical-text cardinality view and is set for
// every column; Numeric is set only when Resolution.Effective is numeric.
type ColumnState struct {
	Name       string
	Index      int
	Resolution classify.Resolution
	Missing    int64

	Numeric     *colstats.NumericSummary
	Categorical *colstats.CategoricalSummary
}

// Evaluate runs the rule table against one column. rowCount is the number
// of well-formed data rows in the file. Findings come back in rule-table
// order; an empty slice means the column is ok.
func Evaluate(col ColumnState, rowCount int64, p config.Policy) []Finding {
	var out []Finding

	add := func(rule RuleKind, sev Severity, frac float64, count int64, msg string) {
		out = append(out, Finding{
			Column:   col.Name,
			Index:    col.Index,
			Rule:     rule,
			Severity: sev,
			Message:  msg,
			Fraction: frac,
			Count:    count,
		})
	}

	// Missing values.
	if rowCount > 0 && col.Missing > 0 {
		frac := float64(col.Missing) / float64(rowCount)
		sev := SeverityInfo
		switch {
		case frac >= p.MissingCriticalFraction:
			sev = SeverityCritical
		case frac >= p.MissingWarnFraction:
			sev = SeverityWarning
		}
		add(RuleMissingValues, sev, frac, col.Missing,
			fmt.Sprintf("%.1f%% of values are missing (%d of %d rows)",
				frac*100, col.Missing, rowCount))
	}

	// Identifier-like cardinality. Applies to the canonical-text view of
	// categorical columns and integer-only numeric columns; a continuous
	// float column is near-unique by nature and stays exempt.
	if cat := col.Categorical; cat != nil &&
		(col.Numeric == nil || col.Resolution.IntegerOnly) &&
		cat.NonMissing >= p.IdentifierMinRows &&
		cat.DistinctRatio >= p.IdentifierDistinctRatio {
		add(RuleIdentifierLike, SeverityWarning, cat.DistinctRatio, cat.DistinctCount,
			fmt.Sprintf("%d distinct values across %d rows (ratio %.3f); looks like an identifier, not a category",
				cat.DistinctCount, cat.NonMissing, cat.DistinctRatio))
	}

	// Near-constant. Numeric columns use the coefficient-of-variation form
	// below so a constant numeric column does not fire twice.
	if cat := col.Categorical; cat != nil && col.Numeric == nil && cat.NonMissing > 0 &&
		cat.ModalFraction >= p.NearConstantModalFraction {
		add(RuleNearConstant, SeverityWarning, cat.ModalFraction, cat.ModalCount,
			fmt.Sprintf("value %q covers %.1f%% of non-missing rows",
				cat.ModalValue, cat.ModalFraction*100))
	}
	if num := col.Numeric; num != nil && num.Count > 1 && num.Mean != 0 {
		cv := num.StdDev / math.Abs(num.Mean)
		if cv < p.NearConstantCV {
			add(RuleNearConstant, SeverityWarning, cv, num.Count,
				fmt.Sprintf("coefficient of variation %.2e; column is effectively constant at %g",
					cv, num.Mean))
		}
	}

	// Mixed-type contamination.
	if nc := col.Resolution.Nonconforming; nc > 0 && col.Resolution.NonMissing > 0 {
		frac := float64(nc) / float64(col.Resolution.NonMissing)
		sev := SeverityWarning
		if frac >= p.MixedCriticalFraction {
			sev = SeverityCritical
		}
		add(RuleMixedType, sev, frac, nc,
			fmt.Sprintf("%d values (%.1f%%) do not match the majority %s type",
				nc, frac*100, col.Resolution.Effective))
	}

	// Extreme outliers.
	if num := col.Numeric; num != nil && num.OutlierCount > 0 {
		est := ""
		if !num.SampleExact {
			est = " (estimated from sample)"
		}
		add(RuleExtremeOutliers, SeverityCritical, 0, num.OutlierCount,
			fmt.Sprintf("%d value(s) beyond %.0f robust sigmas of the median%s",
				num.OutlierCount, p.OutlierRobustZ, est))
	}

	return out
}
