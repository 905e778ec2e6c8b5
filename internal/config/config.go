// Package config holds the tunable policy for inspection runs.
//
// Every numeric threshold and token set used by the classifier and the
// diagnostic rules lives here, with documented defaults. The defaults are
// opinionated on purpose; callers who disagree supply a policy JSON file
// rather than patching constants.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Policy is the full set of inspection knobs.
//
// Zero values are not meaningful; always start from DefaultPolicy and
// override fields via a JSON policy file or flags.
type Policy struct {
	// MissingTokens are field values (after trimming, lowercased) treated as
	// missing. The empty string is always treated as missing regardless of
	// this list.
	MissingTokens []string `json:"missing_tokens"`

	// TrueTokens and FalseTokens are the accepted boolean spellings,
	// matched case-insensitively. Numeric spellings like "1"/"0" never reach
	// the boolean test because integer parsing wins earlier in the cascade.
	TrueTokens  []string `json:"true_tokens"`
	FalseTokens []string `json:"false_tokens"`

	// MissingWarnFraction and MissingCriticalFraction grade the missingness
	// finding. Any missing fraction above zero still produces an info note.
	MissingWarnFraction     float64 `json:"missing_warn_fraction"`
	MissingCriticalFraction float64 `json:"missing_critical_fraction"`

	// IdentifierMinRows is the minimum non-missing count before the
	// identifier-like rule may fire; below it cardinality is noise.
	IdentifierMinRows int64 `json:"identifier_min_rows"`

	// IdentifierDistinctRatio is the distinct/non-missing ratio at or above
	// which a categorical column looks like an identifier.
	IdentifierDistinctRatio float64 `json:"identifier_distinct_ratio"`

	// NearConstantModalFraction flags categorical columns whose modal value
	// covers at least this share of non-missing rows.
	NearConstantModalFraction float64 `json:"near_constant_modal_fraction"`

	// NearConstantCV flags numeric columns whose coefficient of variation
	// (stddev / |mean|) falls below this bound.
	NearConstantCV float64 `json:"near_constant_cv"`

	// MixedCriticalFraction escalates the mixed-type finding from warning to
	// critical once the nonconforming share of non-missing fields reaches it.
	MixedCriticalFraction float64 `json:"mixed_critical_fraction"`

	// OutlierRobustZ is the |x - median| / scaledMAD threshold at or above
	// which a retained value counts as an extreme outlier.
	OutlierRobustZ float64 `json:"outlier_robust_z"`

	// RobustBufferCap bounds the per-column reservoir used for median/MAD.
	// Columns longer than the cap are downsampled uniformly; set the cap at
	// or above the expected row count for exact robust statistics.
	RobustBufferCap int `json:"robust_buffer_cap"`

	// RobustSeed seeds reservoir sampling. A fixed seed keeps repeated runs
	// on identical input byte-for-byte identical.
	RobustSeed int64 `json:"robust_seed"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		MissingTokens:             []string{"", "na", "n/a", "null", "nil", "none", "-"},
		TrueTokens:                []string{"true", "t", "yes", "y"},
		FalseTokens:               []string{"false", "f", "no", "n"},
		MissingWarnFraction:       0.10,
		MissingCriticalFraction:   0.50,
		IdentifierMinRows:         20,
		IdentifierDistinctRatio:   0.95,
		NearConstantModalFraction: 0.99,
		NearConstantCV:            1e-6,
		MixedCriticalFraction:     0.20,
		OutlierRobustZ:            5.0,
		RobustBufferCap:           20000,
		RobustSeed:                1,
	}
}

// Severity levels for validation issues.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Issue describes a single policy validation problem.
type Issue struct {
	Severity string
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// LoadPolicy reads a JSON policy file and overlays it on the defaults.
// Fields absent from the file keep their default values.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()

	f, err := os.Open(path)
	if err != nil {
		return p, fmt.Errorf("open policy: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("decode policy %s: %w", path, err)
	}
	return p, nil
}

// ValidatePolicy checks a policy for values that would make a run
// meaningless or nondeterministic. Errors must stop the run; warnings are
// reported and ignored.
func ValidatePolicy(p Policy) []Issue {
	var issues []Issue

	fraction := func(path string, v float64) {
		if v < 0 || v > 1 {
			issues = append(issues, Issue{SeverityError, path, "must be within [0, 1]"})
		}
	}
	fraction("missing_warn_fraction", p.MissingWarnFraction)
	fraction("missing_critical_fraction", p.MissingCriticalFraction)
	fraction("identifier_distinct_ratio", p.IdentifierDistinctRatio)
	fraction("near_constant_modal_fraction", p.NearConstantModalFraction)
	fraction("mixed_critical_fraction", p.MixedCriticalFraction)

	if p.MissingWarnFraction > p.MissingCriticalFraction {
		issues = append(issues, Issue{
			SeverityError, "missing_warn_fraction",
			"must not exceed missing_critical_fraction",
		})
	}
	if p.IdentifierMinRows < 1 {
		issues = append(issues, Issue{SeverityError, "identifier_min_rows", "must be >= 1"})
	}
	if p.OutlierRobustZ <= 0 {
		issues = append(issues, Issue{SeverityError, "outlier_robust_z", "must be > 0"})
	}
	if p.RobustBufferCap < 2 {
		issues = append(issues, Issue{SeverityError, "robust_buffer_cap", "must be >= 2"})
	}
	if p.RobustBufferCap < 1000 {
		issues = append(issues, Issue{
			SeverityWarning, "robust_buffer_cap",
			"small reservoirs make the outlier estimate coarse",
		})
	}
	if p.NearConstantCV < 0 {
		issues = append(issues, Issue{SeverityError, "near_constant_cv", "must be >= 0"})
	}

	for _, tok := range p.MissingTokens {
		if tok != strings.ToLower(tok) {
			issues = append(issues, Issue{
				SeverityWarning, "missing_tokens",
				fmt.Sprintf("token %q is matched case-insensitively; use lowercase", tok),
			})
		}
	}
	if overlap := intersect(p.TrueTokens, p.FalseTokens); len(overlap) > 0 {
		issues = append(issues, Issue{
			SeverityError, "true_tokens",
			fmt.Sprintf("tokens %v appear as both true and false", overlap),
		})
	}

	return issues
}

func intersect(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[strings.ToLower(v)] = struct{}{}
	}
	var out []string
	for _, v := range b {
		if _, ok := seen[strings.ToLower(v)]; ok {
			out = append(out, strings.ToLower(v))
		}
	}
	return out
}
