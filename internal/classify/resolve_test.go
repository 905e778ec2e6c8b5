package classify

import "testing"

func observeAll(r *Resolver, kinds ...Kind) {
	for _, k := range kinds {
		r.Observe(k)
	}
}

func repeat(k Kind, n int) []Kind {
	out := make([]Kind, n)
	for i := range out {
		out[i] = k
	}
	return out
}

// TestResolvePlurality verifies majority resolution, the stated tie-break
// order (numeric > boolean > categorical), and nonconforming counting.
func TestResolvePlurality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		kinds             []Kind
		wantType          ColumnType
		wantEffective     ColumnType
		wantNonconforming int64
	}{
		{
			name:          "pure integers",
			kinds:         repeat(KindInteger, 5),
			wantType:      TypeNumeric,
			wantEffective: TypeNumeric,
		},
		{
			name:          "integers and floats tally jointly",
			kinds:         append(repeat(KindInteger, 3), repeat(KindFloat, 3)...),
			wantType:      TypeNumeric,
			wantEffective: TypeNumeric,
		},
		{
			name:          "pure text",
			kinds:         repeat(KindText, 4),
			wantType:      TypeCategorical,
			wantEffective: TypeCategorical,
		},
		{
			name:          "pure booleans",
			kinds:         repeat(KindBoolean, 4),
			wantType:      TypeBoolean,
			wantEffective: TypeBoolean,
		},
		{
			name:              "text majority with numeric contamination",
			kinds:             append(repeat(KindText, 5), repeat(KindInteger, 2)...),
			wantType:          TypeMixed,
			wantEffective:     TypeCategorical,
			wantNonconforming: 2,
		},
		{
			name:              "numeric majority with text contamination",
			kinds:             append(repeat(KindFloat, 6), KindText),
			wantType:          TypeMixed,
			wantEffective:     TypeNumeric,
			wantNonconforming: 1,
		},
		{
			name:          "numeric-text tie prefers numeric",
			kinds:         append(repeat(KindInteger, 3), repeat(KindText, 3)...),
			wantType:      TypeMixed,
			wantEffective: TypeNumeric,
			// the three text values do not conform to the numeric pick
			wantNonconforming: 3,
		},
		{
			name:          "boolean-text tie prefers boolean then degrades",
			kinds:         append(repeat(KindBoolean, 2), repeat(KindText, 2)...),
			wantType:      TypeMixed,
			wantEffective: TypeCategorical,
			// nonconforming stays measured against the boolean majority
			wantNonconforming: 2,
		},
		{
			name:              "boolean majority with one integer degrades to numeric",
			kinds:             append(repeat(KindBoolean, 5), KindInteger),
			wantType:          TypeMixed,
			wantEffective:     TypeNumeric,
			wantNonconforming: 1,
		},
		{
			name:          "missing never participates",
			kinds:         append(repeat(KindMissing, 10), repeat(KindInteger, 2)...),
			wantType:      TypeNumeric,
			wantEffective: TypeNumeric,
		},
		{
			name:          "all missing resolves categorical",
			kinds:         repeat(KindMissing, 3),
			wantType:      TypeCategorical,
			wantEffective: TypeCategorical,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var r Resolver
			observeAll(&r, tt.kinds...)
			res := r.Resolve()
			if res.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", res.Type, tt.wantType)
			}
			if res.Effective != tt.wantEffective {
				t.Errorf("Effective = %v, want %v", res.Effective, tt.wantEffective)
			}
			if res.Nonconforming != tt.wantNonconforming {
				t.Errorf("Nonconforming = %d, want %d", res.Nonconforming, tt.wantNonconforming)
			}
		})
	}
}

// TestResolveUsageErrors verifies the finalize-once contract: resolving
// twice or observing after resolve is a programming error.
func TestResolveUsageErrors(t *testing.T) {
	t.Parallel()

	mustPanic := func(name string, fn func()) {
		defer func() {
			if recover() == nil {
				t.Errorf("%s did not panic", name)
			}
		}()
		fn()
	}

	var r Resolver
	r.Observe(KindInteger)
	r.Resolve()
	mustPanic("second Resolve", func() { r.Resolve() })

	var r2 Resolver
	r2.Resolve()
	mustPanic("Observe after Resolve", func() { r2.Observe(KindText) })
}

func TestResolverMissingCount(t *testing.T) {
	t.Parallel()

	var r Resolver
	observeAll(&r, KindMissing, KindInteger, KindMissing, KindText)
	if got := r.Missing(); got != 2 {
		t.Fatalf("Missing() = %d, want 2", got)
	}
}

// TestResolveIntegerOnly pins the integer/float distinction used by
// cardinality diagnostics downstream.
func TestResolveIntegerOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		kinds []Kind
		want  bool
	}{
		{"pure integers", repeat(KindInteger, 4), true},
		{"any float clears it", append(repeat(KindInteger, 4), KindFloat), false},
		{"pure floats", repeat(KindFloat, 4), false},
		{"no numerics at all", repeat(KindText, 4), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var r Resolver
			observeAll(&r, tt.kinds...)
			if got := r.Resolve().IntegerOnly; got != tt.want {
				t.Errorf("IntegerOnly = %v, want %v", got, tt.want)
			}
		})
	}
}
