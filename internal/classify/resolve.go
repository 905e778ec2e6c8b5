package classify

// ColumnType is the resolved type of a whole column.
type ColumnType uint8

const (
	TypeNumeric ColumnType = iota
	TypeBoolean
	TypeCategorical
	TypeMixed
)

func (t ColumnType) String() string {
	switch t {
	case TypeNumeric:
		return "numeric"
	case TypeBoolean:
		return "boolean"
	case TypeCategorical:
		return "categorical"
	case TypeMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// Resolution is the finalized outcome for one column.
type Resolution struct {
	// Type is the reported column type. Columns with any nonconforming
	// fields report TypeMixed; Effective still carries the majority type.
	Type ColumnType

	// Effective is the plurality type and decides which accumulator branch
	// the column's statistics come from. Never TypeMixed.
	Effective ColumnType

	// NonMissing is the number of classified non-missing fields.
	NonMissing int64

	// Nonconforming counts non-missing fields whose kind differs from the
	// resolved majority kind. Integer and float both conform to a numeric
	// majority.
	Nonconforming int64

	// IntegerOnly is true when every numeric field in the column parsed as
	// an integer. High-cardinality integer columns read as identifiers
	// rather than measurements.
	IntegerOnly bool
}

// Resolver tallies per-field kinds for one column and resolves the column
// type once, at end of stream. Not safe for concurrent use; each column's
// resolver is owned by one goroutine.
type Resolver struct {
	counts   [kindCount]int64
	resolved bool
}

// Observe records one classified field.
func (r *Resolver) Observe(k Kind) {
	if r.resolved {
		panic("classify: Observe after Resolve")
	}
	r.counts[k]++
}

// Resolve picks the plurality non-missing kind as the column type. Integer
// and float tally jointly as numeric. Ties break numeric > boolean >
// categorical, biasing ambiguous columns toward being analyzable numerics.
// Resolve may be called exactly once.
func (r *Resolver) Resolve() Resolution {
	if r.resolved {
		panic("classify: Resolve called twice")
	}
	r.resolved = true

	numeric := r.counts[KindInteger] + r.counts[KindFloat]
	boolean := r.counts[KindBoolean]
	text := r.counts[KindText]

	res := Resolution{
		NonMissing:  numeric + boolean + text,
		IntegerOnly: r.counts[KindInteger] > 0 && r.counts[KindFloat] == 0,
	}

	// Plurality with the stated tie-break order. An all-missing column
	// resolves categorical: there is nothing to compute on it either way.
	switch {
	case res.NonMissing == 0:
		res.Effective = TypeCategorical
	case numeric >= boolean && numeric >= text:
		res.Effective = TypeNumeric
		res.Nonconforming = boolean + text
	case boolean >= text:
		res.Effective = TypeBoolean
		res.Nonconforming = numeric + text
	default:
		res.Effective = TypeCategorical
		res.Nonconforming = numeric + boolean
	}

	// A boolean column contaminated by any non-boolean value degrades its
	// accumulation type to whichever of numeric/categorical the remaining
	// values imply. Nonconforming stays measured against the boolean
	// majority; only the statistics branch changes.
	if res.Effective == TypeBoolean && res.Nonconforming > 0 {
		if numeric >= text {
			res.Effective = TypeNumeric
		} else {
			res.Effective = TypeCategorical
		}
	}

	res.Type = res.Effective
	if res.Nonconforming > 0 {
		res.Type = TypeMixed
	}
	return res
}

// Missing returns the number of missing fields observed so far.
func (r *Resolver) Missing() int64 {
	return r.counts[KindMissing]
}
