package colstats

// Categorical tracks exact distinct counts and the modal value for one
// non-numeric column. Frequencies live in a map so arrival order cannot
// change them; the modal value is maintained incrementally with a
// strictly-greater comparison, which resolves frequency ties to the value
// that reached the count first.
type Categorical struct {
	counts     map[string]int64
	nonMissing int64

	modalValue string
	modalCount int64

	done bool
}

// CategoricalSummary is the finalized state for a categorical column.
type CategoricalSummary struct {
	NonMissing    int64
	DistinctCount int64
	DistinctRatio float64
	ModalValue    string
	ModalCount    int64
	ModalFraction float64
}

// NewCategorical creates an empty accumulator.
func NewCategorical() *Categorical {
	return &Categorical{counts: make(map[string]int64)}
}

// Update records one non-missing value.
func (a *Categorical) Update(v string) {
	if a.done {
		panic("colstats: Update after Finalize")
	}
	a.nonMissing++
	c := a.counts[v] + 1
	a.counts[v] = c
	if c > a.modalCount {
		a.modalValue = v
		a.modalCount = c
	}
}

// Finalize closes the accumulator and derives the ratios. It may be called
// exactly once.
func (a *Categorical) Finalize() CategoricalSummary {
	if a.done {
		panic("colstats: Finalize called twice")
	}
	a.done = true

	s := CategoricalSummary{
		NonMissing:    a.nonMissing,
		DistinctCount: int64(len(a.counts)),
		ModalValue:    a.modalValue,
		ModalCount:    a.modalCount,
	}
	if a.nonMissing > 0 {
		s.DistinctRatio = float64(s.DistinctCount) / float64(a.nonMissing)
		s.ModalFraction = float64(a.modalCount) / float64(a.nonMissing)
	}
	return s
}
