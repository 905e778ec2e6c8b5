package colstats

import "math/rand"

// Reservoir keeps a bounded uniform sample of a float stream (algorithm R).
// The seen count is tracked separately from the retained values so that
// downstream estimates can be rescaled to the full column, and so merged
// shard reservoirs stay uniform over the combined stream.
//
// The RNG is seeded per column; identical input therefore produces an
// identical sample, keeping whole-run output reproducible.
type Reservoir struct {
	cap  int
	seen int64
	vals []float64
	rng  *rand.Rand
}

// NewReservoir creates a reservoir retaining at most cap values.
func NewReservoir(cap int, seed int64) *Reservoir {
	if cap < 1 {
		cap = 1
	}
	return &Reservoir{
		cap:  cap,
		vals: make([]float64, 0, min(cap, 1024)),
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Add offers one value to the sample.
func (r *Reservoir) Add(x float64) {
	r.seen++
	if len(r.vals) < r.cap {
		r.vals = append(r.vals, x)
		return
	}
	if j := r.rng.Int63n(r.seen); j < int64(r.cap) {
		r.vals[j] = x
	}
}

// Seen returns how many values were offered.
func (r *Reservoir) Seen() int64 { return r.seen }

// Values returns the retained sample. The slice is owned by the reservoir;
// callers must not mutate it after further Adds.
func (r *Reservoir) Values() []float64 { return r.vals }

// Exact reports whether the sample holds every value seen.
func (r *Reservoir) Exact() bool { return int64(len(r.vals)) == r.seen }

// Merge folds another reservoir into this one. Both inputs must be uniform
// samples of disjoint streams. When the combined retained values fit under
// the cap they are all kept; otherwise slots are allocated to each side in
// proportion to its seen count and filled by sampling without replacement,
// which keeps the merged buffer a uniform sample of the combined stream.
//
// Merge consumes other; it must not be used afterwards. Call order must be
// fixed (shard index order) for reproducible output.
func (r *Reservoir) Merge(other *Reservoir) {
	if other == nil || other.seen == 0 {
		return
	}
	if r.seen == 0 {
		r.seen = other.seen
		r.vals = other.vals
		return
	}

	total := r.seen + other.seen
	if len(r.vals)+len(other.vals) <= r.cap {
		r.vals = append(r.vals, other.vals...)
		r.seen = total
		return
	}

	keep := r.cap
	fromMine := int(int64(keep) * r.seen / total)
	if fromMine > len(r.vals) {
		fromMine = len(r.vals)
	}
	fromOther := keep - fromMine
	if fromOther > len(other.vals) {
		fromOther = len(other.vals)
		fromMine = keep - fromOther
	}

	merged := make([]float64, 0, keep)
	merged = append(merged, sampleWithout(r.rng, r.vals, fromMine)...)
	merged = append(merged, sampleWithout(r.rng, other.vals, fromOther)...)

	r.vals = merged
	r.seen = total
}

// sampleWithout draws k values from vals without replacement via a partial
// Fisher-Yates shuffle. vals is mutated.
func sampleWithout(rng *rand.Rand, vals []float64, k int) []float64 {
	if k >= len(vals) {
		return vals
	}
	for i := 0; i < k; i++ {
		j := i + rng.Intn(len(vals)-i)
		vals[i], vals[j] = vals[j], vals[i]
	}
	return vals[:k]
}
