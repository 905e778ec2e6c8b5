// Package metrics decouples the inspection engine from any concrete
// metrics vendor. The engine records counters and histograms against a
// process-wide Backend; the default backend is a no-op, so library users
// pay nothing unless the CLI wires a real one.
package metrics

import "sync"

// Labels are metric dimensions, e.g. {"rule": "missing_values"}.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits buffered observations. Close flushes once more and
	// releases resources.
	Flush() error
	Close() error
}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process-wide backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one histogram sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

// Close closes the installed backend.
func Close() error { return current().Close() }

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }
func (nopBackend) Close() error                             { return nil }
