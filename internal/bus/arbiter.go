// Package bus serializes analog reads from concurrent sampling loops onto
// the single physical bus.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/sweeney/pump-controller/internal/adc"
)

// Arbiter guards an adc.Reader with one mutex. The lock spans exactly one
// transaction. sync.Mutex switches to FIFO hand-off once a waiter has been
// blocked for more than 1ms, which keeps any single sampling loop from
// being starved for consecutive cycles.
type Arbiter struct {
	mu     sync.Mutex
	reader adc.Reader

	reads    atomic.Uint64
	failures atomic.Uint64
}

// NewArbiter wraps r. The arbiter owns r after this call.
func NewArbiter(r adc.Reader) *Arbiter {
	return &Arbiter{reader: r}
}

// Read performs one serialized transaction. Errors are returned unchanged;
// the arbiter never retries.
func (a *Arbiter) Read(ch adc.Channel) (float64, error) {
	a.mu.Lock()
	v, err := a.reader.Read(ch)
	a.mu.Unlock()

	a.reads.Add(1)
	if err != nil {
		a.failures.Add(1)
	}
	return v, err
}

// Stats is a point-in-time copy of the transaction counters.
type Stats struct {
	Reads    uint64
	Failures uint64
}

// Stats returns the transaction counters.
func (a *Arbiter) Stats() Stats {
	return Stats{Reads: a.reads.Load(), Failures: a.failures.Load()}
}

// Close closes the underlying reader once no transaction is in flight.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reader.Close()
}
