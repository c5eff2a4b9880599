package adc

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Waveform returns the voltage on a channel at elapsed time d.
type Waveform func(d time.Duration) float64

// Constant returns a waveform that always reads v.
func Constant(v float64) Waveform {
	return func(time.Duration) float64 { return v }
}

// Square returns a square wave at hz alternating between low and high
// volts, high for the given duty fraction and rising at d=0.
func Square(hz, duty, low, high float64) Waveform {
	period := time.Duration(float64(time.Second) / hz)
	on := time.Duration(float64(period) * duty)
	return func(d time.Duration) float64 {
		if d%period < on {
			return high
		}
		return low
	}
}

// FakeReader is a test double that returns scripted voltages per channel
// input. Each waveform is evaluated against the time elapsed since the
// reader was created. Safe for concurrent use.
type FakeReader struct {
	mu        sync.Mutex
	waveforms map[int]Waveform
	readErr   error
	closed    bool
	start     time.Time
	now       func() time.Time

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	reads       atomic.Int64

	// Hold, if non-zero, keeps every read in flight for that long.
	Hold time.Duration
}

// NewFakeReader creates a FakeReader timed by the wall clock.
func NewFakeReader() *FakeReader {
	return &FakeReader{
		waveforms: make(map[int]Waveform),
		start:     time.Now(),
		now:       time.Now,
	}
}

// SetWaveform scripts the voltage of input index.
func (f *FakeReader) SetWaveform(index int, w Waveform) {
	f.mu.Lock()
	f.waveforms[index] = w
	f.mu.Unlock()
}

// SetError makes every subsequent read fail with err; nil restores reads.
func (f *FakeReader) SetError(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

// SetClock replaces the time source; elapsed time restarts at the clock's
// current value.
func (f *FakeReader) SetClock(now func() time.Time) {
	f.mu.Lock()
	f.now = now
	f.start = now()
	f.mu.Unlock()
}

// Read returns the scripted voltage for ch.Index.
func (f *FakeReader) Read(ch Channel) (float64, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	f.reads.Add(1)

	if f.Hold > 0 {
		time.Sleep(f.Hold)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readErr != nil {
		return 0, &BusError{Channel: ch, Err: f.readErr}
	}
	if f.closed {
		return 0, &BusError{Channel: ch, Err: errors.New("closed")}
	}
	w, ok := f.waveforms[ch.Index]
	if !ok {
		return 0, nil
	}
	return w(f.now().Sub(f.start)), nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeReader) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reads returns the number of Read calls so far.
func (f *FakeReader) Reads() int64 {
	return f.reads.Load()
}

// MaxInFlight returns the highest number of overlapping Read calls seen.
func (f *FakeReader) MaxInFlight() int {
	return int(f.maxInFlight.Load())
}
