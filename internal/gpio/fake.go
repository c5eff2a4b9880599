package gpio

import "sync"

// Call is one recorded SetPWM invocation.
type Call struct {
	FreqHz float64
	Duty   float64
}

// FakeOutput is a test double that records every waveform change.
type FakeOutput struct {
	mu     sync.Mutex
	calls  []Call
	closed bool

	// SetError, if set, is returned by SetPWM after recording the call.
	SetError error

	// CloseError, if set, is returned by Close.
	CloseError error
}

// NewFakeOutput creates a FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// SetPWM records the call.
func (f *FakeOutput) SetPWM(freqHz, duty float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{FreqHz: freqHz, Duty: duty})
	return f.SetError
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.CloseError
}

// Calls returns a copy of the recorded calls.
func (f *FakeOutput) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Last returns the most recent call.
func (f *FakeOutput) Last() (Call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return Call{}, false
	}
	return f.calls[len(f.calls)-1], true
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeOpener returns an Opener handing out FakeOutputs keyed by pin. Pins
// listed in failing fail to open.
func FakeOpener(outputs map[int]*FakeOutput, failing map[int]error) Opener {
	return func(pin int) (Output, error) {
		if err, ok := failing[pin]; ok {
			return nil, err
		}
		out, ok := outputs[pin]
		if !ok {
			out = NewFakeOutput()
			outputs[pin] = out
		}
		return out, nil
	}
}
