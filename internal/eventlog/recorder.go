package eventlog

import (
	"strings"
	"sync"

	"github.com/sweeney/pump-controller/internal/logic"
)

// Recorder is a test double that keeps every event and TX record.
// Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	events    []Event
	telemetry []logic.Telemetry

	// EmitError, if set, is returned by Emit after recording.
	EmitError error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit records e.
func (r *Recorder) Emit(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.EmitError
}

// Telemetry records t.
func (r *Recorder) Telemetry(t logic.Telemetry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.telemetry = append(r.telemetry, t)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// TelemetryRecords returns a copy of the recorded TX records.
func (r *Recorder) TelemetryRecords() []logic.Telemetry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]logic.Telemetry(nil), r.telemetry...)
}

// Count returns how many events at level contain substr.
func (r *Recorder) Count(level Level, substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Level == level && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}
