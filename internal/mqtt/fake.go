package mqtt

import (
	"sync"

	"github.com/sweeney/pump-controller/internal/eventlog"
	"github.com/sweeney/pump-controller/internal/logic"
)

// FakePublisher records published messages for test assertions.
// Safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	telemetry      []logic.Telemetry
	events         []eventlog.Event
	systemEvents   []SystemEvent
	systemPayloads [][]byte
	commands       func(string)

	// PublishError, if set, is returned by PublishTelemetry and PublishEvent.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	closed    bool
	connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishTelemetry records the TX record.
func (f *FakePublisher) PublishTelemetry(t logic.Telemetry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	t.OutputHz = append([]float64(nil), t.OutputHz...)
	f.telemetry = append(f.telemetry, t)
	return nil
}

// PublishEvent records the event.
func (f *FakePublisher) PublishEvent(e eventlog.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.events = append(f.events, e)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// SubscribeCommands stores handler for Deliver.
func (f *FakePublisher) SubscribeCommands(handler func(string)) error {
	f.mu.Lock()
	f.commands = handler
	f.mu.Unlock()
	return nil
}

// Deliver simulates an inbound command message. It reports whether a
// handler was subscribed and the payload parsed.
func (f *FakePublisher) Deliver(payload []byte) bool {
	f.mu.Lock()
	handler := f.commands
	f.mu.Unlock()
	if handler == nil {
		return false
	}
	cmd, err := ParseCommandPayload(payload)
	if err != nil {
		return false
	}
	handler(cmd)
	return true
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// SetConnected controls the return value of IsConnected.
func (f *FakePublisher) SetConnected(c bool) {
	f.mu.Lock()
	f.connected = c
	f.mu.Unlock()
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Telemetry returns a copy of the recorded TX records.
func (f *FakePublisher) Telemetry() []logic.Telemetry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Telemetry(nil), f.telemetry...)
}

// Events returns a copy of the recorded events.
func (f *FakePublisher) Events() []eventlog.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]eventlog.Event(nil), f.events...)
}

// SystemEvents returns a copy of the recorded system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns a copy of the recorded system payloads.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}
