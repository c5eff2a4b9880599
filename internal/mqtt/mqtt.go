// Package mqtt provides MQTT publishing and the remote command subscription
// with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/pump-controller/internal/eventlog"
	"github.com/sweeney/pump-controller/internal/logic"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "pump/controller"

// Topics are the MQTT topics under one prefix.
type Topics struct {
	Telemetry string // TX records
	System    string // lifecycle events, retained
	Events    string // leveled operator events
	Command   string // inbound operator commands
}

// NewTopics derives the topics from prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Telemetry: prefix + "/telemetry",
		System:    prefix + "/system",
		Events:    prefix + "/events",
		Command:   prefix + "/command",
	}
}

// Publisher publishes to MQTT.
type Publisher interface {
	// PublishTelemetry sends one TX record.
	PublishTelemetry(t logic.Telemetry) error

	// PublishEvent sends one leveled event.
	PublishEvent(e eventlog.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandSubscriber delivers operator commands received from the broker.
type CommandSubscriber interface {
	SubscribeCommands(handler func(command string)) error
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// TelemetryPayload is the JSON form of a TX record.
type TelemetryPayload struct {
	Telemetry TelemetryInner `json:"telemetry"`
}

// TelemetryInner contains the TX record fields.
type TelemetryInner struct {
	Timestamp   string    `json:"timestamp"`
	SetPointHz  int       `json:"set_point_hz"`
	PressureKPa float64   `json:"pressure_kpa"`
	OutputHz    []float64 `json:"output_hz"`
}

// FormatTelemetryPayload creates the JSON payload for a TX record.
func FormatTelemetryPayload(t logic.Telemetry) ([]byte, error) {
	out := t.OutputHz
	if out == nil {
		out = []float64{}
	}
	return json.Marshal(TelemetryPayload{
		Telemetry: TelemetryInner{
			Timestamp:   t.Timestamp.UTC().Format(time.RFC3339Nano),
			SetPointHz:  t.SetPointHz,
			PressureKPa: t.PressureKPa,
			OutputHz:    out,
		},
	})
}

// EventPayload is the JSON form of a leveled event.
type EventPayload struct {
	Event EventInner `json:"event"`
}

// EventInner contains the event fields.
type EventInner struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// FormatEventPayload creates the JSON payload for an event.
func FormatEventPayload(e eventlog.Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		Event: EventInner{
			Timestamp: e.Time.UTC().Format(time.RFC3339Nano),
			Level:     string(e.Level),
			Message:   e.Message,
		},
	})
}

// CommandPayload is the inbound command message.
type CommandPayload struct {
	Command string `json:"command"`
}

var errEmptyCommand = errors.New("missing command")

// ParseCommandPayload extracts the command name from an inbound message.
func ParseCommandPayload(data []byte) (string, error) {
	var p CommandPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("decode command: %w", err)
	}
	if p.Command == "" {
		return "", errEmptyCommand
	}
	return p.Command, nil
}

// EventSink forwards leveled events and TX records to a Publisher.
// It implements eventlog.Sink and eventlog.TelemetrySink.
type EventSink struct {
	pub Publisher
}

// NewEventSink wraps pub.
func NewEventSink(pub Publisher) *EventSink {
	return &EventSink{pub: pub}
}

// Emit publishes e.
func (s *EventSink) Emit(e eventlog.Event) error {
	return s.pub.PublishEvent(e)
}

// Telemetry publishes t.
func (s *EventSink) Telemetry(t logic.Telemetry) error {
	return s.pub.PublishTelemetry(t)
}
