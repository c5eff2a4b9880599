// Package status provides the thread-safe sensor snapshot for the
// pump-controller daemon. It is written by the sensor aggregator and read by
// the HTTP handlers, the MQTT heartbeat and the telemetry loop.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/pump-controller/internal/bus"
	"github.com/sweeney/pump-controller/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	MonitorIntervalUs    int64
	AggregatorIntervalUs int64
	HeartbeatMs          int64
	TelemetryMs          int64
	Broker               string
	HTTPAddr             string
	Backend              string
}

// Reading is one channel's frequency as seen by the aggregator.
type Reading struct {
	Channel int
	Hz      float64
}

// CommandSource exposes the operator command state. *actuation.Controller
// implements it.
type CommandSource interface {
	State() logic.CommandState
	Available() []bool
}

// StatsSource exposes bus counters. *bus.Arbiter implements it.
type StatsSource interface {
	Stats() bus.Stats
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	PressureKPa   float64
	PressureAt    time.Time
	Frequencies   []float64
	Connected     []bool
	Available     []bool
	Command       logic.CommandState
	Bus           bus.Stats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Telemetry converts the snapshot to a TX record.
func (s Snapshot) Telemetry() logic.Telemetry {
	return logic.Telemetry{
		Timestamp:   s.Now,
		SetPointHz:  s.Command.Active,
		PressureKPa: s.PressureKPa,
		OutputHz:    s.Frequencies,
	}
}

// Tracker holds the sensor snapshot behind an RWMutex. The aggregator is the
// only writer of pressure and frequencies.
type Tracker struct {
	mu            sync.RWMutex
	pressure      float64
	pressureAt    time.Time
	freqs         []float64
	startTime     time.Time
	cfg           Config
	mqttConnected bool

	commands CommandSource
	stats    StatsSource
}

// NewTracker creates a Tracker for the given number of actuation channels.
func NewTracker(startTime time.Time, channels int, cfg Config) *Tracker {
	return &Tracker{
		freqs:     make([]float64, channels),
		startTime: startTime,
		cfg:       cfg,
	}
}

// SetCommandSource registers the controller whose state is folded into
// every snapshot.
func (t *Tracker) SetCommandSource(c CommandSource) {
	t.mu.Lock()
	t.commands = c
	t.mu.Unlock()
}

// SetStatsSource registers the bus counters.
func (t *Tracker) SetStatsSource(s StatsSource) {
	t.mu.Lock()
	t.stats = s
	t.mu.Unlock()
}

// PublishSensors writes pressure and the given channel frequencies in one
// lock acquisition. Channels not in readings keep their last value.
// Readings for unknown channels are ignored. It does not allocate.
func (t *Tracker) PublishSensors(pressure float64, readings []Reading) {
	now := time.Now()
	t.mu.Lock()
	t.pressure = pressure
	t.pressureAt = now
	for _, r := range readings {
		if r.Channel >= 0 && r.Channel < len(t.freqs) {
			t.freqs[r.Channel] = r.Hz
		}
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.mqttConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := Snapshot{
		PressureKPa:   t.pressure,
		PressureAt:    t.pressureAt,
		Frequencies:   append([]float64(nil), t.freqs...),
		StartTime:     t.startTime,
		MQTTConnected: t.mqttConnected,
		Config:        t.cfg,
	}
	commands, stats := t.commands, t.stats
	t.mu.RUnlock()

	// Controller and arbiter have their own locks; never nest them inside ours.
	if commands != nil {
		s.Command = commands.State()
		s.Available = commands.Available()
	}
	if stats != nil {
		s.Bus = stats.Stats()
	}
	s.Connected = logic.Connectivity(s.Command.Running, s.Frequencies)
	s.Now = time.Now()
	return s
}
