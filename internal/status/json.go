package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	PressureKPa   float64       `json:"pressure_kpa"`
	PendingHz     int           `json:"pending_hz"`
	ActiveHz      int           `json:"active_hz"`
	Running       bool          `json:"running"`
	Channels      []ChannelJSON `json:"channels"`
	Bus           BusJSON       `json:"bus"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is one actuation channel.
type ChannelJSON struct {
	Index     int     `json:"index"`
	OutputHz  float64 `json:"output_hz"`
	Connected bool    `json:"connected"`
	Available bool    `json:"available"`
}

// BusJSON reports analog bus counters.
type BusJSON struct {
	Reads    uint64 `json:"reads"`
	Failures uint64 `json:"failures"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	MonitorIntervalUs    int64  `json:"monitor_interval_us"`
	AggregatorIntervalUs int64  `json:"aggregator_interval_us"`
	HeartbeatMs          int64  `json:"heartbeat_ms"`
	TelemetryMs          int64  `json:"telemetry_ms"`
	Broker               string `json:"broker"`
	HTTPAddr             string `json:"http_addr"`
	Backend              string `json:"backend"`
}

func buildInner(snap Snapshot) StatusInner {
	channels := make([]ChannelJSON, len(snap.Frequencies))
	for i, hz := range snap.Frequencies {
		channels[i] = ChannelJSON{Index: i, OutputHz: hz}
		if i < len(snap.Connected) {
			channels[i].Connected = snap.Connected[i]
		}
		if i < len(snap.Available) {
			channels[i].Available = snap.Available[i]
		}
	}

	return StatusInner{
		PressureKPa:   snap.PressureKPa,
		PendingHz:     snap.Command.Pending,
		ActiveHz:      snap.Command.Active,
		Running:       snap.Command.Running,
		Channels:      channels,
		Bus:           BusJSON{Reads: snap.Bus.Reads, Failures: snap.Bus.Failures},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			MonitorIntervalUs:    snap.Config.MonitorIntervalUs,
			AggregatorIntervalUs: snap.Config.AggregatorIntervalUs,
			HeartbeatMs:          snap.Config.HeartbeatMs,
			TelemetryMs:          snap.Config.TelemetryMs,
			Broker:               snap.Config.Broker,
			HTTPAddr:             snap.Config.HTTPAddr,
			Backend:              snap.Config.Backend,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatCompactJSON returns the status without indentation, for the live feed.
func FormatCompactJSON(snap Snapshot) []byte {
	data, _ := json.Marshal(StatusJSON{Status: buildInner(snap)})
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
