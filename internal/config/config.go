// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/pump-controller/internal/adc"
	"github.com/sweeney/pump-controller/internal/gpio"
	"github.com/sweeney/pump-controller/internal/logic"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/pump-controller.yaml"

// Config represents the daemon configuration.
type Config struct {
	Bus       BusConfig       `yaml:"bus"`
	Pressure  PressureConfig  `yaml:"pressure"`
	Monitors  []MonitorConfig `yaml:"monitors"`
	Sampling  SamplingConfig  `yaml:"sampling"`
	Actuation ActuationConfig `yaml:"actuation"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Process   ProcessConfig   `yaml:"process"`
}

// BusConfig selects the analog converter.
type BusConfig struct {
	Name      string  `yaml:"name"`       // i2c bus, e.g. "4" for /dev/i2c-4
	Address   uint16  `yaml:"address"`    // converter address
	FullScale float64 `yaml:"full_scale"` // volts
	DataRate  int     `yaml:"data_rate"`  // samples per second
}

// PressureConfig describes the pressure transducer input.
type PressureConfig struct {
	Input       int     `yaml:"input"`
	ZeroOffset  float64 `yaml:"zero_offset"`   // volts at 0 kPa
	VoltsPerKPa float64 `yaml:"volts_per_kpa"` // slope
}

// MonitorConfig wires one current-sense input to an actuation channel.
type MonitorConfig struct {
	Output       int     `yaml:"output"`
	Input        int     `yaml:"input"`
	ZeroOffset   float64 `yaml:"zero_offset"`
	VoltsPerUnit float64 `yaml:"volts_per_unit"`
	Threshold    float64 `yaml:"threshold"`
}

// SamplingConfig holds the loop timings.
type SamplingConfig struct {
	MonitorInterval    time.Duration `yaml:"monitor_interval"`
	FailureBackoff     time.Duration `yaml:"failure_backoff"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	AggregatorInterval time.Duration `yaml:"aggregator_interval"`
}

// ActuationConfig selects the PWM backend and pins.
type ActuationConfig struct {
	Backend    string  `yaml:"backend"` // gpiocdev or periph
	Chip       string  `yaml:"chip"`    // gpiocdev only
	Pins       []int   `yaml:"pins"`    // BCM numbers, one per channel
	InitialHz  int     `yaml:"initial_hz"`
	ShutdownHz float64 `yaml:"shutdown_hz"`
}

// MQTTConfig configures the broker connection. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker            string        `yaml:"broker"`
	ClientID          string        `yaml:"client_id"`
	Prefix            string        `yaml:"prefix"`
	Heartbeat         time.Duration `yaml:"heartbeat"`          // 0 disables
	TelemetryInterval time.Duration `yaml:"telemetry_interval"` // 0 disables
	BufferSize        int           `yaml:"buffer_size"`
}

// HTTPConfig configures the status server. An empty addr disables it.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	LiveInterval time.Duration `yaml:"live_interval"`
}

// LogConfig configures the event log files. An empty dir disables them.
type LogConfig struct {
	Dir    string        `yaml:"dir"`
	MaxAge time.Duration `yaml:"max_age"`
}

// ProcessConfig holds scheduling settings.
type ProcessConfig struct {
	Nice int `yaml:"nice"` // 0 leaves the priority alone
}

// Default returns the configuration of the reference rig.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Name:      "4",
			Address:   adc.DefaultAddress,
			FullScale: 4.096, // gain 1
			DataRate:  860,
		},
		Pressure: PressureConfig{
			Input:       0,
			ZeroOffset:  logic.PressureCurve.ZeroOffset,
			VoltsPerKPa: logic.PressureCurve.VoltsPerUnit,
		},
		Monitors: []MonitorConfig{
			{
				Output:       logic.InstrumentedChannel,
				Input:        1,
				ZeroOffset:   logic.CurrentSenseCurve.ZeroOffset,
				VoltsPerUnit: logic.CurrentSenseCurve.VoltsPerUnit,
				Threshold:    logic.DefaultThreshold,
			},
		},
		Sampling: SamplingConfig{
			MonitorInterval:    1500 * time.Microsecond,
			FailureBackoff:     100 * time.Millisecond,
			IdleTimeout:        logic.IdleTimeout,
			AggregatorInterval: 2 * time.Millisecond,
		},
		Actuation: ActuationConfig{
			Backend:    gpio.BackendCdev,
			Chip:       gpio.DefaultChip,
			Pins:       append([]int(nil), gpio.DefaultPins...),
			InitialHz:  logic.DefaultSetPoint,
			ShutdownHz: 10,
		},
		MQTT: MQTTConfig{
			Broker:            "tcp://localhost:1883",
			ClientID:          "pump-controller",
			Prefix:            "pump/controller",
			Heartbeat:         15 * time.Minute,
			TelemetryInterval: time.Second,
			BufferSize:        1000,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			LiveInterval: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Dir:    "/var/log/pump-controller",
			MaxAge: 30 * 24 * time.Hour,
		},
		Process: ProcessConfig{
			Nice: -20,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist the
// defaults are returned; keys missing from the file keep their defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ensureDefaults()
	return cfg, nil
}

// ensureDefaults restores fields that were set to an unusable zero.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Bus.Name == "" {
		c.Bus.Name = def.Bus.Name
	}
	if c.Bus.Address == 0 {
		c.Bus.Address = def.Bus.Address
	}
	if c.Bus.FullScale == 0 {
		c.Bus.FullScale = def.Bus.FullScale
	}
	if c.Bus.DataRate == 0 {
		c.Bus.DataRate = def.Bus.DataRate
	}

	// A zero slope means the curve was left out.
	if c.Pressure.VoltsPerKPa == 0 {
		c.Pressure.ZeroOffset = def.Pressure.ZeroOffset
		c.Pressure.VoltsPerKPa = def.Pressure.VoltsPerKPa
	}
	for i := range c.Monitors {
		if c.Monitors[i].VoltsPerUnit == 0 {
			c.Monitors[i].ZeroOffset = def.Monitors[0].ZeroOffset
			c.Monitors[i].VoltsPerUnit = def.Monitors[0].VoltsPerUnit
		}
		if c.Monitors[i].Threshold == 0 {
			c.Monitors[i].Threshold = def.Monitors[0].Threshold
		}
	}

	if c.Sampling.MonitorInterval == 0 {
		c.Sampling.MonitorInterval = def.Sampling.MonitorInterval
	}
	if c.Sampling.FailureBackoff == 0 {
		c.Sampling.FailureBackoff = def.Sampling.FailureBackoff
	}
	if c.Sampling.IdleTimeout == 0 {
		c.Sampling.IdleTimeout = def.Sampling.IdleTimeout
	}
	if c.Sampling.AggregatorInterval == 0 {
		c.Sampling.AggregatorInterval = def.Sampling.AggregatorInterval
	}

	if c.Actuation.Backend == "" {
		c.Actuation.Backend = def.Actuation.Backend
	}
	if c.Actuation.Chip == "" {
		c.Actuation.Chip = def.Actuation.Chip
	}
	if len(c.Actuation.Pins) == 0 {
		c.Actuation.Pins = def.Actuation.Pins
	}
	if c.Actuation.InitialHz == 0 {
		c.Actuation.InitialHz = def.Actuation.InitialHz
	}
	if c.Actuation.ShutdownHz == 0 {
		c.Actuation.ShutdownHz = def.Actuation.ShutdownHz
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = def.MQTT.Prefix
	}
	if c.MQTT.BufferSize == 0 {
		c.MQTT.BufferSize = def.MQTT.BufferSize
	}
	if c.HTTP.LiveInterval == 0 {
		c.HTTP.LiveInterval = def.HTTP.LiveInterval
	}
}

// Validate reports every inconsistency in c.
func (c *Config) Validate() error {
	var err error
	add := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf(format, args...))
	}

	if c.Pressure.Input < 0 || c.Pressure.Input >= adc.NumInputs {
		add("pressure.input %d out of range 0..%d", c.Pressure.Input, adc.NumInputs-1)
	}

	switch c.Actuation.Backend {
	case gpio.BackendCdev, gpio.BackendPeriph:
	default:
		add("actuation.backend %q: want %s or %s", c.Actuation.Backend, gpio.BackendCdev, gpio.BackendPeriph)
	}
	if len(c.Actuation.Pins) == 0 {
		add("actuation.pins is empty")
	}
	if c.Actuation.ShutdownHz < 0 {
		add("actuation.shutdown_hz must not be negative")
	}

	outputs := make(map[int]bool)
	inputs := map[int]bool{c.Pressure.Input: true}
	for i, m := range c.Monitors {
		if m.Output < 0 || m.Output >= len(c.Actuation.Pins) {
			add("monitors[%d].output %d has no actuation pin", i, m.Output)
		}
		if outputs[m.Output] {
			add("monitors[%d].output %d is measured twice", i, m.Output)
		}
		outputs[m.Output] = true

		if m.Input < 0 || m.Input >= adc.NumInputs {
			add("monitors[%d].input %d out of range 0..%d", i, m.Input, adc.NumInputs-1)
		}
		if inputs[m.Input] {
			add("monitors[%d].input %d already in use", i, m.Input)
		}
		inputs[m.Input] = true
	}

	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"sampling.monitor_interval", c.Sampling.MonitorInterval},
		{"sampling.failure_backoff", c.Sampling.FailureBackoff},
		{"sampling.idle_timeout", c.Sampling.IdleTimeout},
		{"sampling.aggregator_interval", c.Sampling.AggregatorInterval},
		{"http.live_interval", c.HTTP.LiveInterval},
	} {
		if d.val <= 0 {
			add("%s must be positive", d.name)
		}
	}
	if c.MQTT.Heartbeat < 0 || c.MQTT.TelemetryInterval < 0 {
		add("mqtt intervals must not be negative")
	}
	return err
}

// PressureCurve returns the transducer calibration.
func (c *Config) PressureCurve() logic.CalibrationCurve {
	return logic.CalibrationCurve{ZeroOffset: c.Pressure.ZeroOffset, VoltsPerUnit: c.Pressure.VoltsPerKPa}
}

// Curve returns the current-sense calibration of m.
func (m MonitorConfig) Curve() logic.CalibrationCurve {
	return logic.CalibrationCurve{ZeroOffset: m.ZeroOffset, VoltsPerUnit: m.VoltsPerUnit}
}
