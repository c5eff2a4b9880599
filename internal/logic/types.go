// Package logic contains the pure signal-processing and command rules of the
// pump controller. This package has NO external dependencies (no GPIO, I2C,
// MQTT, OS, or time.Sleep). Time is always injectable via time.Time parameters.
package logic

import "time"

// Set-point limits (Hz) and the Up/Down step.
const (
	MinSetPoint  = 5
	MaxSetPoint  = 40
	SetPointStep = 1

	// DefaultSetPoint is the pending and active set-point at startup.
	DefaultSetPoint = 10

	// RunningDuty is the duty-cycle applied to every channel while running.
	RunningDuty = 0.5
)

// Frequency acceptance rules for the edge estimator.
const (
	// DefaultThreshold is the pseudo-current above which a channel counts as on.
	DefaultThreshold = 0.05

	// MinPeriod rejects edges closer together than this (bus glitches).
	MinPeriod = time.Millisecond

	// MinAcceptedHz and MaxAcceptedHz bound the open accept window.
	// The upper bound is deliberately wider than MaxSetPoint.
	MinAcceptedHz = 5.0
	MaxAcceptedHz = 50.0

	// IdleTimeout forces the estimate to zero when no edge has been seen.
	IdleTimeout = 500 * time.Millisecond

	// ConnectedFloorHz is the measured frequency below which a running
	// instrumented channel is reported disconnected.
	ConnectedFloorHz = 1.0
)

// CalibrationCurve maps a voltage to a physical quantity:
// value = (volts - ZeroOffset) / VoltsPerUnit.
type CalibrationCurve struct {
	ZeroOffset   float64
	VoltsPerUnit float64
}

// Calibrations measured on the reference hardware.
var (
	// PressureCurve converts the transducer voltage to kPa.
	PressureCurve = CalibrationCurve{ZeroOffset: 0.19825, VoltsPerUnit: 0.03875 / 50}

	// CurrentSenseCurve converts a current-sense voltage to pseudo-current.
	CurrentSenseCurve = CalibrationCurve{ZeroOffset: 1.25, VoltsPerUnit: 0.185}
)

// CommandState is the operator intent owned by the actuation controller.
type CommandState struct {
	// Pending is the set-point selected with Up/Down but not yet applied.
	Pending int
	// Active is the set-point last actually applied to the outputs.
	Active int
	// Running is true between a Set and the next Stop.
	Running bool
}

// Telemetry is one TX record: commanded set-point, pressure and the
// measured output frequency of every actuation channel.
type Telemetry struct {
	Timestamp   time.Time
	SetPointHz  int
	PressureKPa float64
	OutputHz    []float64
}
