// Package gpio drives the pump actuation outputs with hardware abstraction.
// The gpiocdev backend toggles a Linux GPIO character device line in
// software; the periph backend uses the SoC PWM peripheral.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
)

// Output is one PWM actuation channel.
type Output interface {
	// SetPWM drives the output at freqHz with the given duty fraction in
	// [0, 1]. Duty 0 holds the line low regardless of frequency.
	SetPWM(freqHz, duty float64) error

	// Close drives the line low and releases it.
	Close() error
}

// Opener opens the output on one pin.
type Opener func(pin int) (Output, error)

// Backends.
const (
	BackendCdev   = "gpiocdev"
	BackendPeriph = "periph"
)

// Pin definitions (BCM numbering) of the four MOSFET drivers.
var DefaultPins = []int{12, 13, 19, 16}

// DefaultChip is the character device carrying the header pins on a Pi 5.
const DefaultChip = "gpiochip4"

var errBadFrequency = errors.New("frequency must be positive")

// InitError records an output that failed to initialize. The channel is
// left out of actuation rather than aborting startup.
type InitError struct {
	Channel int
	Pin     int
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init channel %d (pin %d): %v", e.Channel, e.Pin, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// NewOpener returns the opener for backend.
func NewOpener(backend, chip string) (Opener, error) {
	switch backend {
	case BackendCdev, "":
		if chip == "" {
			chip = DefaultChip
		}
		return func(pin int) (Output, error) {
			out, err := NewCdevOutput(chip, pin)
			if err != nil {
				return nil, err
			}
			return out, nil
		}, nil
	case BackendPeriph:
		return func(pin int) (Output, error) {
			out, err := NewPeriphOutput(pin)
			if err != nil {
				return nil, err
			}
			return out, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", backend)
	}
}

// OpenAll opens one output per pin. A pin that fails leaves a nil entry at
// its index and contributes an *InitError.
func OpenAll(pins []int, open Opener) ([]Output, []error) {
	outputs := make([]Output, len(pins))
	var errs []error
	for i, pin := range pins {
		out, err := open(pin)
		if err != nil {
			errs = append(errs, &InitError{Channel: i, Pin: pin, Err: err})
			continue
		}
		outputs[i] = out
	}
	return outputs, errs
}
