//go:build linux

package gpio

import (
	"fmt"

	"go.uber.org/multierr"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// PeriphOutput drives a pin from the SoC PWM peripheral through periph.io.
type PeriphOutput struct {
	pin int
	io  pgpio.PinIO
}

// NewPeriphOutput initializes the periph host drivers and claims
// GPIO<pin>, driving it low.
func NewPeriphOutput(pin int) (*PeriphOutput, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	name := fmt.Sprintf("GPIO%d", pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %s not found", name)
	}
	if err := p.Out(pgpio.Low); err != nil {
		return nil, fmt.Errorf("set %s low: %w", name, err)
	}
	return &PeriphOutput{pin: pin, io: p}, nil
}

// SetPWM programs the PWM peripheral. Duty 0 drives the pin low.
func (o *PeriphOutput) SetPWM(freqHz, duty float64) error {
	if duty <= 0 {
		if err := o.io.Out(pgpio.Low); err != nil {
			return fmt.Errorf("pin %d low: %w", o.pin, err)
		}
		return nil
	}
	if freqHz <= 0 {
		return fmt.Errorf("pin %d: %w", o.pin, errBadFrequency)
	}
	if duty > 1 {
		duty = 1
	}

	d := pgpio.Duty(float64(pgpio.DutyMax) * duty)
	f := physic.Frequency(freqHz * float64(physic.Hertz))
	if err := o.io.PWM(d, f); err != nil {
		return fmt.Errorf("pin %d pwm %.1f Hz: %w", o.pin, freqHz, err)
	}
	return nil
}

// Close stops the peripheral and leaves the pin low.
func (o *PeriphOutput) Close() error {
	return multierr.Combine(
		o.io.Halt(),
		o.io.Out(pgpio.Low),
	)
}
