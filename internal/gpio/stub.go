//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// CdevOutput is not available on non-Linux platforms.
type CdevOutput struct{}

// NewCdevOutput returns an error on non-Linux platforms.
func NewCdevOutput(chip string, pin int) (*CdevOutput, error) {
	return nil, errUnsupported
}

// SetPWM is not implemented on non-Linux platforms.
func (o *CdevOutput) SetPWM(freqHz, duty float64) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (o *CdevOutput) Close() error { return nil }

// PeriphOutput is not available on non-Linux platforms.
type PeriphOutput struct{}

// NewPeriphOutput returns an error on non-Linux platforms.
func NewPeriphOutput(pin int) (*PeriphOutput, error) {
	return nil, errUnsupported
}

// SetPWM is not implemented on non-Linux platforms.
func (o *PeriphOutput) SetPWM(freqHz, duty float64) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (o *PeriphOutput) Close() error { return nil }
