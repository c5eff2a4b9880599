// Package adc provides analog voltage reads with hardware abstraction.
// The real implementation drives an ADS1115 over I2C.
// The fake implementation allows testing without hardware.
package adc

import "fmt"

// Channel identifies one addressable input on the shared analog bus.
type Channel struct {
	Address uint16 // I2C address of the converter
	Index   int    // single-ended input 0..3
}

func (c Channel) String() string {
	return fmt.Sprintf("0x%02x/AIN%d", c.Address, c.Index)
}

// Reader reads voltages from analog channels.
type Reader interface {
	// Read performs one conversion and returns the voltage in volts.
	// Failures are transient and wrapped in *BusError.
	Read(ch Channel) (float64, error)

	// Close releases bus resources.
	Close() error
}

// DefaultAddress is the ADS1115 address with ADDR tied to GND.
const DefaultAddress = 0x48

// NumInputs is the number of single-ended inputs on one converter.
const NumInputs = 4

// BusError reports a failed transaction on one channel.
type BusError struct {
	Channel Channel
	Err     error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus read %s: %v", e.Channel, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}
