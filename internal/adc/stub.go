//go:build !linux

package adc

import "errors"

// ADS1115Config selects the bus and conversion settings.
type ADS1115Config struct {
	Bus       string
	Address   uint16
	FullScale float64
	DataRate  int
}

// ADS1115 is not available on non-Linux platforms.
type ADS1115 struct{}

// NewADS1115 returns an error on non-Linux platforms.
func NewADS1115(cfg ADS1115Config) (*ADS1115, error) {
	return nil, errors.New("adc: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (a *ADS1115) Read(ch Channel) (float64, error) {
	return 0, &BusError{Channel: ch, Err: errors.New("not supported")}
}

// Close is not implemented on non-Linux platforms.
func (a *ADS1115) Close() error {
	return nil
}
