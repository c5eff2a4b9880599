//go:build linux

package adc

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// ADS1115Config selects the bus and conversion settings.
type ADS1115Config struct {
	Bus       string  // i2creg bus name, e.g. "4" for /dev/i2c-4
	Address   uint16  // converter address
	FullScale float64 // full-scale volts, 4.096 for gain 1
	DataRate  int     // samples per second, 860 max
}

// ADS1115 reads single-ended inputs of one ADS1115 converter.
// It is not safe for concurrent use; callers go through the bus arbiter.
type ADS1115 struct {
	bus     i2c.BusCloser
	dev     *ads1x15.Dev
	address uint16
	pins    [NumInputs]ads1x15.PinADC
}

var errNoInput = errors.New("no such input")

var channels = [NumInputs]ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// NewADS1115 opens the I2C bus and prepares a pin for every input.
func NewADS1115(cfg ADS1115Config) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus, err)
	}

	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: cfg.Address})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("init ads1115 at 0x%02x: %w", cfg.Address, err)
	}

	a := &ADS1115{bus: bus, dev: dev, address: cfg.Address}
	maxV := physic.ElectricPotential(cfg.FullScale * float64(physic.Volt))
	rate := physic.Frequency(cfg.DataRate) * physic.Hertz

	for i, c := range channels {
		pin, err := dev.PinForChannel(c, maxV, rate, ads1x15.BestQuality)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("configure AIN%d: %w", i, err)
		}
		a.pins[i] = pin
	}
	return a, nil
}

// Read performs one single-shot conversion on ch.
func (a *ADS1115) Read(ch Channel) (float64, error) {
	if ch.Index < 0 || ch.Index >= NumInputs || ch.Address != a.address {
		return 0, &BusError{Channel: ch, Err: errNoInput}
	}
	s, err := a.pins[ch.Index].Read()
	if err != nil {
		return 0, &BusError{Channel: ch, Err: err}
	}
	return float64(s.V) / float64(physic.Volt), nil
}

// Close halts every pin and releases the bus.
func (a *ADS1115) Close() error {
	var err error
	for i, p := range a.pins {
		if p == nil {
			continue
		}
		if herr := p.Halt(); herr != nil {
			err = multierr.Append(err, fmt.Errorf("halt AIN%d: %w", i, herr))
		}
	}
	if a.bus != nil {
		if cerr := a.bus.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close i2c bus: %w", cerr))
		}
	}
	return err
}
