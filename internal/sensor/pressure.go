package sensor

import (
	"github.com/sweeney/pump-controller/internal/adc"
	"github.com/sweeney/pump-controller/internal/logic"
)

// PressureSampler converts one analog channel to a calibrated pressure.
type PressureSampler struct {
	bus     BusReader
	channel adc.Channel
	curve   logic.CalibrationCurve
}

// NewPressureSampler creates a sampler for ch.
func NewPressureSampler(bus BusReader, ch adc.Channel, curve logic.CalibrationCurve) *PressureSampler {
	return &PressureSampler{bus: bus, channel: ch, curve: curve}
}

// ReadPressure returns the pressure in kPa, floored at 0. ok is false when
// the bus read failed; callers skip the update.
func (p *PressureSampler) ReadPressure() (kpa float64, ok bool) {
	v, err := p.bus.Read(p.channel)
	if err != nil {
		return 0, false
	}
	return p.curve.Pressure(v), true
}

// Channel returns the sampled channel.
func (p *PressureSampler) Channel() adc.Channel {
	return p.channel
}
