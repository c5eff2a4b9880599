package logic

// Convert applies the curve to a voltage.
func (c CalibrationCurve) Convert(volts float64) float64 {
	if c.VoltsPerUnit == 0 {
		return 0
	}
	return (volts - c.ZeroOffset) / c.VoltsPerUnit
}

// Pressure converts a transducer voltage to kPa, floored at 0.0.
// The sensor cannot report negative gauge pressure in its usable range.
func (c CalibrationCurve) Pressure(volts float64) float64 {
	kpa := c.Convert(volts)
	if kpa < 0 {
		return 0
	}
	return kpa
}
