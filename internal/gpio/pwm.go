package gpio

import "time"

// Phase splits one PWM period into its high and low times. Duty is clamped
// to [0, 1]; a non-positive frequency yields a constant low output.
func Phase(freqHz, duty float64) (high, low time.Duration) {
	if freqHz <= 0 || duty <= 0 {
		return 0, 0
	}
	if duty > 1 {
		duty = 1
	}
	period := time.Duration(float64(time.Second) / freqHz)
	high = time.Duration(float64(period) * duty)
	return high, period - high
}
