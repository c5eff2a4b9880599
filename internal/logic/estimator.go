package logic

import "time"

// FrequencyEstimator derives the output pulse frequency of one channel from a
// thresholded current signal. It is not safe for concurrent use; the owning
// monitor serializes access.
type FrequencyEstimator struct {
	threshold   float64
	idleTimeout time.Duration

	lastOn   bool
	lastEdge time.Time
	estimate float64
}

// NewFrequencyEstimator creates an estimator whose idle clock starts at start.
// A threshold <= 0 selects DefaultThreshold, an idleTimeout <= 0 selects IdleTimeout.
func NewFrequencyEstimator(threshold float64, idleTimeout time.Duration, start time.Time) *FrequencyEstimator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if idleTimeout <= 0 {
		idleTimeout = IdleTimeout
	}
	return &FrequencyEstimator{
		threshold:   threshold,
		idleTimeout: idleTimeout,
		lastEdge:    start,
	}
}

// Process feeds one pseudo-current sample taken at now and returns the
// published estimate in Hz.
func (e *FrequencyEstimator) Process(pseudoCurrent float64, now time.Time) float64 {
	on := pseudoCurrent > e.threshold

	if on && !e.lastOn {
		period := now.Sub(e.lastEdge)
		// Always advance, even for rejected edges, so a noise burst
		// cannot inflate the next period.
		e.lastEdge = now
		if period > MinPeriod {
			if hz := 1 / period.Seconds(); hz > MinAcceptedHz && hz < MaxAcceptedHz {
				e.estimate = hz
			}
		}
	}

	if now.Sub(e.lastEdge) > e.idleTimeout {
		e.estimate = 0
	}

	e.lastOn = on
	return e.estimate
}

// Expire applies only the idle timeout. Monitors call it on cycles where no
// sample could be read.
func (e *FrequencyEstimator) Expire(now time.Time) float64 {
	if now.Sub(e.lastEdge) > e.idleTimeout {
		e.estimate = 0
	}
	return e.estimate
}

// Estimate returns the current estimate in Hz.
func (e *FrequencyEstimator) Estimate() float64 {
	return e.estimate
}

// On reports the last derived digital state.
func (e *FrequencyEstimator) On() bool {
	return e.lastOn
}

// LastEdge returns the time of the last detected rising edge.
func (e *FrequencyEstimator) LastEdge() time.Time {
	return e.lastEdge
}
