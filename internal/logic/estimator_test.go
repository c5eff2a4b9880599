package logic

import (
	"fmt"
	"math"
	"testing"
	"time"
)

const sampleInterval = 1500 * time.Microsecond

// squareWave returns a pseudo-current of 1.0 while the wave is high and 0.0
// otherwise. The wave rises at t=0.
func squareWave(hz, duty float64) func(d time.Duration) float64 {
	period := time.Duration(float64(time.Second) / hz)
	high := time.Duration(float64(period) * duty)
	return func(d time.Duration) float64 {
		if d%period < high {
			return 1.0
		}
		return 0.0
	}
}

// A measured period lands on the sample grid, so it can be off by up to one
// sample interval. At 1.5ms sampling that stays under 5% only for periods of
// 30ms or more, i.e. up to about 33Hz. The upper band is covered by
// TestEstimatorHighBandWithinOneSample.
func TestEstimatorConvergesOnSquareWave(t *testing.T) {
	tests := []float64{6, 10, 15, 20, 25, 30}

	for _, hz := range tests {
		t.Run(time.Duration(float64(time.Second)/hz).String(), func(t *testing.T) {
			start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			e := NewFrequencyEstimator(DefaultThreshold, IdleTimeout, start)
			wave := squareWave(hz, 0.7)

			horizon := time.Duration(3 * float64(time.Second) / hz)
			var got float64
			for d := time.Duration(0); d <= horizon; d += sampleInterval {
				got = e.Process(wave(d), start.Add(d))
			}

			if math.Abs(got-hz)/hz > 0.05 {
				t.Errorf("after 3 periods: got %.3f Hz, want %.1f Hz within 5%%", got, hz)
			}
		})
	}
}

// Above about 33Hz the period error from the 1.5ms sample grid exceeds 5%
// (45Hz can read as 47.6Hz), so the bound is one sample interval on the
// period. Above 46Hz a short quantized period crosses the 50Hz bound and is
// rejected, which is why the sweep stops there.
func TestEstimatorHighBandWithinOneSample(t *testing.T) {
	phases := []time.Duration{0, 300 * time.Microsecond, 750 * time.Microsecond, 1200 * time.Microsecond}

	for hz := 35.0; hz <= 46; hz++ {
		for _, phase := range phases {
			t.Run(fmt.Sprintf("%.0fHz/%s", hz, phase), func(t *testing.T) {
				start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
				e := NewFrequencyEstimator(DefaultThreshold, IdleTimeout, start)
				wave := squareWave(hz, 0.5)

				period := time.Duration(float64(time.Second) / hz)
				horizon := 10 * period
				for d := time.Duration(0); d <= horizon; d += sampleInterval {
					got := e.Process(wave(d+phase), start.Add(d))
					if got == 0 {
						continue
					}
					measured := time.Duration(float64(time.Second) / got)
					if diff := measured - period; diff > sampleInterval || diff < -sampleInterval {
						t.Fatalf("at %v: got %.3f Hz (period %v), want period within %v of %v",
							d, got, measured, sampleInterval, period)
					}
				}
				if e.Estimate() == 0 {
					t.Errorf("no estimate after %v", horizon)
				}
			})
		}
	}
}

func TestEstimatorFirstEdgeAtStartIsRejected(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewFrequencyEstimator(DefaultThreshold, IdleTimeout, start)

	if got := e.Process(1.0, start); got != 0 {
		t.Errorf("zero-length period accepted: got %v", got)
	}
	if !e.LastEdge().Equal(start) {
		t.Errorf("LastEdge: got %v, want %v", e.LastEdge(), start)
	}
}

func TestEstimatorRejectsOutOfWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		period time.Duration
	}{
		{"too fast (glitch)", 500 * time.Microsecond},
		{"just above 50Hz", 19 * time.Millisecond},
		{"above 50Hz", 15 * time.Millisecond},
		{"just below 5Hz", 210 * time.Millisecond},
		{"below 5Hz", 300 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewFrequencyEstimator(DefaultThreshold, IdleTimeout, start)
			// Establish a valid 10Hz estimate.
			e.Process(1.0, start.Add(10*time.Millisecond))
			e.Process(0.0, start.Add(20*time.Millisecond))
			e.Process(1.0, start.Add(110*time.Millisecond))
			if got := e.Estimate(); math.Abs(got-10) > 1e-9 {
				t.Fatalf("setup: got %v, want 10", got)
			}
			e.Process(0.0, start.Add(110*time.Millisecond+100*time.Microsecond))

			edge := start.Add(110*time.Millisecond + tt.period)
			got := e.Process(1.0, edge)
			if math.Abs(got-10) > 1e-9 {
				t.Errorf("estimate changed to %v on rejected period %v", got, tt.period)
			}
			if !e.LastEdge().Equal(edge) {
				t.Errorf("rejected edge did not advance LastEdge")
			}
		})
	}
}

func TestEstimatorRejectedEdgeDoesNotInflateNextPeriod(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewFrequencyEstimator(DefaultThreshold, IdleTimeout, start)

	e.Process(1.0, start.Add(10*time.Millisecond))
	e.Process(0.0, start.Add(11*time.Millisecond))
	// Glitch edge 1.5ms later is rejected but still becomes the reference.
	e.Process(1.0, start.Add(11500*time.Microsecond))
	e.Process(0.0, start.Add(12*time.Millisecond))
	got := e.Process(1.0, start.Add(11500*time.Microsecond+50*time.Millisecond))

	if math.Abs(got-20) > 1e-9 {
		t.Errorf("got %v Hz, want 20 Hz measured from the glitch edge", got)
	}
}

func TestEstimatorIdleTimeout(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewFrequencyEstimator(DefaultThreshold, IdleTimeout, start)

	e.Process(1.0, start.Add(10*time.Millisecond))
	e.Process(0.0, start.Add(20*time.Millisecond))
	last := start.Add(110 * time.Millisecond)
	e.Process(1.0, last)
	if e.Estimate() == 0 {
		t.Fatal("expected a non-zero estimate before timeout")
	}

	// Signal stuck high: no edges.
	if got := e.Process(1.0, last.Add(IdleTimeout)); got == 0 {
		t.Error("estimate reset at exactly the timeout, want strictly after")
	}
	if got := e.Process(1.0, last.Add(IdleTimeout+time.Millisecond)); got != 0 {
		t.Errorf("after timeout: got %v, want 0", got)
	}
	// Stays zero every cycle while idle.
	for i := 2; i < 10; i++ {
		if got := e.Process(0.0, last.Add(IdleTimeout+time.Duration(i)*time.Millisecond)); got != 0 {
			t.Fatalf("cycle %d: got %v, want 0", i, got)
		}
	}

	// First edge after idle has a > 500ms period and is rejected; the next
	// valid edge restores the estimate.
	resume := last.Add(2 * time.Second)
	if got := e.Process(1.0, resume); got != 0 {
		t.Errorf("first edge after idle: got %v, want 0", got)
	}
	e.Process(0.0, resume.Add(10*time.Millisecond))
	if got := e.Process(1.0, resume.Add(40*time.Millisecond)); math.Abs(got-25) > 1e-9 {
		t.Errorf("after resume: got %v, want 25", got)
	}
}

func TestEstimatorExpire(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewFrequencyEstimator(0, 0, start)

	e.Process(1.0, start.Add(10*time.Millisecond))
	e.Process(0.0, start.Add(20*time.Millisecond))
	e.Process(1.0, start.Add(110*time.Millisecond))

	if got := e.Expire(start.Add(200 * time.Millisecond)); got == 0 {
		t.Error("Expire reset the estimate before the timeout")
	}
	if got := e.Expire(start.Add(700 * time.Millisecond)); got != 0 {
		t.Errorf("Expire after timeout: got %v, want 0", got)
	}
}

func TestEstimatorThreshold(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewFrequencyEstimator(DefaultThreshold, IdleTimeout, start)

	e.Process(DefaultThreshold, start)
	if e.On() {
		t.Error("value equal to the threshold must not count as on")
	}
	e.Process(DefaultThreshold+0.001, start.Add(time.Millisecond))
	if !e.On() {
		t.Error("value above the threshold must count as on")
	}
}
