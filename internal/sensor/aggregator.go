package sensor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sweeney/pump-controller/internal/eventlog"
	"github.com/sweeney/pump-controller/internal/status"
)

// FrequencySource is a published per-channel frequency. *FrequencyMonitor
// implements it.
type FrequencySource interface {
	Output() int
	Frequency() float64
}

// PressureReader returns a pressure sample or ok=false.
type PressureReader interface {
	ReadPressure() (kpa float64, ok bool)
}

// SnapshotWriter receives one aggregated sample per cycle. *status.Tracker
// implements it.
type SnapshotWriter interface {
	PublishSensors(pressure float64, readings []status.Reading)
}

// Aggregator pulls the latest pressure and every monitor frequency into the
// snapshot at a fixed cadence. A cycle performs no heap allocation.
type Aggregator struct {
	pressure PressureReader
	sources  []FrequencySource
	out      SnapshotWriter
	interval time.Duration
	logger   *eventlog.Logger

	readings []status.Reading
	failing  bool
	running  atomic.Bool
}

// NewAggregator creates an aggregator. A zero interval selects
// DefaultAggregatorInterval.
func NewAggregator(pressure PressureReader, sources []FrequencySource, out SnapshotWriter, interval time.Duration, logger *eventlog.Logger) *Aggregator {
	if interval <= 0 {
		interval = DefaultAggregatorInterval
	}
	a := &Aggregator{
		pressure: pressure,
		sources:  sources,
		out:      out,
		interval: interval,
		logger:   logger,
		readings: make([]status.Reading, len(sources)),
	}
	a.running.Store(true)
	return a
}

// Run aggregates until Stop is called or ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for a.running.Load() {
		a.step()
		if !sleep(ctx, timer, a.interval) {
			return nil
		}
	}
	return nil
}

// Stop asks the loop to exit after its current cycle.
func (a *Aggregator) Stop() {
	a.running.Store(false)
}

// step runs one cycle and reports whether the snapshot was written.
func (a *Aggregator) step() bool {
	kpa, ok := a.pressure.ReadPressure()
	for i, s := range a.sources {
		a.readings[i] = status.Reading{Channel: s.Output(), Hz: s.Frequency()}
	}

	if !ok {
		if !a.failing {
			a.logger.Warnf("pressure sampler: bus read failing")
			a.failing = true
		}
		return false
	}
	if a.failing {
		a.logger.Infof("pressure sampler: bus read recovered")
		a.failing = false
	}

	a.out.PublishSensors(kpa, a.readings)
	return true
}
