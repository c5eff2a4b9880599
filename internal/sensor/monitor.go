// Package sensor runs the sampling loops: one frequency monitor per
// current-sense channel, the pressure sampler and the aggregator that
// publishes both into the status snapshot.
package sensor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/pump-controller/internal/adc"
	"github.com/sweeney/pump-controller/internal/eventlog"
	"github.com/sweeney/pump-controller/internal/logic"
)

// BusReader performs one serialized analog read. *bus.Arbiter implements it.
type BusReader interface {
	Read(ch adc.Channel) (float64, error)
}

// Default loop timings.
const (
	DefaultMonitorInterval    = 1500 * time.Microsecond
	DefaultFailureBackoff     = 100 * time.Millisecond
	DefaultAggregatorInterval = 2 * time.Millisecond
)

// MonitorConfig describes one current-sense channel.
type MonitorConfig struct {
	Output      int // actuation channel the sensor is wired to
	Channel     adc.Channel
	Curve       logic.CalibrationCurve
	Threshold   float64
	Interval    time.Duration
	Backoff     time.Duration
	IdleTimeout time.Duration
}

// FrequencyMonitor samples one current-sense channel at a fixed interval and
// publishes the derived output frequency.
type FrequencyMonitor struct {
	cfg    MonitorConfig
	bus    BusReader
	logger *eventlog.Logger
	now    func() time.Time

	running atomic.Bool
	done    chan struct{}

	mu   sync.Mutex
	freq float64
}

// NewFrequencyMonitor creates a monitor. Zero timings select the defaults.
func NewFrequencyMonitor(cfg MonitorConfig, bus BusReader, logger *eventlog.Logger) *FrequencyMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMonitorInterval
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultFailureBackoff
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = logic.IdleTimeout
	}
	m := &FrequencyMonitor{
		cfg:    cfg,
		bus:    bus,
		logger: logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	m.running.Store(true)
	return m
}

// Output returns the actuation channel index this monitor measures.
func (m *FrequencyMonitor) Output() int {
	return m.cfg.Output
}

// Run samples until Stop is called or ctx is cancelled. Bus failures are
// never returned; the loop backs off and retries.
func (m *FrequencyMonitor) Run(ctx context.Context) error {
	defer close(m.done)

	est := logic.NewFrequencyEstimator(m.cfg.Threshold, m.cfg.IdleTimeout, m.now())
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	failing := false

	for m.running.Load() {
		wait := m.cfg.Interval

		v, err := m.bus.Read(m.cfg.Channel)
		if err != nil {
			if !failing {
				m.logger.Warnf("frequency monitor %s: bus read failing: %v", m.cfg.Channel, err)
				failing = true
			}
			m.publish(est.Expire(m.now()))
			wait = m.cfg.Backoff
		} else {
			if failing {
				m.logger.Infof("frequency monitor %s: bus read recovered", m.cfg.Channel)
				failing = false
			}
			m.publish(est.Process(m.cfg.Curve.Convert(v), m.now()))
		}

		if !sleep(ctx, timer, wait) {
			return nil
		}
	}
	return nil
}

// Stop asks the loop to exit after its current cycle.
func (m *FrequencyMonitor) Stop() {
	m.running.Store(false)
}

// Done is closed when Run has returned.
func (m *FrequencyMonitor) Done() <-chan struct{} {
	return m.done
}

// Frequency returns the last published estimate in Hz. It never waits on
// the sampling loop beyond a field read.
func (m *FrequencyMonitor) Frequency() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freq
}

func (m *FrequencyMonitor) publish(hz float64) {
	m.mu.Lock()
	m.freq = hz
	m.mu.Unlock()
}

// sleep waits for d on a reused timer. It reports false if ctx ended first.
func sleep(ctx context.Context, timer *time.Timer, d time.Duration) bool {
	timer.Reset(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-timer.C:
		return true
	}
}
