package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/pump-controller/internal/adc"
	"github.com/sweeney/pump-controller/internal/bus"
	"github.com/sweeney/pump-controller/internal/eventlog"
	"github.com/sweeney/pump-controller/internal/logic"
	"github.com/sweeney/pump-controller/internal/status"
)

// Voltages on the current-sense input: idle sits on the zero offset,
// energized reads one pseudo-amp above it.
var (
	idleVolts = logic.CurrentSenseCurve.ZeroOffset
	onVolts   = logic.CurrentSenseCurve.ZeroOffset + logic.CurrentSenseCurve.VoltsPerUnit
)

var monitorInput = adc.Channel{Address: adc.DefaultAddress, Index: 1}

func startMonitor(t *testing.T, cfg MonitorConfig, r adc.Reader, logger *eventlog.Logger) *FrequencyMonitor {
	t.Helper()
	m := NewFrequencyMonitor(cfg, bus.NewArbiter(r), logger)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	t.Cleanup(func() {
		m.Stop()
		cancel()
		<-m.Done()
	})
	return m
}

func TestFrequencyMonitorTracksSquareWave(t *testing.T) {
	r := adc.NewFakeReader()
	r.SetWaveform(1, adc.Square(10, 0.7, idleVolts, onVolts))

	m := startMonitor(t, MonitorConfig{
		Channel:   monitorInput,
		Curve:     logic.CurrentSenseCurve,
		Threshold: logic.DefaultThreshold,
	}, r, nil)

	require.Eventually(t, func() bool {
		hz := m.Frequency()
		return hz > 9 && hz < 11
	}, 2*time.Second, 5*time.Millisecond, "estimate should settle near 10 Hz")
}

func TestFrequencyMonitorSurvivesBusFailures(t *testing.T) {
	r := adc.NewFakeReader()
	r.SetWaveform(1, adc.Square(20, 0.5, idleVolts, onVolts))
	rec := eventlog.NewRecorder()

	m := startMonitor(t, MonitorConfig{
		Channel:     monitorInput,
		Curve:       logic.CurrentSenseCurve,
		Threshold:   logic.DefaultThreshold,
		Backoff:     5 * time.Millisecond,
		IdleTimeout: 200 * time.Millisecond,
	}, r, eventlog.New(rec))

	require.Eventually(t, func() bool { return m.Frequency() > 0 }, 2*time.Second, 5*time.Millisecond)

	r.SetError(errors.New("i2c nack"))
	before := r.Reads()

	// The estimate is held until the idle timeout passes, then drops to 0.
	require.Eventually(t, func() bool { return m.Frequency() == 0 }, 2*time.Second, 5*time.Millisecond)

	select {
	case <-m.Done():
		t.Fatal("monitor loop exited on bus errors")
	default:
	}
	assert.Greater(t, r.Reads(), before+1, "loop should keep retrying")
	assert.Equal(t, 1, rec.Count(eventlog.LevelWarn, "bus read failing"), "one warning per failure streak")

	r.SetError(nil)
	require.Eventually(t, func() bool {
		return rec.Count(eventlog.LevelInfo, "bus read recovered") == 1
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return m.Frequency() > 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestFrequencyMonitorStopsPromptly(t *testing.T) {
	r := adc.NewFakeReader()
	m := NewFrequencyMonitor(MonitorConfig{Channel: monitorInput}, bus.NewArbiter(r), nil)

	go m.Run(context.Background())
	require.Eventually(t, func() bool { return r.Reads() > 0 }, time.Second, time.Millisecond)

	m.Stop()
	select {
	case <-m.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("monitor did not stop")
	}
}

func TestFrequencyMonitorContextCancel(t *testing.T) {
	r := adc.NewFakeReader()
	m := NewFrequencyMonitor(MonitorConfig{Channel: monitorInput, Interval: time.Hour}, bus.NewArbiter(r), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	require.Eventually(t, func() bool { return r.Reads() > 0 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-m.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("monitor ignored cancellation")
	}
}

func TestNewFrequencyMonitorDefaults(t *testing.T) {
	m := NewFrequencyMonitor(MonitorConfig{Output: 2}, nil, nil)

	assert.Equal(t, DefaultMonitorInterval, m.cfg.Interval)
	assert.Equal(t, DefaultFailureBackoff, m.cfg.Backoff)
	assert.Equal(t, logic.IdleTimeout, m.cfg.IdleTimeout)
	assert.Equal(t, 2, m.Output())
	assert.Zero(t, m.Frequency())
}

func TestPressureSampler(t *testing.T) {
	r := adc.NewFakeReader()
	ch := adc.Channel{Address: adc.DefaultAddress, Index: 0}
	p := NewPressureSampler(r, ch, logic.PressureCurve)
	assert.Equal(t, ch, p.Channel())

	r.SetWaveform(0, adc.Constant(logic.PressureCurve.ZeroOffset+100*logic.PressureCurve.VoltsPerUnit))
	kpa, ok := p.ReadPressure()
	require.True(t, ok)
	assert.InDelta(t, 100, kpa, 1e-9)

	r.SetWaveform(0, adc.Constant(0))
	kpa, ok = p.ReadPressure()
	require.True(t, ok)
	assert.Zero(t, kpa, "below the zero offset clamps to 0")

	r.SetError(errors.New("timeout"))
	_, ok = p.ReadPressure()
	assert.False(t, ok)
}

type stubPressure struct {
	kpa float64
	ok  bool
}

func (s *stubPressure) ReadPressure() (float64, bool) { return s.kpa, s.ok }

type stubSource struct {
	output int
	hz     float64
}

func (s *stubSource) Output() int        { return s.output }
func (s *stubSource) Frequency() float64 { return s.hz }

type recordingWriter struct {
	mu       sync.Mutex
	calls    int
	pressure float64
	readings []status.Reading
}

func (w *recordingWriter) PublishSensors(pressure float64, readings []status.Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.pressure = pressure
	w.readings = append(w.readings[:0], readings...)
}

func TestAggregatorWritesOnlyOnPressureSuccess(t *testing.T) {
	p := &stubPressure{kpa: 42, ok: true}
	src := &stubSource{output: 0, hz: 12.5}
	w := &recordingWriter{}
	rec := eventlog.NewRecorder()
	a := NewAggregator(p, []FrequencySource{src}, w, 0, eventlog.New(rec))

	assert.True(t, a.step())
	assert.Equal(t, 1, w.calls)
	assert.Equal(t, 42.0, w.pressure)
	assert.Equal(t, []status.Reading{{Channel: 0, Hz: 12.5}}, w.readings)

	p.ok = false
	src.hz = 30
	assert.False(t, a.step())
	assert.False(t, a.step())
	assert.Equal(t, 1, w.calls, "failed pressure read must skip the update")
	assert.Equal(t, 12.5, w.readings[0].Hz)
	assert.Equal(t, 1, rec.Count(eventlog.LevelWarn, "pressure sampler"))

	p.ok = true
	assert.True(t, a.step())
	assert.Equal(t, 2, w.calls)
	assert.Equal(t, 30.0, w.readings[0].Hz)
	assert.Equal(t, 1, rec.Count(eventlog.LevelInfo, "recovered"))
}

func TestAggregatorCycleDoesNotAllocate(t *testing.T) {
	sources := []FrequencySource{
		&stubSource{output: 0, hz: 10},
		&stubSource{output: 1, hz: 0},
	}
	tracker := status.NewTracker(time.Now(), 4, status.Config{})
	a := NewAggregator(&stubPressure{kpa: 50, ok: true}, sources, tracker, 0, nil)

	allocs := testing.AllocsPerRun(200, func() {
		a.step()
	})
	assert.Zero(t, allocs)
}

func TestAggregatorRunPublishes(t *testing.T) {
	r := adc.NewFakeReader()
	r.SetWaveform(0, adc.Constant(logic.PressureCurve.ZeroOffset+50*logic.PressureCurve.VoltsPerUnit))
	arb := bus.NewArbiter(r)
	tracker := status.NewTracker(time.Now(), 4, status.Config{})
	src := &stubSource{output: 3, hz: 7}

	a := NewAggregator(NewPressureSampler(arb, adc.Channel{Index: 0}, logic.PressureCurve), []FrequencySource{src}, tracker, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		snap := tracker.Snapshot()
		return snap.Frequencies[3] == 7 && snap.PressureKPa > 49
	}, time.Second, 2*time.Millisecond)

	a.Stop()
	cancel()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("aggregator did not stop")
	}
}

func TestSleepHonoursContext(t *testing.T) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	assert.True(t, sleep(context.Background(), timer, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, timer, time.Hour))
}
