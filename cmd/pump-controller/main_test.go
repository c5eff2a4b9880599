package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/pump-controller/internal/actuation"
	"github.com/sweeney/pump-controller/internal/adc"
	"github.com/sweeney/pump-controller/internal/bus"
	"github.com/sweeney/pump-controller/internal/config"
	"github.com/sweeney/pump-controller/internal/eventlog"
	"github.com/sweeney/pump-controller/internal/gpio"
	"github.com/sweeney/pump-controller/internal/mqtt"
	"github.com/sweeney/pump-controller/internal/status"
)

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v) = %q, want %q", tt.sig, got, tt.want)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	applyOverrides(cfg, "tcp://10.0.0.1:1883", "off", "", "periph")

	if cfg.MQTT.Broker != "tcp://10.0.0.1:1883" {
		t.Errorf("broker: got %q", cfg.MQTT.Broker)
	}
	if cfg.HTTP.Addr != "" {
		t.Errorf("http: got %q, want disabled", cfg.HTTP.Addr)
	}
	if cfg.Log.Dir != config.Default().Log.Dir {
		t.Errorf("log dir: got %q, want default kept", cfg.Log.Dir)
	}
	if cfg.Actuation.Backend != gpio.BackendPeriph {
		t.Errorf("backend: got %q", cfg.Actuation.Backend)
	}
}

func TestTickerDisabled(t *testing.T) {
	ch, stop := ticker(0)
	defer stop()
	if ch != nil {
		t.Error("zero interval should return a nil channel")
	}

	ch, stop = ticker(time.Millisecond)
	defer stop()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("ticker never fired")
	}
}

func TestStatusConfig(t *testing.T) {
	sc := statusConfig(config.Default())
	if sc.MonitorIntervalUs != 1500 || sc.AggregatorIntervalUs != 2000 {
		t.Errorf("intervals: got %d/%d", sc.MonitorIntervalUs, sc.AggregatorIntervalUs)
	}
	if sc.HeartbeatMs != 900000 || sc.TelemetryMs != 1000 {
		t.Errorf("mqtt intervals: got %d/%d", sc.HeartbeatMs, sc.TelemetryMs)
	}
	if sc.Backend != "gpiocdev" || sc.HTTPAddr != ":8080" {
		t.Errorf("got %+v", sc)
	}
}

func TestPrintReadings(t *testing.T) {
	cfg := config.Default()
	r := adc.NewFakeReader()
	r.SetWaveform(cfg.Pressure.Input, adc.Constant(0.27575))
	r.SetWaveform(cfg.Monitors[0].Input, adc.Constant(1.435))

	var buf bytes.Buffer
	if err := printReadings(&buf, bus.NewArbiter(r), cfg); err != nil {
		t.Fatalf("printReadings: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"pressure 0x48/AIN0", "100.0 kPa", "channel 0 0x48/AIN1", "(ON)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReadingsBusError(t *testing.T) {
	r := adc.NewFakeReader()
	r.SetError(errors.New("nack"))

	var buf bytes.Buffer
	err := printReadings(&buf, bus.NewArbiter(r), config.Default())
	var be *adc.BusError
	if !errors.As(err, &be) {
		t.Fatalf("expected BusError, got %v", err)
	}
}

// --- runLoop tests ---

type loopHarness struct {
	tracker    *status.Tracker
	controller *actuation.Controller
	outputs    []*gpio.FakeOutput
	pub        *mqtt.FakePublisher
	recorder   *eventlog.Recorder

	check     chan time.Time
	telemetry chan time.Time
	heartbeat chan time.Time
	sig       chan os.Signal
	cancel    context.CancelFunc
	errCh     chan error
}

// startRunLoop runs runLoop over a tracker fed by a controller with fake
// outputs. pub may be nil.
func startRunLoop(t *testing.T, pub *mqtt.FakePublisher) *loopHarness {
	t.Helper()
	h := &loopHarness{
		pub:       pub,
		recorder:  eventlog.NewRecorder(),
		check:     make(chan time.Time),
		telemetry: make(chan time.Time),
		heartbeat: make(chan time.Time),
		sig:       make(chan os.Signal, 1),
		errCh:     make(chan error, 1),
	}

	logger := eventlog.New(h.recorder)
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if pub != nil {
		logger.Add(mqtt.NewEventSink(pub))
		publisher, mqttStatus = pub, pub
	}

	outs := make([]gpio.Output, 4)
	for i := range outs {
		o := gpio.NewFakeOutput()
		h.outputs = append(h.outputs, o)
		outs[i] = o
	}
	h.controller = actuation.NewController(outs, 10, 0, logger)
	h.tracker = status.NewTracker(time.Now(), 4, status.Config{Backend: "gpiocdev"})
	h.tracker.SetCommandSource(h.controller)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)

	go func() {
		h.errCh <- runLoop(ctx, h.tracker, publisher, mqttStatus, logger, h.check, h.telemetry, h.heartbeat, h.sig)
	}()
	// The loop takes its connectivity baseline before the first tick.
	h.sync()
	return h
}

// sync returns once the loop has finished handling every earlier tick.
// A check tick with unchanged state emits nothing.
func (h *loopHarness) sync() {
	h.check <- time.Time{}
}

func (h *loopHarness) stop(t *testing.T, s os.Signal) {
	t.Helper()
	h.sig <- s
	select {
	case err := <-h.errCh:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return")
	}
}

func systemEventsNamed(pub *mqtt.FakePublisher, name string) []mqtt.SystemEvent {
	var out []mqtt.SystemEvent
	for _, se := range pub.SystemEvents() {
		if se.Event == name {
			out = append(out, se)
		}
	}
	return out
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	h := startRunLoop(t, pub)
	h.stop(t, syscall.SIGTERM)

	events := pub.SystemEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(events))
	}
	se := events[0]
	if se.Event != "SHUTDOWN" || se.Reason != "SIGTERM" || !se.Retained {
		t.Errorf("got %+v", se)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads()[0], &sj); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("payload: got event=%q reason=%q", sj.Status.Event, sj.Status.Reason)
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	h := startRunLoop(t, pub)
	h.stop(t, syscall.SIGINT)

	shutdowns := systemEventsNamed(pub, "SHUTDOWN")
	if len(shutdowns) != 1 || shutdowns[0].Reason != "SIGINT" {
		t.Errorf("got %+v", shutdowns)
	}
}

func TestRunLoopContextCancelled(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	h := startRunLoop(t, pub)
	h.cancel()

	select {
	case err := <-h.errCh:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return after cancel")
	}

	shutdowns := systemEventsNamed(pub, "SHUTDOWN")
	if len(shutdowns) != 1 || shutdowns[0].Reason != "ERROR" {
		t.Errorf("got %+v", shutdowns)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.SetConnected(true)
	h := startRunLoop(t, pub)

	h.tracker.PublishSensors(64.5, nil)
	h.heartbeat <- time.Time{}
	h.sync()
	h.stop(t, syscall.SIGTERM)

	heartbeats := systemEventsNamed(pub, "HEARTBEAT")
	if len(heartbeats) != 1 {
		t.Fatalf("expected 1 HEARTBEAT event, got %d", len(heartbeats))
	}
	if heartbeats[0].Retained {
		t.Error("heartbeat should not be retained")
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(heartbeats[0].RawPayload, &sj); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if sj.Status.Event != "HEARTBEAT" || sj.Status.PressureKPa != 64.5 {
		t.Errorf("payload: got %+v", sj.Status)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("heartbeat should refresh the MQTT connection flag")
	}
}

func TestRunLoopTelemetry(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	h := startRunLoop(t, pub)

	if err := h.controller.Dispatch(actuation.CommandSet); err != nil {
		t.Fatalf("set: %v", err)
	}
	h.tracker.PublishSensors(55.5, []status.Reading{{Channel: 0, Hz: 9.9}})
	h.telemetry <- time.Time{}
	h.sync()
	h.stop(t, syscall.SIGTERM)

	records := h.recorder.TelemetryRecords()
	if len(records) != 1 {
		t.Fatalf("expected 1 TX record, got %d", len(records))
	}
	tx := records[0]
	if tx.SetPointHz != 10 || tx.PressureKPa != 55.5 {
		t.Errorf("got %+v", tx)
	}
	if len(tx.OutputHz) != 4 || tx.OutputHz[0] != 9.9 {
		t.Errorf("OutputHz: got %v", tx.OutputHz)
	}

	if got := pub.Telemetry(); len(got) != 1 {
		t.Errorf("expected 1 telemetry message over MQTT, got %d", len(got))
	}
}

func TestRunLoopConnectivityTransitions(t *testing.T) {
	h := startRunLoop(t, mqtt.NewFakePublisher())

	// Running with no measured output: channel 0 drops out.
	if err := h.controller.Dispatch(actuation.CommandSet); err != nil {
		t.Fatalf("set: %v", err)
	}
	h.sync()
	h.sync()
	if n := h.recorder.Count(eventlog.LevelWarn, "channel 0 disconnected"); n != 1 {
		t.Fatalf("expected 1 disconnect warning, got %d", n)
	}

	// Output measured again.
	h.tracker.PublishSensors(0, []status.Reading{{Channel: 0, Hz: 10}})
	h.sync()
	h.sync()
	h.stop(t, syscall.SIGTERM)

	if n := h.recorder.Count(eventlog.LevelInfo, "channel 0 reconnected"); n != 1 {
		t.Errorf("expected 1 reconnect event, got %d", n)
	}
	if n := h.recorder.Count(eventlog.LevelWarn, "disconnected"); n != 1 {
		t.Errorf("uninstrumented channels must not report transitions, got %d warnings", n)
	}
}

func TestRunLoopStopRestoresConnectivity(t *testing.T) {
	h := startRunLoop(t, nil)

	h.controller.Dispatch(actuation.CommandSet)
	h.sync()
	h.sync()
	h.controller.Dispatch(actuation.CommandStop)
	h.sync()
	h.sync()
	h.stop(t, syscall.SIGTERM)

	if n := h.recorder.Count(eventlog.LevelInfo, "channel 0 reconnected"); n != 1 {
		t.Errorf("stopping should mark channel 0 connected again, got %d events", n)
	}
}

func TestRunLoopWithoutPublisher(t *testing.T) {
	h := startRunLoop(t, nil)
	h.heartbeat <- time.Time{}
	h.telemetry <- time.Time{}
	h.sync()
	h.stop(t, syscall.SIGTERM)

	if n := len(h.recorder.TelemetryRecords()); n != 1 {
		t.Errorf("TX records still go to the log: got %d", n)
	}
}

func TestRunLoopPublishSystemError(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker down")
	h := startRunLoop(t, pub)

	h.heartbeat <- time.Time{}
	h.sync()
	h.stop(t, syscall.SIGTERM)

	if n := len(pub.SystemEvents()); n != 0 {
		t.Errorf("expected no recorded system events, got %d", n)
	}
}
