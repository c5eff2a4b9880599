// Command pump-controller drives the pneumatic pump outputs, measures their
// frequency and line pressure, and reports state over MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/pump-controller/internal/actuation"
	"github.com/sweeney/pump-controller/internal/adc"
	"github.com/sweeney/pump-controller/internal/bus"
	"github.com/sweeney/pump-controller/internal/config"
	"github.com/sweeney/pump-controller/internal/eventlog"
	"github.com/sweeney/pump-controller/internal/gpio"
	"github.com/sweeney/pump-controller/internal/logic"
	"github.com/sweeney/pump-controller/internal/mqtt"
	"github.com/sweeney/pump-controller/internal/sensor"
	"github.com/sweeney/pump-controller/internal/status"
	"github.com/sweeney/pump-controller/internal/web"
)

// statusCheckInterval is how often the run loop looks for connectivity
// transitions.
const statusCheckInterval = 100 * time.Millisecond

func main() {
	configPath := flag.String("config", config.DefaultPath, "YAML configuration file")
	broker := flag.String("broker", "", "MQTT broker address (overrides config, \"off\" disables)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config, \"off\" disables)")
	logDir := flag.String("log-dir", "", "Event log directory (overrides config, \"off\" disables)")
	backend := flag.String("backend", "", "PWM backend: gpiocdev or periph (overrides config)")
	printState := flag.Bool("print-state", false, "Print current sensor readings and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyOverrides(cfg, *broker, *httpAddr, *logDir, *backend)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: invalid config: %v", err)
	}

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyOverrides copies non-empty flag values into cfg. "off" clears the
// optional addresses.
func applyOverrides(cfg *config.Config, broker, httpAddr, logDir, backend string) {
	override := func(dst *string, v string) {
		switch v {
		case "":
		case "off":
			*dst = ""
		default:
			*dst = v
		}
	}
	override(&cfg.MQTT.Broker, broker)
	override(&cfg.HTTP.Addr, httpAddr)
	override(&cfg.Log.Dir, logDir)
	if backend != "" {
		cfg.Actuation.Backend = backend
	}
}

func run(cfg *config.Config, printState bool) error {
	if err := setPriority(cfg.Process.Nice); err != nil {
		log.Printf("priority: cannot set nice %d: %v", cfg.Process.Nice, err)
	}

	// Initialize the analog bus
	converter, err := adc.NewADS1115(adc.ADS1115Config{
		Bus:       cfg.Bus.Name,
		Address:   cfg.Bus.Address,
		FullScale: cfg.Bus.FullScale,
		DataRate:  cfg.Bus.DataRate,
	})
	if err != nil {
		return fmt.Errorf("init adc: %w", err)
	}
	arbiter := bus.NewArbiter(converter)

	// Print state mode
	if printState {
		defer arbiter.Close()
		return printReadings(os.Stdout, arbiter, cfg)
	}

	logger := eventlog.New(eventlog.NewStdSink(log.Default()))
	if cfg.Log.Dir != "" {
		fileSink, err := eventlog.NewFileSink(cfg.Log.Dir, cfg.Log.MaxAge, func(path string) {
			logger.Infof("switched to new log file %s", path)
		})
		if err != nil {
			arbiter.Close()
			return err
		}
		defer fileSink.Close()
		logger.Add(fileSink)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), len(cfg.Actuation.Pins), statusConfig(cfg))
	tracker.SetStatsSource(arbiter)

	// Initialize MQTT
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		client, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			Prefix:             cfg.MQTT.Prefix,
			BufferSize:         cfg.MQTT.BufferSize,
			OnConnectionChange: tracker.SetMQTTConnected,
		})
		if err != nil {
			arbiter.Close()
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer client.Close()
		publisher, mqttStatus = client, client
		logger.Add(mqtt.NewEventSink(client))
		tracker.SetMQTTConnected(client.IsConnected())
	}
	defer arbiter.Close()

	// Initialize outputs; a failed pin only takes its own channel out.
	opener, err := gpio.NewOpener(cfg.Actuation.Backend, cfg.Actuation.Chip)
	if err != nil {
		return err
	}
	outputs, initErrs := gpio.OpenAll(cfg.Actuation.Pins, opener)
	for _, err := range initErrs {
		logger.Warnf("%v", err)
	}
	controller := actuation.NewController(outputs, cfg.Actuation.InitialHz, cfg.Actuation.ShutdownHz, logger)
	defer func() {
		if err := controller.EmergencyShutdown(); err != nil {
			log.Printf("actuation: shutdown: %v", err)
		}
	}()

	tracker.SetCommandSource(controller)

	// Sampling loops
	monitors := make([]*sensor.FrequencyMonitor, len(cfg.Monitors))
	sources := make([]sensor.FrequencySource, len(cfg.Monitors))
	for i, m := range cfg.Monitors {
		monitors[i] = sensor.NewFrequencyMonitor(sensor.MonitorConfig{
			Output:      m.Output,
			Channel:     adc.Channel{Address: cfg.Bus.Address, Index: m.Input},
			Curve:       m.Curve(),
			Threshold:   m.Threshold,
			Interval:    cfg.Sampling.MonitorInterval,
			Backoff:     cfg.Sampling.FailureBackoff,
			IdleTimeout: cfg.Sampling.IdleTimeout,
		}, arbiter, logger)
		sources[i] = monitors[i]
	}
	pressure := sensor.NewPressureSampler(arbiter, adc.Channel{Address: cfg.Bus.Address, Index: cfg.Pressure.Input}, cfg.PressureCurve())
	aggregator := sensor.NewAggregator(pressure, sources, tracker, cfg.Sampling.AggregatorInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range monitors {
		g.Go(func() error { return m.Run(gctx) })
	}
	g.Go(func() error { return aggregator.Run(gctx) })

	// Start HTTP status server
	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		srv = web.New(cfg.HTTP.Addr, tracker, controller, cfg.HTTP.LiveInterval)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	// Loops must be stopped before the outputs and the bus are released.
	stop := func() {
		for _, m := range monitors {
			m.Stop()
		}
		aggregator.Stop()
		cancel()
	}
	defer stop()

	// Remote commands
	if sub, ok := publisher.(mqtt.CommandSubscriber); ok {
		err := sub.SubscribeCommands(func(name string) {
			cmd, err := actuation.ParseCommand(name)
			if err != nil {
				logger.Warnf("mqtt command rejected: %v", err)
				return
			}
			if err := controller.Dispatch(cmd); err != nil {
				log.Printf("mqtt: command %s: %v", cmd, err)
			}
		})
		if err != nil {
			log.Printf("mqtt: subscribe commands: %v", err)
		}
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	publishSystem(publisher, mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})

	logger.Infof("started: backend=%s channels=%d monitors=%d set-point=%d Hz",
		cfg.Actuation.Backend, len(cfg.Actuation.Pins), len(monitors), cfg.Actuation.InitialHz)

	check := time.NewTicker(statusCheckInterval)
	defer check.Stop()
	telemetry, stopTelemetry := ticker(cfg.MQTT.TelemetryInterval)
	defer stopTelemetry()
	heartbeat, stopHeartbeat := ticker(cfg.MQTT.Heartbeat)
	defer stopHeartbeat()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	loopErr := runLoop(gctx, tracker, publisher, mqttStatus, logger, check.C, telemetry, heartbeat, sigCh)

	stop()
	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		cancelShutdown()
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return loopErr
}

// ticker returns the channel of a ticker running at d and its stop func.
// A zero d returns a nil channel, which never fires.
func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		MonitorIntervalUs:    cfg.Sampling.MonitorInterval.Microseconds(),
		AggregatorIntervalUs: cfg.Sampling.AggregatorInterval.Microseconds(),
		HeartbeatMs:          cfg.MQTT.Heartbeat.Milliseconds(),
		TelemetryMs:          cfg.MQTT.TelemetryInterval.Milliseconds(),
		Broker:               cfg.MQTT.Broker,
		HTTPAddr:             cfg.HTTP.Addr,
		Backend:              cfg.Actuation.Backend,
	}
}

// runLoop reports daemon state until a signal arrives or ctx ends.
// check drives connectivity transition events, telemetry the TX records and
// heartbeat the HEARTBEAT system event. publisher and mqttStatus may be nil.
func runLoop(ctx context.Context, tracker *status.Tracker, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, logger *eventlog.Logger, check, telemetry, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	connected := tracker.Snapshot().Connected

	refresh := func() status.Snapshot {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		return tracker.Snapshot()
	}

	shutdown := func(reason string) {
		snap := refresh()
		publishSystem(publisher, mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "SHUTDOWN",
			Reason:     reason,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
		})
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			shutdown(signalName(s))
			return nil

		case <-ctx.Done():
			log.Printf("worker stopped, shutting down")
			shutdown("ERROR")
			return nil

		case <-check:
			snap := tracker.Snapshot()
			for _, tr := range logic.ConnectivityChanges(connected, snap.Connected) {
				if tr.Connected {
					logger.Infof("channel %d reconnected", tr.Channel)
				} else {
					logger.Warnf("channel %d disconnected: measured %.1f Hz while running at %d Hz",
						tr.Channel, snap.Frequencies[tr.Channel], snap.Command.Active)
				}
			}
			connected = snap.Connected

		case <-telemetry:
			logger.Telemetry(tracker.Snapshot().Telemetry())

		case <-heartbeat:
			snap := refresh()
			log.Printf("heartbeat: uptime=%v set-point=%d running=%v pressure=%.1f",
				snap.Uptime().Truncate(time.Second), snap.Command.Active, snap.Command.Running, snap.PressureKPa)
			publishSystem(publisher, mqtt.SystemEvent{
				Timestamp:  snap.Now,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			})
		}
	}
}

func publishSystem(publisher mqtt.Publisher, event mqtt.SystemEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish %s event: %v", event.Event, err)
		return
	}
	log.Printf("published %s event", event.Event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// printReadings reads the pressure input and every monitor input once.
func printReadings(w io.Writer, r sensor.BusReader, cfg *config.Config) error {
	ch := adc.Channel{Address: cfg.Bus.Address, Index: cfg.Pressure.Input}
	v, err := r.Read(ch)
	if err != nil {
		return fmt.Errorf("read pressure: %w", err)
	}
	fmt.Fprintf(w, "pressure %s: %.4f V, %.1f kPa\n", ch, v, cfg.PressureCurve().Pressure(v))

	for _, m := range cfg.Monitors {
		ch := adc.Channel{Address: cfg.Bus.Address, Index: m.Input}
		v, err := r.Read(ch)
		if err != nil {
			return fmt.Errorf("read channel %d monitor: %w", m.Output, err)
		}
		pc := m.Curve().Convert(v)
		state := "OFF"
		if pc > m.Threshold {
			state = "ON"
		}
		fmt.Fprintf(w, "channel %d %s: %.4f V, pseudo-current %.3f (%s)\n", m.Output, ch, v, pc, state)
	}
	return nil
}
