// Package eventlog fans leveled operator events and TX telemetry records out
// to the configured sinks (stderr, hourly log files, MQTT).
package eventlog

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/pump-controller/internal/logic"
)

// Level is the severity of an event.
type Level string

const (
	LevelInfo Level = "INFO"
	LevelWarn Level = "WARN"
)

// Event is one leveled text event.
type Event struct {
	Time    time.Time
	Level   Level
	Message string
}

// Sink receives events. A failing sink must not affect the others.
type Sink interface {
	Emit(e Event) error
}

// TelemetrySink is implemented by sinks that also record TX lines.
type TelemetrySink interface {
	Telemetry(t logic.Telemetry) error
}

// Logger dispatches events to its sinks. A nil *Logger discards everything.
type Logger struct {
	mu    sync.RWMutex
	sinks []Sink
	now   func() time.Time
}

// New creates a Logger writing to sinks.
func New(sinks ...Sink) *Logger {
	return &Logger{sinks: sinks, now: time.Now}
}

// Add registers another sink.
func (l *Logger) Add(s Sink) {
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// Infof emits an INFO event.
func (l *Logger) Infof(format string, args ...any) {
	l.emit(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf emits a WARN event.
func (l *Logger) Warnf(format string, args ...any) {
	l.emit(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) emit(level Level, msg string) {
	if l == nil {
		return
	}
	e := Event{Time: l.now(), Level: level, Message: msg}

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.sinks {
		if err := s.Emit(e); err != nil {
			log.Printf("eventlog: sink error: %v", err)
		}
	}
}

// Telemetry writes a TX record to every sink that accepts one.
func (l *Logger) Telemetry(t logic.Telemetry) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.sinks {
		ts, ok := s.(TelemetrySink)
		if !ok {
			continue
		}
		if err := ts.Telemetry(t); err != nil {
			log.Printf("eventlog: telemetry sink error: %v", err)
		}
	}
}

// FormatEvent renders e as "[2006-01-02 15:04:05.000] [LEVEL] message".
func FormatEvent(e Event) string {
	return fmt.Sprintf("[%s] [%s] %s", e.Time.Format("2006-01-02 15:04:05.000"), e.Level, e.Message)
}

// FormatTelemetry renders a TX line:
// "20060102 15:04:05, <set-point>, <pressure>, <out1>, <out2>, ...".
func FormatTelemetry(t logic.Telemetry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %d, %.1f", t.Timestamp.Format("20060102 15:04:05"), t.SetPointHz, t.PressureKPa)
	for _, hz := range t.OutputHz {
		fmt.Fprintf(&b, ", %.1f", hz)
	}
	return b.String()
}

// StdSink writes events through a standard library logger.
type StdSink struct {
	logger *log.Logger
}

// NewStdSink creates a StdSink; a nil logger uses log.Default().
func NewStdSink(logger *log.Logger) *StdSink {
	if logger == nil {
		logger = log.Default()
	}
	return &StdSink{logger: logger}
}

// Emit prints "LEVEL message".
func (s *StdSink) Emit(e Event) error {
	s.logger.Printf("%s %s", e.Level, e.Message)
	return nil
}
