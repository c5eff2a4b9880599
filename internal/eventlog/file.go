package eventlog

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"

	"github.com/sweeney/pump-controller/internal/logic"
)

// filePattern places one file per hour in a directory per day.
const filePattern = "%Y-%m-%d/%Y-%m-%d_%H-00-00_system.log"

// FileSink appends events and TX lines to hourly files under a base directory.
type FileSink struct {
	w io.WriteCloser
}

// NewFileSink opens the rotating writer under dir. Files older than maxAge
// are removed (0 keeps the rotatelogs default of 7 days). onRotate, if
// non-nil, is called with the new path after each switch.
func NewFileSink(dir string, maxAge time.Duration, onRotate func(path string)) (*FileSink, error) {
	opts := []rotatelogs.Option{
		rotatelogs.WithRotationTime(time.Hour),
		rotatelogs.WithClock(rotatelogs.Local),
	}
	if maxAge > 0 {
		opts = append(opts, rotatelogs.WithMaxAge(maxAge))
	}
	if onRotate != nil {
		opts = append(opts, rotatelogs.WithHandler(rotatelogs.HandlerFunc(func(e rotatelogs.Event) {
			if e.Type() != rotatelogs.FileRotatedEventType {
				return
			}
			if fe, ok := e.(*rotatelogs.FileRotatedEvent); ok && fe.PreviousFile() != "" {
				onRotate(fe.CurrentFile())
			}
		})))
	}

	rl, err := rotatelogs.New(filepath.Join(dir, filePattern), opts...)
	if err != nil {
		return nil, fmt.Errorf("open log files under %s: %w", dir, err)
	}
	return &FileSink{w: rl}, nil
}

// NewWriterSink writes formatted lines to an arbitrary writer.
func NewWriterSink(w io.WriteCloser) *FileSink {
	return &FileSink{w: w}
}

// Emit appends one formatted event line.
func (f *FileSink) Emit(e Event) error {
	_, err := io.WriteString(f.w, FormatEvent(e)+"\n")
	return err
}

// Telemetry appends one TX line.
func (f *FileSink) Telemetry(t logic.Telemetry) error {
	_, err := io.WriteString(f.w, FormatTelemetry(t)+"\n")
	return err
}

// Close closes the current file.
func (f *FileSink) Close() error {
	return f.w.Close()
}
