// Package actuation owns the operator command state and drives the PWM
// outputs from it.
package actuation

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/sweeney/pump-controller/internal/eventlog"
	"github.com/sweeney/pump-controller/internal/gpio"
	"github.com/sweeney/pump-controller/internal/logic"
)

// DefaultShutdownHz is the neutral frequency written during teardown.
const DefaultShutdownHz = 10.0

// ErrShutdown is returned by ApplySet after EmergencyShutdown.
var ErrShutdown = errors.New("outputs released")

// Command is an operator request.
type Command string

const (
	CommandUp   Command = "up"
	CommandDown Command = "down"
	CommandSet  Command = "set"
	CommandStop Command = "stop"
)

// ParseCommand validates a command name.
func ParseCommand(s string) (Command, error) {
	switch c := Command(s); c {
	case CommandUp, CommandDown, CommandSet, CommandStop:
		return c, nil
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// Controller serializes operator commands and applies them to every
// available output. A nil entry in outputs is a channel that failed to
// initialize; it is skipped everywhere.
type Controller struct {
	mu         sync.Mutex
	state      logic.CommandState
	outputs    []gpio.Output
	shutdownHz float64
	shutdown   bool
	logger     *eventlog.Logger
}

// NewController creates a stopped controller with both set-points at
// initial (clamped). A non-positive shutdownHz selects DefaultShutdownHz.
func NewController(outputs []gpio.Output, initial int, shutdownHz float64, logger *eventlog.Logger) *Controller {
	state := logic.NewCommandState()
	state.Pending = logic.ClampSetPoint(initial)
	state.Active = state.Pending
	if shutdownHz <= 0 {
		shutdownHz = DefaultShutdownHz
	}
	return &Controller{
		state:      state,
		outputs:    outputs,
		shutdownHz: shutdownHz,
		logger:     logger,
	}
}

// AdjustPending moves the pending set-point by step within the allowed
// range. It never touches hardware.
func (c *Controller) AdjustPending(step int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	hz := c.state.AdjustPending(step)
	c.logger.Infof("pending set-point %d Hz", hz)
	return hz
}

// ApplySet makes the pending set-point active and starts every output at
// 50% duty. Every available channel is written even if one fails; the
// failures are combined in the returned error.
func (c *Controller) ApplySet() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return ErrShutdown
	}

	hz := c.state.Apply()
	c.logger.Infof("set frequency %d Hz, duty %.0f%%", hz, logic.RunningDuty*100)
	return c.writeAll(float64(hz), logic.RunningDuty)
}

// ApplyStop zeroes duty on every output and keeps the active set-point.
// It is a no-op when already stopped.
func (c *Controller) ApplyStop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown || !c.state.Stop() {
		return nil
	}

	c.logger.Infof("stop (active set-point %d Hz retained)", c.state.Active)
	return c.writeAll(float64(c.state.Active), 0)
}

// writeAll must be called with mu held.
func (c *Controller) writeAll(hz, duty float64) error {
	var err error
	for i, out := range c.outputs {
		if out == nil {
			continue
		}
		if werr := out.SetPWM(hz, duty); werr != nil {
			c.logger.Warnf("channel %d: write %.1f Hz duty %.2f failed: %v", i, hz, duty, werr)
			err = multierr.Append(err, fmt.Errorf("channel %d: %w", i, werr))
		}
	}
	return err
}

// EmergencyShutdown writes the neutral frequency at zero duty to every
// available output and releases them. It runs once; later calls return nil.
func (c *Controller) EmergencyShutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return nil
	}
	c.shutdown = true
	c.state.Running = false

	var err error
	for i, out := range c.outputs {
		if out == nil {
			continue
		}
		if werr := out.SetPWM(c.shutdownHz, 0); werr != nil {
			err = multierr.Append(err, fmt.Errorf("channel %d: %w", i, werr))
		}
		if cerr := out.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("channel %d close: %w", i, cerr))
		}
	}
	c.logger.Infof("outputs released")
	return err
}

// Dispatch runs one operator command.
func (c *Controller) Dispatch(cmd Command) error {
	switch cmd {
	case CommandUp:
		c.AdjustPending(logic.SetPointStep)
		return nil
	case CommandDown:
		c.AdjustPending(-logic.SetPointStep)
		return nil
	case CommandSet:
		return c.ApplySet()
	case CommandStop:
		return c.ApplyStop()
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// State returns a copy of the command state.
func (c *Controller) State() logic.CommandState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Available reports which channels initialized.
func (c *Controller) Available() []bool {
	avail := make([]bool, len(c.outputs))
	for i, out := range c.outputs {
		avail[i] = out != nil
	}
	return avail
}
