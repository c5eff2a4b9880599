//go:build linux

package gpio

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// CdevOutput generates PWM in software on a GPIO character device line.
// A goroutine owns the line and toggles it at the requested phase.
type CdevOutput struct {
	pin  int
	line *gpiocdev.Line

	mu        sync.Mutex
	high, low time.Duration

	update    chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewCdevOutput requests pin on chip as an output driven low.
func NewCdevOutput(chip string, pin int) (*CdevOutput, error) {
	line, err := gpiocdev.RequestLine(chip, pin,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("pump-controller"))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d on %s: %w", pin, chip, err)
	}

	o := &CdevOutput{
		pin:    pin,
		line:   line,
		update: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go o.run()
	return o, nil
}

// SetPWM changes the waveform. The new phase takes effect immediately.
func (o *CdevOutput) SetPWM(freqHz, duty float64) error {
	if freqHz <= 0 && duty > 0 {
		return fmt.Errorf("pin %d: %w", o.pin, errBadFrequency)
	}
	high, low := Phase(freqHz, duty)

	o.mu.Lock()
	o.high, o.low = high, low
	o.mu.Unlock()

	select {
	case o.update <- struct{}{}:
	default:
	}
	return nil
}

func (o *CdevOutput) phase() (time.Duration, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.high, o.low
}

func (o *CdevOutput) run() {
	defer close(o.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	on := false

	for {
		high, low := o.phase()
		var tick <-chan time.Time

		switch {
		case high <= 0:
			o.write(0)
			on = false
		case low <= 0:
			o.write(1)
			on = true
		default:
			d := high
			if on {
				d = low
				o.write(0)
			} else {
				o.write(1)
			}
			on = !on
			timer.Reset(d)
			tick = timer.C
		}

		select {
		case <-o.stop:
			timer.Stop()
			return
		case <-o.update:
			timer.Stop()
		case <-tick:
		}
	}
}

func (o *CdevOutput) write(v int) {
	if err := o.line.SetValue(v); err != nil {
		log.Printf("gpio: pin %d write error: %v", o.pin, err)
	}
}

// Close stops the generator, drives the line low and releases it.
// The line is left as an input with pull-down to match Pi boot defaults.
func (o *CdevOutput) Close() error {
	o.closeOnce.Do(func() {
		close(o.stop)
		<-o.done

		err := o.line.SetValue(0)
		if err != nil {
			err = fmt.Errorf("drive pin %d low: %w", o.pin, err)
		}
		if rerr := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure pin %d: %w", o.pin, rerr))
		}
		if cerr := o.line.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close pin %d: %w", o.pin, cerr))
		}
		o.closeErr = err
	})
	return o.closeErr
}
