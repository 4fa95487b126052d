package gpio

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/cjeanneret/stepdrive/internal/debug"
)

// OutputPin is a claimed pin configured as a digital output.
type OutputPin struct {
	drv Driver
	pin int
}

// Number returns the pin number.
func (p *OutputPin) Number() int { return p.pin }

// Set drives the pin to level.
func (p *OutputPin) Set(level Level) error { return p.drv.WritePin(p.pin, level) }

// High drives the pin high.
func (p *OutputPin) High() error { return p.Set(High) }

// Low drives the pin low.
func (p *OutputPin) Low() error { return p.Set(Low) }

// Release gives the pin back to the driver.
func (p *OutputPin) Release() error { return p.drv.Release(p.pin) }

// AcquireOutputs claims every pin and configures it as an output, in order.
// If any pin fails, the pins claimed so far are released and the error is
// returned; nothing is retried.
func AcquireOutputs(d Driver, pins ...int) ([]*OutputPin, error) {
	out := make([]*OutputPin, 0, len(pins))
	for _, n := range pins {
		if err := d.Claim(n); err != nil {
			return nil, multierr.Append(fmt.Errorf("claim: %w", err), releaseAll(out))
		}
		p := &OutputPin{drv: d, pin: n}
		out = append(out, p)

		if err := d.SetupPin(n, Output); err != nil {
			return nil, multierr.Append(fmt.Errorf("configure pin %d as output: %w", n, err), releaseAll(out))
		}
		debug.Verbose("GPIO pin %d claimed as output", n)
	}
	return out, nil
}

func releaseAll(pins []*OutputPin) error {
	var err error
	for _, p := range pins {
		err = multierr.Append(err, p.Release())
	}
	return err
}
