package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
	"go.uber.org/multierr"

	"github.com/cjeanneret/stepdrive/internal/debug"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	claims *claims
	pins   map[int]rpio.Pin
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver(opts Options) (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("%w: %v (are you running on a Raspberry Pi?)", ErrUnavailable, err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		claims: newClaims(opts),
		pins:   make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) Claim(pin int) error {
	debug.GPIO("Claim", pin, nil)
	return r.claims.claim(pin)
}

func (r *RPiDriver) Release(pin int) error {
	debug.GPIO("Release", pin, nil)
	if p, ok := r.pins[pin]; ok {
		p.Input()
		delete(r.pins, pin)
	}
	return r.claims.release(pin)
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	if err := r.claims.check(pin); err != nil {
		return err
	}

	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		return fmt.Errorf("write pin %d: %w", pin, ErrNotClaimed)
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, ok := r.pins[pin]
	if !ok {
		return Low, fmt.Errorf("read pin %d: %w", pin, ErrNotClaimed)
	}
	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	// Reset all pins to input (safe state) and drop the claims.
	var err error
	for _, pin := range r.claims.pins() {
		debug.Verbose("Resetting pin %d to input", pin)
		err = multierr.Append(err, r.Release(pin))
	}
	return multierr.Append(err, rpio.Close())
}
