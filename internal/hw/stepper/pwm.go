package stepper

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/cjeanneret/stepdrive/internal/hw/gpio"
)

// ErrPinConfig is returned when a signal generator cannot use its pins.
var ErrPinConfig = errors.New("invalid pin configuration")

// Signal generates the electrical step/direction signal for a driver chip.
type Signal interface {
	// SetDirection selects the rotation direction for following pulses.
	SetDirection(forward bool) error
	// Pulse emits one step whose full period is interval.
	Pulse(interval time.Duration) error
	// Idle drives every line low.
	Idle() error
}

// GenericPWM drives a step/direction controller (A4988, DRV8825, TMC in
// STEP/DIR mode) from two output pins.
type GenericPWM struct {
	step  *gpio.OutputPin
	dir   *gpio.OutputPin
	sleep func(time.Duration)
}

// NewGenericPWM binds the step and direction lines.
func NewGenericPWM(step, dir *gpio.OutputPin) (*GenericPWM, error) {
	if step == nil || dir == nil {
		return nil, fmt.Errorf("%w: step and direction pins are required", ErrPinConfig)
	}
	if step.Number() == dir.Number() {
		return nil, fmt.Errorf("%w: step and direction share pin %d", ErrPinConfig, step.Number())
	}
	return &GenericPWM{step: step, dir: dir, sleep: time.Sleep}, nil
}

// Pins returns the step and direction pin numbers.
func (g *GenericPWM) Pins() (step, dir int) {
	return g.step.Number(), g.dir.Number()
}

func (g *GenericPWM) SetDirection(forward bool) error {
	return g.dir.Set(gpio.Level(forward))
}

// Pulse holds the step line HIGH for the first half of interval and LOW for the rest.
func (g *GenericPWM) Pulse(interval time.Duration) error {
	high := interval / 2
	if err := g.step.High(); err != nil {
		return err
	}
	g.sleep(high)
	if err := g.step.Low(); err != nil {
		return err
	}
	g.sleep(interval - high)
	return nil
}

func (g *GenericPWM) Idle() error {
	return multierr.Combine(g.step.Low(), g.dir.Low())
}
