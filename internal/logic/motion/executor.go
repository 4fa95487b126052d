package motion

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/stepdrive/internal/debug"
	"github.com/cjeanneret/stepdrive/internal/units"
)

// FullSpeed is the relative speed factor that drives at the velocity ceiling.
const FullSpeed = 1.0

var (
	// ErrState is returned when an operation is called out of order.
	ErrState = errors.New("operation not allowed in current state")
	// ErrTerminal is returned once the executor has completed or failed.
	ErrTerminal = errors.New("executor already finished")
)

// State is the executor's position in its lifecycle.
type State int

const (
	Idle State = iota
	VelocityBound
	Moving
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case VelocityBound:
		return "velocity-bound"
	case Moving:
		return "moving"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) terminal() bool { return s == Completed || s == Failed }

// Move signals the end of a running relative drive.
type Move interface {
	Done() <-chan struct{}
	Err() error
}

// Actuator is the part of the motor the executor drives.
type Actuator interface {
	SetVelocityMax(omega units.RadPerSec)
	DriveRel(ctx context.Context, delta units.Radians, factor float64) Move
}

// Executor issues exactly one relative move. It sits between the command
// pipeline and the motor: Bind sets the velocity ceiling, Execute drives and
// waits for the motor to report completion.
type Executor struct {
	act   Actuator
	state State
	omega units.RadPerSec
}

func NewExecutor(act Actuator) *Executor {
	return &Executor{act: act}
}

// State returns the current lifecycle state.
func (e *Executor) State() State { return e.state }

// Omega returns the velocity ceiling requested by Bind.
func (e *Executor) Omega() units.RadPerSec { return e.omega }

// Bind sets the velocity ceiling. The actuator clamps the value; nothing is
// validated here.
func (e *Executor) Bind(omega units.RadPerSec) error {
	if e.state.terminal() {
		return ErrTerminal
	}
	if e.state != Idle {
		return fmt.Errorf("%w: bind in %s", ErrState, e.state)
	}
	e.act.SetVelocityMax(omega)
	e.omega = omega
	e.state = VelocityBound
	return nil
}

// Execute drives delta radians at full speed and blocks until the actuator
// reports the end of the move. A fault leaves the executor in Failed.
func (e *Executor) Execute(ctx context.Context, delta units.Radians) error {
	if e.state.terminal() {
		return ErrTerminal
	}
	if e.state != VelocityBound {
		return fmt.Errorf("%w: execute in %s", ErrState, e.state)
	}

	e.state = Moving
	debug.Live("Motion: driving %v at up to %v", delta, e.omega)
	mv := e.act.DriveRel(ctx, delta, FullSpeed)
	<-mv.Done()

	if err := mv.Err(); err != nil {
		e.state = Failed
		return err
	}
	e.state = Completed
	return nil
}
