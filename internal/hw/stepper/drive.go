package stepper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/stepdrive/internal/debug"
	"github.com/cjeanneret/stepdrive/internal/units"
)

// ErrSignal wraps a GPIO failure that happened while pulsing.
var ErrSignal = errors.New("signal fault")

// Drive is a relative move running in the background. Done is closed when
// the move completes or fails; Err is valid after that.
type Drive struct {
	done     chan struct{}
	err      error
	plan     Plan
	executed int64
}

// Done returns a channel closed when the move ends.
func (d *Drive) Done() <-chan struct{} { return d.done }

// Err returns the move's outcome. It must only be called after Done is closed.
func (d *Drive) Err() error { return d.err }

// Wait blocks until the move ends and returns its outcome.
func (d *Drive) Wait() error {
	<-d.done
	return d.err
}

// Plan returns the timing the move was started with.
func (d *Drive) Plan() Plan { return d.plan }

// Executed returns the number of steps pulsed. It must only be called after Done is closed.
func (d *Drive) Executed() int64 { return d.executed }

func (d *Drive) finish(err error) *Drive {
	d.err = err
	close(d.done)
	return d
}

// DriveRel starts a move of delta radians from the current position at
// factor times the velocity ceiling (1.0 is full speed). Planning errors
// are reported through the returned Drive, never by panicking. The move
// stops between steps if ctx ends.
func (s *Stepper) DriveRel(ctx context.Context, delta units.Radians, factor float64) *Drive {
	d := &Drive{done: make(chan struct{})}
	if !s.ready {
		return d.finish(ErrNotSetup)
	}
	if s.driving {
		return d.finish(ErrBusy)
	}

	plan, err := s.plan(delta, factor)
	if err != nil {
		return d.finish(err)
	}
	d.plan = plan

	if plan.Residual > 0 {
		debug.Verbose("Stepper: %v below one step resolution, not driven", plan.Residual)
	}
	if debug.IsEnabled(debug.LevelVerbose) {
		debug.Verbose("Stepper: plan steps=%d accel_steps=%d peak=%v cruise_interval=%v duration=%v",
			plan.Steps, plan.AccelSteps, plan.Peak, plan.CruiseInterval, plan.Duration)
	}
	if plan.Steps == 0 {
		return d.finish(nil)
	}

	s.driving = true
	go func() {
		err := s.run(ctx, d)
		s.driving = false
		d.finish(err)
	}()
	return d
}

func (s *Stepper) run(ctx context.Context, d *Drive) error {
	direction, sign := "forward", int64(1)
	if !d.plan.Forward {
		direction, sign = "backward", -1
	}
	debug.Move(d.plan.Steps, direction, s.VelocityMax())

	if err := s.sig.SetDirection(d.plan.Forward); err != nil {
		return fmt.Errorf("%w: set direction: %v", ErrSignal, err)
	}

	start := time.Now()
	for i := int64(0); i < d.plan.Steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.sig.Pulse(d.plan.Interval(i)); err != nil {
			return fmt.Errorf("%w: step %d/%d: %v", ErrSignal, i+1, d.plan.Steps, err)
		}
		s.position += sign
		d.executed++
	}

	debug.Live("Stepper: %d steps done in %v", d.executed, time.Since(start))
	return nil
}
