package stepper

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/stepdrive/internal/units"
)

var (
	ErrStall      = errors.New("stall: no torque left to accelerate")
	ErrNoVelocity = errors.New("velocity ceiling is zero")
	ErrFactor     = errors.New("speed factor must be in (0, 1]")
	ErrDistance   = errors.New("distance exceeds the drivable step count")
)

// MaxSteps is the longest move, in steps, that can be planned. Step counts
// up to it are exact in float64.
const MaxSteps = 1 << 53

// maxRampSteps caps the stored acceleration curve. A ramp that has not
// reached the ceiling by then cruises at the speed it got to.
const maxRampSteps = 1 << 16

// Plan is the timing of one relative move. Only the acceleration curve is
// stored; Interval derives every step's period from it.
type Plan struct {
	Steps          int64
	Forward        bool
	Curve          []time.Duration // acceleration intervals, mirrored for deceleration
	CruiseInterval time.Duration
	Peak           units.RadPerSec
	Duration       time.Duration // saturates at the largest time.Duration
	Residual       units.Radians // part of the request smaller than one step, not driven
	AccelSteps     int
}

// Interval returns the full period of step i (0-based).
func (p Plan) Interval(i int64) time.Duration {
	ramp := int64(len(p.Curve))
	switch {
	case i < ramp:
		return p.Curve[i]
	case i >= p.Steps-ramp:
		return p.Curve[p.Steps-1-i]
	default:
		return p.CruiseInterval
	}
}

// accel returns the angular acceleration available at speed omega:
// the torque falls linearly to zero at the electrical limit and the
// resistive load is subtracted.
func (s *Stepper) accel(omega float64) float64 {
	avail := float64(s.torque) * (1 - omega/float64(s.omegaEl))
	return (avail - math.Abs(float64(s.genForce))) / float64(s.Inertia())
}

// plan builds a trapezoidal (or triangular, for short moves) profile over
// discrete steps. Each step's interval comes from v² = v₀² + 2·α·θ with α
// re-evaluated at the step's entry speed; the deceleration half mirrors the
// acceleration half.
func (s *Stepper) plan(delta units.Radians, factor float64) (Plan, error) {
	if math.IsNaN(factor) || factor <= 0 || factor > 1 {
		return Plan{}, fmt.Errorf("%w, got %g", ErrFactor, factor)
	}

	theta := float64(s.StepAngle())
	exact := math.Round(math.Abs(float64(delta)) / theta)
	if !(exact <= MaxSteps) {
		return Plan{}, fmt.Errorf("%w: %v is %g steps, limit %d", ErrDistance, delta, exact, int64(MaxSteps))
	}
	steps := int64(exact)
	p := Plan{
		Steps:   steps,
		Forward: delta >= 0,
	}
	p.Residual = units.Radians(math.Abs(float64(delta)) - float64(steps)*theta)
	if steps == 0 {
		return p, nil
	}

	ceiling := float64(s.VelocityMax()) * factor
	if ceiling <= 0 {
		return Plan{}, ErrNoVelocity
	}
	if s.accel(0) <= 0 {
		return Plan{}, ErrStall
	}

	// Acceleration curve from rest, at most half the move.
	half := steps / 2
	limit := min(max(half, 1), maxRampSteps)
	var curve []float64 // seconds per step
	v := 0.0
	for int64(len(curve)) < limit {
		a := s.accel(v)
		if a <= 0 {
			break // load torque equals motor torque: this is the top speed
		}
		next := math.Min(math.Sqrt(v*v+2*a*theta), ceiling)
		if next <= v {
			break
		}
		curve = append(curve, 2*theta/(v+next))
		v = next
		if v >= ceiling {
			break
		}
	}

	ramp := min(int64(len(curve)), half)
	peak := v
	if ramp < int64(len(curve)) {
		// curve ran one step past the half point (single step moves)
		peak = 0
		for i := int64(0); i < ramp; i++ {
			peak = math.Sqrt(peak*peak + 2*s.accel(peak)*theta)
		}
	}

	cruise := steps - 2*ramp
	cruiseInterval := curve[0]
	if peak > 0 {
		cruiseInterval = theta / peak
	}

	p.Curve = make([]time.Duration, ramp)
	var rampTime time.Duration
	for i := range p.Curve {
		p.Curve[i] = seconds(curve[i])
		rampTime += p.Curve[i]
	}
	p.CruiseInterval = seconds(cruiseInterval)
	p.Duration = 2*rampTime + saturatingMul(p.CruiseInterval, cruise, math.MaxInt64-2*rampTime)
	p.Peak = units.RadPerSec(peak)
	p.AccelSteps = int(ramp)
	return p, nil
}

// saturatingMul returns d*n, or limit when the product would exceed it.
func saturatingMul(d time.Duration, n int64, limit time.Duration) time.Duration {
	if n == 0 || d == 0 {
		return 0
	}
	if int64(d) > int64(limit)/n {
		return limit
	}
	return d * time.Duration(n)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
