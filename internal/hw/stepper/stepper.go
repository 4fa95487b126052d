package stepper

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/stepdrive/internal/debug"
	"github.com/cjeanneret/stepdrive/internal/units"
)

var (
	ErrNotConfigured = errors.New("electrical configuration not set")
	ErrConfig        = errors.New("invalid electrical configuration")
	ErrNotSetup      = errors.New("stepper not set up")
	ErrOverload      = errors.New("generalized force exceeds available torque")
	ErrMicrosteps    = errors.New("unsupported microstep count")
	ErrBusy          = errors.New("stepper is already driving")
)

// MaxMicroSteps is the finest subdivision accepted by SetMicrosteps.
const MaxMicroSteps units.MicroSteps = 128

// Electrical is the supply configuration of the driver.
type Electrical struct {
	Voltage         units.Volts
	OverloadCurrent *units.Amps // nil means no ceiling below the rated current
}

// Stepper is a step/direction stepper motor with a simple load model used
// for ramp planning. It is owned by a single goroutine; only a running
// Drive touches it concurrently, and SetMicrosteps refuses while one runs.
type Stepper struct {
	sig  Signal
	prof Profile
	elec Electrical

	configured bool
	ready      bool
	driving    bool

	loadInertia units.Inertia
	genForce    units.Force
	micro       units.MicroSteps
	omegaMax    units.RadPerSec

	// derived by Setup
	torque  units.Force     // usable stall torque after current derating
	omegaEl units.RadPerSec // speed at which the coil current can no longer build up

	position int64 // in microsteps
}

// New binds a signal generator to a motor profile.
func New(sig Signal, p Profile) (*Stepper, error) {
	if sig == nil {
		return nil, fmt.Errorf("%w: no signal generator", ErrPinConfig)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Stepper{sig: sig, prof: p, micro: 1}, nil
}

// Profile returns the motor constants.
func (s *Stepper) Profile() Profile { return s.prof }

// SetConfig stores the electrical configuration; it takes effect on Setup.
func (s *Stepper) SetConfig(e Electrical) {
	s.elec = e
	s.configured = true
	s.ready = false
}

// Config returns the electrical configuration.
func (s *Stepper) Config() Electrical { return s.elec }

// Setup validates the electrical configuration, derives the torque and
// speed limits and puts both signal lines in their idle state.
func (s *Stepper) Setup() error {
	if !s.configured {
		return ErrNotConfigured
	}
	v := float64(s.elec.Voltage)
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w: voltage must be > 0, got %v", ErrConfig, s.elec.Voltage)
	}

	current := s.prof.RatedCurrent
	s.torque = s.prof.StallTorque
	if oc := s.elec.OverloadCurrent; oc != nil {
		if math.IsNaN(float64(*oc)) || *oc <= 0 {
			return fmt.Errorf("%w: overload current must be > 0, got %v", ErrConfig, *oc)
		}
		if *oc < current {
			s.torque = units.Force(float64(s.prof.StallTorque) * float64(*oc) / float64(current))
			current = *oc
		}
	}

	// One full step needs the phase current to rise and fall: 2·L·I/V.
	stepTime := 2 * s.prof.Inductance * float64(current) / v
	s.omegaEl = units.RadPerSec(2 * math.Pi / (float64(s.prof.StepsPerRev) * stepTime))

	if err := s.sig.Idle(); err != nil {
		return fmt.Errorf("idle signal lines: %w", err)
	}
	s.ready = true

	debug.Verbose("Stepper setup: profile=%s voltage=%v torque=%v omega_el=%v",
		s.prof.Name, s.elec.Voltage, s.torque, s.omegaEl)
	return nil
}

// ApplyInertia sets the load inertia added to the rotor inertia.
func (s *Stepper) ApplyInertia(j units.Inertia) {
	s.loadInertia = j
}

// Inertia returns the total inertia (rotor + load).
func (s *Stepper) Inertia() units.Inertia {
	return s.prof.RotorInertia + s.loadInertia
}

// ApplyGenForce sets the resistive load. It fails when the load would leave
// no torque to start the motor.
func (s *Stepper) ApplyGenForce(f units.Force) error {
	if !s.ready {
		return ErrNotSetup
	}
	if math.IsNaN(float64(f)) || f.Abs() >= s.torque {
		return fmt.Errorf("%w: |%v| >= %v", ErrOverload, f, s.torque)
	}
	s.genForce = f
	return nil
}

// GenForce returns the applied resistive load.
func (s *Stepper) GenForce() units.Force { return s.genForce }

// SetMicrosteps changes the step resolution. n must be a power of two up to
// MaxMicroSteps. The current position is kept.
func (s *Stepper) SetMicrosteps(n units.MicroSteps) error {
	if s.driving {
		return ErrBusy
	}
	if n == 0 || n > MaxMicroSteps || n&(n-1) != 0 {
		return fmt.Errorf("%w: %d (power of two, 1-%d)", ErrMicrosteps, n, MaxMicroSteps)
	}
	s.position = s.position * int64(n) / int64(s.micro)
	s.micro = n
	return nil
}

// Microsteps returns the current step resolution.
func (s *Stepper) Microsteps() units.MicroSteps { return s.micro }

// SetVelocityMax sets the velocity ceiling. Values are clamped to
// [0, VelocityLimit] once the stepper is set up.
func (s *Stepper) SetVelocityMax(omega units.RadPerSec) {
	if math.IsNaN(float64(omega)) || omega < 0 {
		omega = 0
	}
	s.omegaMax = omega
}

// VelocityMax returns the effective ceiling.
func (s *Stepper) VelocityMax() units.RadPerSec {
	if s.ready && s.omegaMax > s.omegaEl {
		return s.omegaEl
	}
	return s.omegaMax
}

// VelocityLimit returns the electrical speed limit derived by Setup.
func (s *Stepper) VelocityLimit() units.RadPerSec { return s.omegaEl }

// StepAngle returns the angle of one (micro)step.
func (s *Stepper) StepAngle() units.Radians {
	return units.Radians(2 * math.Pi / float64(s.prof.StepsPerRev*int(s.micro)))
}

// Position returns the absolute position since construction.
func (s *Stepper) Position() units.Radians {
	return units.Radians(float64(s.position) * float64(s.StepAngle()))
}
