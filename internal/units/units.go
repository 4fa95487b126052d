// Package units defines the physical quantities passed between the command
// pipeline and the actuator, with parsers for their textual forms.
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Radians is a signed angular displacement.
type Radians float64

// RadPerSec is an angular velocity.
type RadPerSec float64

// Inertia is a rotational inertia in kg·m².
type Inertia float64

// Force is a generalized resistive force. For a rotary actuator this is a torque in N·m.
type Force float64

// Volts is a supply voltage.
type Volts float64

// Amps is a current.
type Amps float64

// MicroSteps is the number of electrical subdivisions of one full step.
type MicroSteps uint8

// Revolution is one full turn.
const Revolution Radians = 2 * math.Pi

var (
	ErrNotFinite  = errors.New("value must be finite")
	ErrNegative   = errors.New("value must not be negative")
	ErrOutOfRange = errors.New("value out of range")
)

func (r Radians) String() string   { return fmt.Sprintf("%grad", float64(r)) }
func (v RadPerSec) String() string { return fmt.Sprintf("%grad/s", float64(v)) }
func (j Inertia) String() string   { return fmt.Sprintf("%gkg*m^2", float64(j)) }
func (f Force) String() string     { return fmt.Sprintf("%gNm", float64(f)) }
func (v Volts) String() string     { return fmt.Sprintf("%gV", float64(v)) }
func (a Amps) String() string      { return fmt.Sprintf("%gA", float64(a)) }

// Abs returns the magnitude of the force.
func (f Force) Abs() Force { return Force(math.Abs(float64(f))) }

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFinite
	}
	return v, nil
}

// ParseRadians parses a decimal angle. Any finite value, including negative, is accepted.
func ParseRadians(s string) (Radians, error) {
	v, err := parseFinite(s)
	return Radians(v), err
}

// ParseRadPerSec parses a decimal angular velocity. No range check is applied;
// the actuator clamps the ceiling itself.
func ParseRadPerSec(s string) (RadPerSec, error) {
	v, err := parseFinite(s)
	return RadPerSec(v), err
}

// ParseInertia parses a non-negative inertia.
func ParseInertia(s string) (Inertia, error) {
	v, err := parseFinite(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, ErrNegative
	}
	return Inertia(v), nil
}

// ParseForce parses a signed generalized force.
func ParseForce(s string) (Force, error) {
	v, err := parseFinite(s)
	return Force(v), err
}

// ParseMicroSteps parses a subdivision count in 1..255.
func ParseMicroSteps(s string) (MicroSteps, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: microsteps must be at least 1", ErrOutOfRange)
	}
	return MicroSteps(v), nil
}

// ParsePin parses a pin number as an unsigned 8-bit integer.
func ParsePin(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}
