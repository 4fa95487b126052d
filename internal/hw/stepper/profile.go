package stepper

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cjeanneret/stepdrive/internal/units"
)

// ErrProfile is returned for unknown or physically impossible motor profiles.
var ErrProfile = errors.New("invalid motor profile")

// Profile holds the electrical and mechanical constants of a motor.
type Profile struct {
	Name         string
	RatedCurrent units.Amps    // phase current at which StallTorque is reached
	Resistance   float64       // phase resistance, ohm
	Inductance   float64       // phase inductance, henry
	StallTorque  units.Force   // holding torque at rated current, N·m
	RotorInertia units.Inertia // kg·m²
	StepsPerRev  int           // full steps per revolution
}

// MOT17HE15_1504S is a common NEMA 17 motor (1.8°, 1.5 A, 0.42 N·m).
var MOT17HE15_1504S = Profile{
	Name:         "MOT_17HE15_1504S",
	RatedCurrent: 1.5,
	Resistance:   2.3,
	Inductance:   0.004,
	StallTorque:  0.42,
	RotorInertia: 0.000_005_7,
	StepsPerRev:  200,
}

var catalogue = map[string]Profile{
	MOT17HE15_1504S.Name: MOT17HE15_1504S,
}

// LookupProfile returns a built-in profile by name.
func LookupProfile(name string) (Profile, error) {
	p, ok := catalogue[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: unknown profile %q (known: %v)", ErrProfile, name, ProfileNames())
	}
	return p, nil
}

// ProfileNames lists the built-in profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(catalogue))
	for n := range catalogue {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every constant is finite and positive.
func (p Profile) Validate() error {
	checks := []struct {
		name string
		v    float64
	}{
		{"rated_current", float64(p.RatedCurrent)},
		{"resistance", p.Resistance},
		{"inductance", p.Inductance},
		{"stall_torque", float64(p.StallTorque)},
		{"rotor_inertia", float64(p.RotorInertia)},
		{"steps_per_rev", float64(p.StepsPerRev)},
	}
	for _, c := range checks {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) || c.v <= 0 {
			return fmt.Errorf("%w %q: %s must be > 0, got %g", ErrProfile, p.Name, c.name, c.v)
		}
	}
	return nil
}
