package params

import (
	"fmt"
	"strings"

	"github.com/cjeanneret/stepdrive/internal/units"
)

// Environment keys read by LoadPhysical.
const (
	EnvInertia = "INERTIA"
	EnvForce   = "FORCE"
	EnvMicro   = "MICRO"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// PhysicalLoad is the optional mechanical load model applied to the actuator.
type PhysicalLoad struct {
	Inertia units.Inertia
	Force   units.Force
	Micro   *units.MicroSteps // nil keeps native full-step resolution
}

// EnvParseError reports an environment value that is present but malformed.
type EnvParseError struct {
	Key   string
	Value string
	Err   error
}

func (e *EnvParseError) Error() string {
	return fmt.Sprintf("%s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *EnvParseError) Unwrap() error { return e.Err }

// String prints the load with the microstep count dereferenced.
func (l PhysicalLoad) String() string {
	micro := "full step"
	if l.Micro != nil {
		micro = fmt.Sprintf("%d", *l.Micro)
	}
	return fmt.Sprintf("{Inertia:%v Force:%v Micro:%s}", l.Inertia, l.Force, micro)
}

// LoadPhysical reads INERTIA, FORCE and MICRO. Each one is independent:
// unset gives the neutral default, anything else must parse. A blank
// INERTIA also counts as unset; a blank FORCE or MICRO is malformed.
func LoadPhysical(lookup LookupFunc) (PhysicalLoad, error) {
	var load PhysicalLoad

	inertia, err := lookupOr(blankIsUnset(lookup), EnvInertia, units.ParseInertia, 0)
	if err != nil {
		return PhysicalLoad{}, err
	}
	force, err := lookupOr(lookup, EnvForce, units.ParseForce, 0)
	if err != nil {
		return PhysicalLoad{}, err
	}
	micro, err := lookupOr(lookup, EnvMicro, func(s string) (*units.MicroSteps, error) {
		m, err := units.ParseMicroSteps(s)
		if err != nil {
			return nil, err
		}
		return &m, nil
	}, nil)
	if err != nil {
		return PhysicalLoad{}, err
	}

	load.Inertia = inertia
	load.Force = force
	load.Micro = micro
	return load, nil
}

func lookupOr[T any](lookup LookupFunc, key string, parse func(string) (T, error), def T) (T, error) {
	raw, ok := lookup(key)
	v, err := Or(raw, ok, parse, def)
	if err != nil {
		var zero T
		return zero, &EnvParseError{Key: key, Value: raw, Err: err}
	}
	return v, nil
}

func blankIsUnset(lookup LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		raw, ok := lookup(key)
		if strings.TrimSpace(raw) == "" {
			return "", false
		}
		return raw, ok
	}
}
