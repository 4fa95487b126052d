// Package params turns raw command inputs (positional arguments and
// environment variables) into the immutable values consumed by the pipeline.
package params

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cjeanneret/stepdrive/internal/units"
)

var (
	// ErrMissingArgument is returned when a required positional argument is absent.
	ErrMissingArgument = errors.New("missing argument")
	// ErrInvalidArgument is returned when a positional argument cannot be parsed.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Or resolves an optional raw value. When ok is false, def is returned
// untouched; a present value must parse, even when blank.
func Or[T any](raw string, ok bool, parse func(string) (T, error), def T) (T, error) {
	if !ok {
		return def, nil
	}
	return parse(raw)
}

// MotionRequest is the fully resolved description of the single move.
type MotionRequest struct {
	PinStep  uint8
	PinDir   uint8
	Delta    units.Radians
	OmegaMax units.RadPerSec
}

// MotionDefaults holds the values used for omitted optional arguments.
type MotionDefaults struct {
	Delta    units.Radians
	OmegaMax units.RadPerSec
}

// DefaultMotion is one full revolution at 20 rad/s.
var DefaultMotion = MotionDefaults{
	Delta:    units.Revolution,
	OmegaMax: 20.0,
}

// ResolveMotion builds a MotionRequest from positional arguments in the order
// pin_step, pin_dir, delta, omega. Delta and omega are passed through without
// range checks.
func ResolveMotion(args []string, defaults MotionDefaults) (MotionRequest, error) {
	arg := func(i int) (string, bool) {
		if i < len(args) {
			return args[i], true
		}
		return "", false
	}

	var req MotionRequest
	var err error

	if req.PinStep, err = requirePin(arg(0)); err != nil {
		return MotionRequest{}, fmt.Errorf("pin_step: %w", err)
	}
	if req.PinDir, err = requirePin(arg(1)); err != nil {
		return MotionRequest{}, fmt.Errorf("pin_dir: %w", err)
	}

	raw, ok := arg(2)
	if req.Delta, err = Or(raw, ok, units.ParseRadians, defaults.Delta); err != nil {
		return MotionRequest{}, fmt.Errorf("delta %q: %w: %v", raw, ErrInvalidArgument, err)
	}
	raw, ok = arg(3)
	if req.OmegaMax, err = Or(raw, ok, units.ParseRadPerSec, defaults.OmegaMax); err != nil {
		return MotionRequest{}, fmt.Errorf("omega %q: %w: %v", raw, ErrInvalidArgument, err)
	}

	return req, nil
}

func requirePin(raw string, ok bool) (uint8, error) {
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, ErrMissingArgument
	}
	pin, err := units.ParsePin(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a pin number (0-255)", ErrInvalidArgument, raw)
	}
	return pin, nil
}
