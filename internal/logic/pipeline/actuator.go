package pipeline

import (
	"context"

	"github.com/cjeanneret/stepdrive/internal/hw/gpio"
	"github.com/cjeanneret/stepdrive/internal/hw/stepper"
	"github.com/cjeanneret/stepdrive/internal/logic/motion"
	"github.com/cjeanneret/stepdrive/internal/units"
)

// Actuator is the motor as seen by the pipeline: configured, loaded, then
// handed to the motion executor.
type Actuator interface {
	SetConfig(e stepper.Electrical)
	Setup() error
	ApplyInertia(j units.Inertia)
	ApplyGenForce(f units.Force) error
	SetMicrosteps(n units.MicroSteps) error
	motion.Actuator
}

// Builder binds the step and direction outputs to a motor profile.
type Builder func(step, dir *gpio.OutputPin, p stepper.Profile) (Actuator, error)

// BuildStepper drives the motor through a generic step/direction controller.
func BuildStepper(step, dir *gpio.OutputPin, p stepper.Profile) (Actuator, error) {
	sig, err := stepper.NewGenericPWM(step, dir)
	if err != nil {
		return nil, err
	}
	s, err := stepper.New(sig, p)
	if err != nil {
		return nil, err
	}
	return stepperActuator{s}, nil
}

type stepperActuator struct{ *stepper.Stepper }

func (a stepperActuator) DriveRel(ctx context.Context, delta units.Radians, factor float64) motion.Move {
	return a.Stepper.DriveRel(ctx, delta, factor)
}
