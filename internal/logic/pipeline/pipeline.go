// Package pipeline runs the fixed-distance command: resolve the request,
// load the physical model, claim the pins, build and configure the motor,
// apply the load and drive one relative move. Every failure is fatal and
// tagged with the stage it came from.
package pipeline

import (
	"context"
	"os"

	"github.com/cjeanneret/stepdrive/internal/debug"
	"github.com/cjeanneret/stepdrive/internal/hw/gpio"
	"github.com/cjeanneret/stepdrive/internal/hw/stepper"
	"github.com/cjeanneret/stepdrive/internal/logic/motion"
	"github.com/cjeanneret/stepdrive/internal/params"
)

// Options are the inputs of one run.
type Options struct {
	Args       []string                    // pin_step, pin_dir, [delta], [omega]
	Lookup     params.LookupFunc           // nil means os.LookupEnv
	OpenDriver func() (gpio.Driver, error) // called only once the request and load are valid
	Build      Builder                     // nil means BuildStepper
	Profile    stepper.Profile
	Electrical stepper.Electrical
	Defaults   params.MotionDefaults
}

// Run executes the pipeline once. The GPIO driver is closed before returning,
// which releases both pins.
func Run(ctx context.Context, opts Options) error {
	debug.Step(1, "Resolve motion request")
	req, err := params.ResolveMotion(opts.Args, opts.Defaults)
	if err != nil {
		return fail(StageUsage, err)
	}
	debug.PrintStruct("Motion request", req)

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	debug.Step(2, "Load physical model")
	load, err := params.LoadPhysical(lookup)
	if err != nil {
		return fail(StageEnvironment, err)
	}
	debug.Info("Parsing data from env done")
	debug.Value("Inertia", load.Inertia)
	debug.Value("Force", load.Force)
	if load.Micro != nil {
		debug.Value("Microsteps", *load.Micro)
	}
	debug.PrintStruct("Physical load", load)

	debug.Step(3, "Acquire GPIO")

	if opts.OpenDriver == nil {
		return fail(StageGPIO, gpio.ErrUnavailable)
	}
	drv, err := opts.OpenDriver()
	if err != nil {
		return fail(StageGPIO, err)
	}
	defer func() {
		if err := drv.Close(); err != nil {
			debug.Error(err)
		}
	}()

	pins, err := gpio.AcquireOutputs(drv, int(req.PinStep), int(req.PinDir))
	if err != nil {
		return fail(StageGPIO, err)
	}
	debug.Info("Accessing GPIO done")

	debug.Step(4, "Construct actuator")
	build := opts.Build
	if build == nil {
		build = BuildStepper
	}
	act, err := build(pins[0], pins[1], opts.Profile)
	if err != nil {
		return fail(StageConstruction, err)
	}

	debug.Step(5, "Set up actuator")
	act.SetConfig(opts.Electrical)
	if err := act.Setup(); err != nil {
		return fail(StageSetup, err)
	}

	debug.Step(6, "Apply load")
	if err := applyLoad(act, load); err != nil {
		return fail(StageLoad, err)
	}

	debug.Step(7, "Drive the move")
	debug.Verbose("Data used: delta=%v omega=%v", req.Delta, req.OmegaMax)
	exec := motion.NewExecutor(act)
	if err := exec.Bind(req.OmegaMax); err != nil {
		return fail(StageMotion, err)
	}

	debug.Info("Starting the movement ...")
	if err := exec.Execute(ctx, req.Delta); err != nil {
		return fail(StageMotion, err)
	}
	debug.Info("Movement done")
	return nil
}

// applyLoad sets inertia, force and microsteps, in that order. Microsteps
// must precede the velocity ceiling because ramp planning depends on the
// step resolution.
func applyLoad(act Actuator, load params.PhysicalLoad) error {
	act.ApplyInertia(load.Inertia)
	if err := act.ApplyGenForce(load.Force); err != nil {
		return err
	}
	if load.Micro != nil {
		if err := act.SetMicrosteps(*load.Micro); err != nil {
			return err
		}
	}
	return nil
}
