package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/stepdrive/internal/config"
	"github.com/cjeanneret/stepdrive/internal/debug"
	"github.com/cjeanneret/stepdrive/internal/hw/gpio"
	"github.com/cjeanneret/stepdrive/internal/logic/pipeline"
	"github.com/cjeanneret/stepdrive/internal/params"
)

const progName = "fixed-dist"

const about = `Moves a stepper motor with a generic PWM controller connected to the pins
'pin_step' and 'pin_dir' by the given distance 'delta' (rad, one revolution by
default) with the maximum speed 'omega' (rad/s, 20 by default). Flags must
precede the positional arguments.

Environment:
  INERTIA  load inertia in kg*m^2 (default 0)
  FORCE    resistive load in Nm (default 0)
  MICRO    microstep count, a power of two (default: full steps)`

// usageError marks command-line mistakes that are not caught by the pipeline
// itself (flag syntax, argument count, debug level).
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

type cliFlags struct {
	configPath string
	mock       bool
	debugLevel int
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.LookupEnv, os.Stderr))
}

// run executes the command and returns the process exit code. Diagnostics
// and log lines both go to stderr.
func run(ctx context.Context, args []string, lookup params.LookupFunc, stderr io.Writer) int {
	debug.SetOutput(stderr)
	cmd := newRootCmd(ctx, lookup)
	cmd.SetArgs(args)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return pipeline.ExitOK
	}
	fmt.Fprintf(stderr, "%s: %v\n", progName, err)

	var perr *pipeline.Error
	switch {
	case errors.As(err, &perr):
		if perr.Stage == pipeline.StageUsage {
			fmt.Fprint(stderr, cmd.UsageString())
		}
		return pipeline.ExitCode(err)
	case errors.As(err, new(*usageError)):
		fmt.Fprint(stderr, cmd.UsageString())
		return pipeline.ExitUsage
	default:
		return pipeline.ExitFatal
	}
}

func newRootCmd(ctx context.Context, lookup params.LookupFunc) *cobra.Command {
	var flags cliFlags
	cmd := &cobra.Command{
		Use:           progName + " [pin_step] [pin_dir] [delta] [omega]",
		Short:         "Drive a stepper motor by a fixed distance",
		Long:          about,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(4)(cmd, args); err != nil {
				return &usageError{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(ctx, cmd, flags, args, lookup)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	f := cmd.Flags()
	// Flags go first so that a negative delta is read as a positional.
	f.SetInterspersed(false)
	f.StringVar(&flags.configPath, "config", "", "path to a YAML config file inside a configs/ directory (default "+config.DefaultPath+" when present)")
	f.BoolVar(&flags.mock, "mock", false, "use the mock GPIO driver")
	f.IntVar(&flags.debugLevel, "debug", 1, "debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace); overrides the config")
	return cmd
}

// execute checks the command line before reading the config file, so a
// usage mistake is reported as such whatever state the config is in.
func execute(ctx context.Context, cmd *cobra.Command, flags cliFlags, args []string, lookup params.LookupFunc) error {
	debugSet := cmd.Flags().Changed("debug")
	if debugSet && (flags.debugLevel < 0 || flags.debugLevel > 4) {
		return &usageError{fmt.Errorf("--debug must be between 0 and 4, got %d", flags.debugLevel)}
	}
	if _, err := params.ResolveMotion(args, params.DefaultMotion); err != nil {
		return &pipeline.Error{Stage: pipeline.StageUsage, Err: err}
	}

	cfg, cfgPath, err := loadConfig(flags.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	level := cfg.Defaults.DebugLevel
	if debugSet {
		level = flags.debugLevel
	}
	debug.Init(level)
	debug.Banner("stepdrive - " + progName)

	profile, err := cfg.MotorProfile()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	mock := flags.mock || cfg.Defaults.MockGPIO

	debug.Section("Configuration")
	debug.Value("Config path", cfgPath)
	debug.Value("Motor profile", profile.Name)
	debug.Value("Voltage", cfg.ElectricalSetup().Voltage)
	debug.Value("Mock GPIO", mock)
	debug.Value("Debug level", debug.Level())

	return pipeline.Run(ctx, pipeline.Options{
		Args:   args,
		Lookup: lookup,
		OpenDriver: func() (gpio.Driver, error) {
			return gpio.NewDriver(mock, cfg.GPIOOptions())
		},
		Profile:    profile,
		Electrical: cfg.ElectricalSetup(),
		Defaults:   cfg.MotionDefaults(),
	})
}

// loadConfig reads path, or the default config file when path is empty and
// that file exists, or falls back to the built-in defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err != nil {
			return config.Default(), "(built-in)", nil
		}
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
