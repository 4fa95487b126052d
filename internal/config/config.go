package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/stepdrive/internal/hw/gpio"
	"github.com/cjeanneret/stepdrive/internal/hw/stepper"
	"github.com/cjeanneret/stepdrive/internal/params"
	"github.com/cjeanneret/stepdrive/internal/units"
)

// MaxConfigFileBytes bounds the size of a config file read by Load.
const MaxConfigFileBytes = 64 * 1024

// DefaultPath is the config file used when none is given.
var DefaultPath = filepath.Join("configs", "default.yaml")

// ProfileConfig declares a custom motor profile.
type ProfileConfig struct {
	RatedCurrentA    float64 `yaml:"rated_current_a"`
	ResistanceOhm    float64 `yaml:"resistance_ohm"`
	InductanceH      float64 `yaml:"inductance_h"`
	StallTorqueNm    float64 `yaml:"stall_torque_nm"`
	RotorInertiaKgM2 float64 `yaml:"rotor_inertia_kgm2"`
	StepsPerRev      int     `yaml:"steps_per_rev"`
}

// MotorConfig selects the motor profile. Custom profiles shadow built-in ones.
type MotorConfig struct {
	Profile  string                   `yaml:"profile"`
	Profiles map[string]ProfileConfig `yaml:"profiles,omitempty"`
}

// ElectricalConfig is the driver supply.
type ElectricalConfig struct {
	VoltageV         float64  `yaml:"voltage_v"`
	OverloadCurrentA *float64 `yaml:"overload_current_a,omitempty"` // nil = no ceiling
}

// GPIOConfig describes the host's pin space.
type GPIOConfig struct {
	MaxPin  int    `yaml:"max_pin"`  // highest usable BCM pin
	LockDir string `yaml:"lock_dir"` // per-pin lock files shared between processes; empty = in-process only
}

// DefaultsConfig holds values used when the command line omits them.
type DefaultsConfig struct {
	DeltaRad   float64 `yaml:"delta_rad"`   // move distance when not given
	OmegaRadS  float64 `yaml:"omega_rad_s"` // velocity ceiling when not given
	DebugLevel int     `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool    `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Motor      MotorConfig      `yaml:"motor"`
	Electrical ElectricalConfig `yaml:"electrical"`
	GPIO       GPIOConfig       `yaml:"gpio"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// Default returns the configuration used without a config file: the
// MOT_17HE15_1504S motor on a 12 V supply, one turn at 20 rad/s.
func Default() *Config {
	return &Config{
		Motor:      MotorConfig{Profile: stepper.MOT17HE15_1504S.Name},
		Electrical: ElectricalConfig{VoltageV: 12},
		GPIO:       GPIOConfig{MaxPin: gpio.DefaultMaxPin},
		Defaults: DefaultsConfig{
			DeltaRad:   float64(params.DefaultMotion.Delta),
			OmegaRadS:  float64(params.DefaultMotion.OmegaMax),
			DebugLevel: 1,
		},
	}
}

// ValidateConfigPath accepts only .yaml files directly inside a configs/
// directory, with no ".." element.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and resolves the motor profile.
func (c *Config) Validate() error {
	if !finite(c.Electrical.VoltageV) || c.Electrical.VoltageV <= 0 {
		return fmt.Errorf("electrical.voltage_v must be > 0, got %v", c.Electrical.VoltageV)
	}
	if oc := c.Electrical.OverloadCurrentA; oc != nil && (!finite(*oc) || *oc <= 0) {
		return fmt.Errorf("electrical.overload_current_a must be > 0, got %v", *oc)
	}
	if c.GPIO.MaxPin < 0 || c.GPIO.MaxPin > math.MaxUint8 {
		return fmt.Errorf("gpio.max_pin must be between 0 and 255, got %d", c.GPIO.MaxPin)
	}
	if !finite(c.Defaults.DeltaRad) {
		return fmt.Errorf("defaults.delta_rad must be finite, got %v", c.Defaults.DeltaRad)
	}
	if !finite(c.Defaults.OmegaRadS) || c.Defaults.OmegaRadS < 0 {
		return fmt.Errorf("defaults.omega_rad_s must be >= 0, got %v", c.Defaults.OmegaRadS)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if _, err := c.MotorProfile(); err != nil {
		return err
	}
	return nil
}

// MotorProfile resolves motor.profile against the custom profiles first,
// then the built-in catalogue.
func (c *Config) MotorProfile() (stepper.Profile, error) {
	name := c.Motor.Profile
	if name == "" {
		return stepper.Profile{}, errors.New("motor.profile is required")
	}
	if pc, ok := c.Motor.Profiles[name]; ok {
		p := stepper.Profile{
			Name:         name,
			RatedCurrent: units.Amps(pc.RatedCurrentA),
			Resistance:   pc.ResistanceOhm,
			Inductance:   pc.InductanceH,
			StallTorque:  units.Force(pc.StallTorqueNm),
			RotorInertia: units.Inertia(pc.RotorInertiaKgM2),
			StepsPerRev:  pc.StepsPerRev,
		}
		if err := p.Validate(); err != nil {
			return stepper.Profile{}, fmt.Errorf("motor.profiles.%s: %w", name, err)
		}
		return p, nil
	}
	p, err := stepper.LookupProfile(name)
	if err != nil {
		return stepper.Profile{}, fmt.Errorf("motor.profile: %w", err)
	}
	return p, nil
}

// ProfileNames lists built-in and custom profile names, sorted.
func (c *Config) ProfileNames() []string {
	names := stepper.ProfileNames()
	for name := range c.Motor.Profiles {
		if _, err := stepper.LookupProfile(name); err != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ElectricalSetup returns the supply configuration handed to the motor.
func (c *Config) ElectricalSetup() stepper.Electrical {
	e := stepper.Electrical{Voltage: units.Volts(c.Electrical.VoltageV)}
	if oc := c.Electrical.OverloadCurrentA; oc != nil {
		a := units.Amps(*oc)
		e.OverloadCurrent = &a
	}
	return e
}

// GPIOOptions returns the driver options.
func (c *Config) GPIOOptions() gpio.Options {
	return gpio.Options{MaxPin: c.GPIO.MaxPin, LockDir: c.GPIO.LockDir}
}

// MotionDefaults returns the values used for omitted delta and omega.
func (c *Config) MotionDefaults() params.MotionDefaults {
	return params.MotionDefaults{
		Delta:    units.Radians(c.Defaults.DeltaRad),
		OmegaMax: units.RadPerSec(c.Defaults.OmegaRadS),
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
