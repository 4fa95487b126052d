package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cjeanneret/stepdrive/internal/params"
)

// fourSteps is four full steps of the default motor.
const fourSteps = "0.12566370614359174"

func noEnv(string) (string, bool) { return "", false }

func envOf(kv map[string]string) params.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := kv[key]
		return v, ok
	}
}

func runCLI(t *testing.T, lookup params.LookupFunc, args ...string) (int, string) {
	t.Helper()
	var stderr bytes.Buffer
	code := run(context.Background(), args, lookup, &stderr)
	return code, stderr.String()
}

func TestRun_MockMove(t *testing.T) {
	code, out := runCLI(t, noEnv, "--mock", "--debug", "1", "17", "27", fourSteps)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0\n%s", code, out)
	}
	for _, want := range []string{"# stepdrive - fixed-dist", "Parsing data from env done", "Accessing GPIO done", "Movement done"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q\n%s", want, out)
		}
	}
}

func TestRun_NegativeDelta(t *testing.T) {
	code, out := runCLI(t, noEnv, "--mock", "--debug", "0", "17", "27", "-"+fourSteps, "10")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0\n%s", code, out)
	}
}

func TestRun_QuietAtDebugZero(t *testing.T) {
	code, out := runCLI(t, noEnv, "--mock", "--debug", "0", "17", "27", fourSteps)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0\n%s", code, out)
	}
	if out != "" {
		t.Errorf("expected no output at debug 0, got:\n%s", out)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no_args", []string{"--mock"}, "usage: pin_step"},
		{"one_pin", []string{"--mock", "17"}, "usage: pin_dir"},
		{"bad_pin", []string{"--mock", "seventeen", "27"}, "usage: pin_step"},
		{"bad_omega", []string{"--mock", "17", "27", "1", "fast"}, "usage: omega"},
		{"too_many", []string{"--mock", "17", "27", "1", "2", "3"}, "accepts at most 4 arg(s)"},
		{"unknown_flag", []string{"--nope", "17", "27"}, "unknown flag"},
		{"debug_out_of_range", []string{"--debug", "9", "17", "27"}, "--debug must be between 0 and 4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, out := runCLI(t, noEnv, tc.args...)
			if code != 2 {
				t.Errorf("exit code = %d, want 2\n%s", code, out)
			}
			if !strings.Contains(out, tc.want) {
				t.Errorf("stderr missing %q\n%s", tc.want, out)
			}
			if !strings.Contains(out, "Usage:") {
				t.Errorf("stderr should include usage text\n%s", out)
			}
		})
	}
}

func TestRun_FatalErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{"bad_inertia", map[string]string{"INERTIA": "heavy"}, []string{"--mock", "17", "27"}, "fixed-dist: environment: INERTIA"},
		{"negative_inertia", map[string]string{"INERTIA": "-1"}, []string{"--mock", "17", "27"}, "fixed-dist: environment: INERTIA"},
		{"bad_micro", map[string]string{"MICRO": "many"}, []string{"--mock", "17", "27"}, "fixed-dist: environment: MICRO"},
		{"blank_force", map[string]string{"FORCE": ""}, []string{"--mock", "17", "27", "0.1"}, "fixed-dist: environment: FORCE"},
		{"blank_micro", map[string]string{"INERTIA": "", "MICRO": ""}, []string{"--mock", "17", "27", "0.1"}, "fixed-dist: environment: MICRO"},
		{"pin_out_of_range", nil, []string{"--mock", "17", "99"}, "fixed-dist: gpio acquisition"},
		{"same_pin", nil, []string{"--mock", "17", "17"}, "fixed-dist: gpio acquisition"},
		{"overload", map[string]string{"FORCE": "1.0"}, []string{"--mock", "17", "27"}, "fixed-dist: load application"},
		{"odd_microsteps", map[string]string{"MICRO": "3"}, []string{"--mock", "17", "27"}, "fixed-dist: load application"},
		{"zero_omega", nil, []string{"--mock", "17", "27", fourSteps, "0"}, "fixed-dist: motion fault"},
		{"huge_delta", nil, []string{"--mock", "--debug", "0", "17", "27", "1e300"}, "fixed-dist: motion fault: distance exceeds"},
		{"bad_config_path", nil, []string{"--config", "elsewhere/cfg.yaml", "--mock", "17", "27"}, "fixed-dist: config:"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, out := runCLI(t, envOf(tc.env), tc.args...)
			if code != 1 {
				t.Errorf("exit code = %d, want 1\n%s", code, out)
			}
			if !strings.Contains(out, tc.want) {
				t.Errorf("stderr missing %q\n%s", tc.want, out)
			}
			if strings.Contains(out, "Usage:") {
				t.Errorf("fatal errors should not print usage\n%s", out)
			}
		})
	}
}

func TestRun_ConfigFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "configs")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "bench.yaml")
	yaml := `
motor:
  profile: "BENCH_MOTOR"
  profiles:
    BENCH_MOTOR:
      rated_current_a: 1.0
      resistance_ohm: 3.0
      inductance_h: 0.005
      stall_torque_nm: 0.3
      rotor_inertia_kgm2: 0.000004
      steps_per_rev: 400
electrical:
  voltage_v: 24.0
defaults:
  omega_rad_s: 5.0
  debug_level: 1
  mock_gpio: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	code, out := runCLI(t, noEnv, "--config", path, "5", "6", "0.0314")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0\n%s", code, out)
	}
	if !strings.Contains(out, "BENCH_MOTOR") {
		t.Errorf("log output should name the configured profile\n%s", out)
	}
}

func TestRun_UsageBeforeConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "configs")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("motor: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no_args", []string{"--config", path, "--mock"}, "usage: pin_step"},
		{"bad_omega", []string{"--config", path, "17", "27", "1", "fast"}, "usage: omega"},
		{"debug_out_of_range", []string{"--config", path, "--debug", "7", "17", "27"}, "--debug must be between 0 and 4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, out := runCLI(t, noEnv, tc.args...)
			if code != 2 {
				t.Errorf("exit code = %d, want 2\n%s", code, out)
			}
			if !strings.Contains(out, tc.want) {
				t.Errorf("stderr missing %q\n%s", tc.want, out)
			}
		})
	}

	// valid arguments reach the config stage
	code, out := runCLI(t, noEnv, "--config", path, "--mock", "17", "27")
	if code != 1 || !strings.Contains(out, "fixed-dist: config:") {
		t.Errorf("exit code = %d, want 1 with a config error\n%s", code, out)
	}
}
