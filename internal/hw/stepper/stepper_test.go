package stepper

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/stepdrive/internal/hw/gpio"
	"github.com/cjeanneret/stepdrive/internal/units"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	mu          sync.Mutex
	calls       []gpioCall
	failWriteAt int // 1-based index of the write that fails; 0 = never
	writes      int
}

type gpioCall struct {
	op    string // "claim", "setup", "write"
	pin   int
	level gpio.Level
}

func (d *recordingDriver) Claim(pin int) error {
	d.record(gpioCall{op: "claim", pin: pin})
	return nil
}

func (d *recordingDriver) Release(pin int) error { return nil }

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.record(gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.mu.Lock()
	d.writes++
	fail := d.failWriteAt > 0 && d.writes >= d.failWriteAt
	d.mu.Unlock()
	if fail {
		return errors.New("gpio write failed")
	}
	d.record(gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error {
	return nil
}

func (d *recordingDriver) record(c gpioCall) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
}

func (d *recordingDriver) reset() {
	d.mu.Lock()
	d.calls = nil
	d.writes = 0
	d.mu.Unlock()
}

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func (d *recordingDriver) highPulses(pin int) int {
	n := 0
	for _, c := range d.writeCalls() {
		if c.pin == pin && c.level == gpio.High {
			n++
		}
	}
	return n
}

const (
	stepPin = 17
	dirPin  = 27
)

func newPWM(t *testing.T, drv gpio.Driver) *GenericPWM {
	t.Helper()
	pins, err := gpio.AcquireOutputs(drv, stepPin, dirPin)
	if err != nil {
		t.Fatalf("AcquireOutputs: %v", err)
	}
	pwm, err := NewGenericPWM(pins[0], pins[1])
	if err != nil {
		t.Fatalf("NewGenericPWM: %v", err)
	}
	pwm.sleep = func(time.Duration) {}
	return pwm
}

// newReadyStepper returns a set-up stepper at 12 V with the call log cleared.
func newReadyStepper(t *testing.T, drv *recordingDriver) *Stepper {
	t.Helper()
	s, err := New(newPWM(t, drv), MOT17HE15_1504S)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.SetConfig(Electrical{Voltage: 12})
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	drv.reset()
	return s
}

func TestNewGenericPWM_RejectsSharedPin(t *testing.T) {
	drv := &recordingDriver{}
	pins, _ := gpio.AcquireOutputs(drv, 4, 4)
	if _, err := NewGenericPWM(pins[0], pins[1]); !errors.Is(err, ErrPinConfig) {
		t.Errorf("err = %v, want ErrPinConfig", err)
	}
	if _, err := NewGenericPWM(nil, pins[1]); !errors.Is(err, ErrPinConfig) {
		t.Errorf("nil step pin: err = %v, want ErrPinConfig", err)
	}
}

func TestNew_RejectsInvalidProfile(t *testing.T) {
	bad := MOT17HE15_1504S
	bad.StepsPerRev = 0
	if _, err := New(newPWM(t, &recordingDriver{}), bad); !errors.Is(err, ErrProfile) {
		t.Errorf("err = %v, want ErrProfile", err)
	}
	if _, err := New(nil, MOT17HE15_1504S); !errors.Is(err, ErrPinConfig) {
		t.Errorf("nil signal: err = %v, want ErrPinConfig", err)
	}
}

func TestSetup_RequiresConfig(t *testing.T) {
	s, _ := New(newPWM(t, &recordingDriver{}), MOT17HE15_1504S)
	if err := s.Setup(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestSetup_InvalidElectrical(t *testing.T) {
	neg := units.Amps(-1)
	cases := []struct {
		name string
		elec Electrical
	}{
		{"zero_voltage", Electrical{Voltage: 0}},
		{"negative_voltage", Electrical{Voltage: -12}},
		{"nan_voltage", Electrical{Voltage: units.Volts(math.NaN())}},
		{"negative_current", Electrical{Voltage: 12, OverloadCurrent: &neg}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := New(newPWM(t, &recordingDriver{}), MOT17HE15_1504S)
			s.SetConfig(tc.elec)
			if err := s.Setup(); !errors.Is(err, ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestSetup_IdlesLinesAndDerivesLimit(t *testing.T) {
	drv := &recordingDriver{}
	s, _ := New(newPWM(t, drv), MOT17HE15_1504S)
	drv.reset()
	s.SetConfig(Electrical{Voltage: 12})
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	writes := drv.writeCalls()
	if len(writes) != 2 || writes[0].level != gpio.Low || writes[1].level != gpio.Low {
		t.Errorf("Setup should drive both lines LOW, got %+v", writes)
	}
	// 2·L·I/V = 1 ms per full step, 200 steps per turn
	if got, want := float64(s.VelocityLimit()), 10*math.Pi; math.Abs(got-want) > 1e-9 {
		t.Errorf("VelocityLimit = %v, want %v", got, want)
	}
}

func TestSetup_SignalFailure(t *testing.T) {
	drv := &recordingDriver{}
	s, _ := New(newPWM(t, drv), MOT17HE15_1504S)
	drv.failWriteAt = 1
	s.SetConfig(Electrical{Voltage: 12})
	if err := s.Setup(); err == nil {
		t.Error("Setup should fail when the lines cannot be driven")
	}
}

func TestApplyGenForce(t *testing.T) {
	s, _ := New(newPWM(t, &recordingDriver{}), MOT17HE15_1504S)
	if err := s.ApplyGenForce(0.1); !errors.Is(err, ErrNotSetup) {
		t.Errorf("before Setup: err = %v, want ErrNotSetup", err)
	}

	s = newReadyStepper(t, &recordingDriver{})
	for _, f := range []units.Force{0, 0.1, -0.41} {
		if err := s.ApplyGenForce(f); err != nil {
			t.Errorf("ApplyGenForce(%v): %v", f, err)
		}
	}
	for _, f := range []units.Force{0.42, -0.5, 10} {
		if err := s.ApplyGenForce(f); !errors.Is(err, ErrOverload) {
			t.Errorf("ApplyGenForce(%v) = %v, want ErrOverload", f, err)
		}
	}
}

func TestOverloadCurrent_DeratesTorque(t *testing.T) {
	s, _ := New(newPWM(t, &recordingDriver{}), MOT17HE15_1504S)
	half := units.Amps(0.75)
	s.SetConfig(Electrical{Voltage: 12, OverloadCurrent: &half})
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := s.ApplyGenForce(0.25); !errors.Is(err, ErrOverload) {
		t.Errorf("0.25 Nm against 0.21 Nm derated torque: err = %v, want ErrOverload", err)
	}
	if err := s.ApplyGenForce(0.2); err != nil {
		t.Errorf("ApplyGenForce(0.2): %v", err)
	}
	// lower current, faster coil rise: limit doubles
	if got, want := float64(s.VelocityLimit()), 20*math.Pi; math.Abs(got-want) > 1e-9 {
		t.Errorf("VelocityLimit = %v, want %v", got, want)
	}
}

func TestSetMicrosteps(t *testing.T) {
	s := newReadyStepper(t, &recordingDriver{})
	for _, n := range []units.MicroSteps{0, 3, 6, 255} {
		if err := s.SetMicrosteps(n); !errors.Is(err, ErrMicrosteps) {
			t.Errorf("SetMicrosteps(%d) = %v, want ErrMicrosteps", n, err)
		}
	}
	if err := s.SetMicrosteps(16); err != nil {
		t.Fatalf("SetMicrosteps(16): %v", err)
	}
	if got, want := float64(s.StepAngle()), 2*math.Pi/3200; math.Abs(got-want) > 1e-12 {
		t.Errorf("StepAngle = %v, want %v", got, want)
	}
}

func TestSetVelocityMax_Clamps(t *testing.T) {
	s := newReadyStepper(t, &recordingDriver{})

	s.SetVelocityMax(20)
	if s.VelocityMax() != 20 {
		t.Errorf("VelocityMax = %v, want 20", s.VelocityMax())
	}
	s.SetVelocityMax(1000)
	if s.VelocityMax() != s.VelocityLimit() {
		t.Errorf("VelocityMax = %v, want electrical limit %v", s.VelocityMax(), s.VelocityLimit())
	}
	s.SetVelocityMax(-3)
	if s.VelocityMax() != 0 {
		t.Errorf("negative ceiling should clamp to 0, got %v", s.VelocityMax())
	}
}

func TestDriveRel_OneRevolution(t *testing.T) {
	drv := &recordingDriver{}
	s := newReadyStepper(t, drv)
	s.SetVelocityMax(20)

	if err := s.DriveRel(context.Background(), units.Revolution, 1.0).Wait(); err != nil {
		t.Fatalf("DriveRel: %v", err)
	}

	writes := drv.writeCalls()
	if writes[0].pin != dirPin || writes[0].level != gpio.High {
		t.Errorf("first write should set dir pin HIGH, got pin=%d level=%v", writes[0].pin, writes[0].level)
	}
	if got := drv.highPulses(stepPin); got != 200 {
		t.Errorf("expected 200 step pulses, got %d", got)
	}
	if got := float64(s.Position()); math.Abs(got-2*math.Pi) > 1e-9 {
		t.Errorf("Position = %v, want 2π", got)
	}
}

func TestDriveRel_Backward(t *testing.T) {
	drv := &recordingDriver{}
	s := newReadyStepper(t, drv)
	s.SetVelocityMax(20)

	if err := s.DriveRel(context.Background(), -units.Revolution/4, 1.0).Wait(); err != nil {
		t.Fatalf("DriveRel: %v", err)
	}
	writes := drv.writeCalls()
	if writes[0].pin != dirPin || writes[0].level != gpio.Low {
		t.Errorf("first write should set dir pin LOW, got pin=%d level=%v", writes[0].pin, writes[0].level)
	}
	if got := drv.highPulses(stepPin); got != 50 {
		t.Errorf("expected 50 step pulses, got %d", got)
	}
	if s.Position() >= 0 {
		t.Errorf("Position = %v, want negative", s.Position())
	}
}

func TestDriveRel_Microsteps(t *testing.T) {
	drv := &recordingDriver{}
	s := newReadyStepper(t, drv)
	if err := s.SetMicrosteps(4); err != nil {
		t.Fatal(err)
	}
	s.SetVelocityMax(20)

	if err := s.DriveRel(context.Background(), units.Revolution/2, 1.0).Wait(); err != nil {
		t.Fatalf("DriveRel: %v", err)
	}
	if got := drv.highPulses(stepPin); got != 400 {
		t.Errorf("expected 400 microstep pulses, got %d", got)
	}
}

func TestDriveRel_PulsePattern(t *testing.T) {
	drv := &recordingDriver{}
	s := newReadyStepper(t, drv)
	s.SetVelocityMax(20)

	if err := s.DriveRel(context.Background(), s.StepAngle(), 1.0).Wait(); err != nil {
		t.Fatalf("DriveRel: %v", err)
	}
	var stepCalls []gpioCall
	for _, c := range drv.writeCalls() {
		if c.pin == stepPin {
			stepCalls = append(stepCalls, c)
		}
	}
	if len(stepCalls) != 2 || stepCalls[0].level != gpio.High || stepCalls[1].level != gpio.Low {
		t.Errorf("single step should be HIGH then LOW, got %+v", stepCalls)
	}
}

func TestDriveRel_Errors(t *testing.T) {
	unset, _ := New(newPWM(t, &recordingDriver{}), MOT17HE15_1504S)
	if err := unset.DriveRel(context.Background(), 1, 1).Wait(); !errors.Is(err, ErrNotSetup) {
		t.Errorf("not set up: err = %v, want ErrNotSetup", err)
	}

	s := newReadyStepper(t, &recordingDriver{})
	s.SetVelocityMax(0)
	if err := s.DriveRel(context.Background(), 1, 1).Wait(); !errors.Is(err, ErrNoVelocity) {
		t.Errorf("zero ceiling: err = %v, want ErrNoVelocity", err)
	}

	s.SetVelocityMax(20)
	for _, f := range []float64{0, -1, 1.5, math.NaN()} {
		if err := s.DriveRel(context.Background(), 1, f).Wait(); !errors.Is(err, ErrFactor) {
			t.Errorf("factor %v: err = %v, want ErrFactor", f, err)
		}
	}
}

func TestDriveRel_DistanceTooLarge(t *testing.T) {
	drv := &recordingDriver{}
	s := newReadyStepper(t, drv)
	s.SetVelocityMax(20)

	d := s.DriveRel(context.Background(), 1e300, 1.0)
	if err := d.Wait(); !errors.Is(err, ErrDistance) {
		t.Fatalf("err = %v, want ErrDistance", err)
	}
	if d.Executed() != 0 || len(drv.calls) != 0 {
		t.Errorf("nothing may be pulsed: executed %d, %d GPIO calls", d.Executed(), len(drv.calls))
	}
	if err := s.DriveRel(context.Background(), 4*s.StepAngle(), 1.0).Wait(); err != nil {
		t.Errorf("stepper should stay usable after a rejected move: %v", err)
	}
}

func TestDriveRel_ZeroDistance(t *testing.T) {
	drv := &recordingDriver{}
	s := newReadyStepper(t, drv)
	s.SetVelocityMax(0) // irrelevant when nothing moves

	if err := s.DriveRel(context.Background(), 0.001, 1.0).Wait(); err != nil {
		t.Fatalf("sub-step move: %v", err)
	}
	if len(drv.calls) != 0 {
		t.Errorf("sub-step move should produce no GPIO calls, got %d", len(drv.calls))
	}
}

func TestDriveRel_SignalFault(t *testing.T) {
	drv := &recordingDriver{}
	s := newReadyStepper(t, drv)
	s.SetVelocityMax(20)
	drv.failWriteAt = 22 // direction + 10 full pulses succeed

	d := s.DriveRel(context.Background(), units.Revolution, 1.0)
	<-d.Done()
	if !errors.Is(d.Err(), ErrSignal) {
		t.Fatalf("err = %v, want ErrSignal", d.Err())
	}
	if d.Executed() != 10 {
		t.Errorf("executed %d steps before the fault, want 10", d.Executed())
	}
}

func TestDriveRel_ContextCancelled(t *testing.T) {
	s := newReadyStepper(t, &recordingDriver{})
	s.SetVelocityMax(20)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := s.DriveRel(ctx, units.Revolution, 1.0)
	if err := d.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if d.Executed() != 0 {
		t.Errorf("no step should be pulsed after cancellation, got %d", d.Executed())
	}
}

func TestSetMicrosteps_RefusedWhileDriving(t *testing.T) {
	s := newReadyStepper(t, &recordingDriver{})
	s.SetVelocityMax(20)
	block := make(chan struct{})
	s.sig.(*GenericPWM).sleep = func(time.Duration) { <-block }

	d := s.DriveRel(context.Background(), units.Revolution/100, 1.0)
	if err := s.SetMicrosteps(2); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
	if err := s.DriveRel(context.Background(), 1, 1).Wait(); !errors.Is(err, ErrBusy) {
		t.Errorf("second drive: err = %v, want ErrBusy", err)
	}
	close(block)
	if err := d.Wait(); err != nil {
		t.Errorf("first drive: %v", err)
	}
}

func TestLookupProfile(t *testing.T) {
	p, err := LookupProfile("MOT_17HE15_1504S")
	if err != nil {
		t.Fatalf("LookupProfile: %v", err)
	}
	if p.StepsPerRev != 200 {
		t.Errorf("StepsPerRev = %d, want 200", p.StepsPerRev)
	}
	if _, err := LookupProfile("NEMA_99"); !errors.Is(err, ErrProfile) {
		t.Errorf("unknown profile: err = %v, want ErrProfile", err)
	}
}
