package gpio

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/cjeanneret/stepdrive/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

func (m PinMode) String() string {
	if m == Output {
		return "output"
	}
	return "input"
}

// DefaultMaxPin is the highest BCM number exposed on the 40-pin header.
const DefaultMaxPin = 27

var (
	ErrUnavailable   = errors.New("gpio subsystem unavailable")
	ErrPinOutOfRange = errors.New("pin out of range")
	ErrPinClaimed    = errors.New("pin already claimed")
	ErrNotClaimed    = errors.New("pin not claimed")
)

// Driver defines the abstract interface for controlling GPIOs.
// A pin must be claimed before it is configured or written; a claim is
// exclusive until released or the driver is closed.
type Driver interface {
	Claim(pin int) error
	Release(pin int) error
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// Options tunes claim checking shared by every driver.
type Options struct {
	MaxPin  int    // highest valid pin number; 0 means DefaultMaxPin
	LockDir string // directory for per-pin lock files; empty disables cross-process locking
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool, opts Options) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(opts), nil
	}
	return NewRPiRealDriver(opts)
}

// claims tracks which pins this process holds.
type claims struct {
	mu      sync.Mutex
	maxPin  int
	lockDir string
	held    map[int]*fileLock
}

func newClaims(opts Options) *claims {
	maxPin := opts.MaxPin
	if maxPin <= 0 {
		maxPin = DefaultMaxPin
	}
	return &claims{
		maxPin:  maxPin,
		lockDir: opts.LockDir,
		held:    make(map[int]*fileLock),
	}
}

func (c *claims) claim(pin int) error {
	if pin < 0 || pin > c.maxPin {
		return fmt.Errorf("pin %d: %w (0-%d)", pin, ErrPinOutOfRange, c.maxPin)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[pin]; ok {
		return fmt.Errorf("pin %d: %w", pin, ErrPinClaimed)
	}

	var lock *fileLock
	if c.lockDir != "" {
		var err error
		if lock, err = lockPin(c.lockDir, pin); err != nil {
			return err
		}
	}
	c.held[pin] = lock
	return nil
}

func (c *claims) release(pin int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.held[pin]
	if !ok {
		return fmt.Errorf("pin %d: %w", pin, ErrNotClaimed)
	}
	delete(c.held, pin)
	return lock.unlock()
}

func (c *claims) check(pin int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[pin]; !ok {
		return fmt.Errorf("pin %d: %w", pin, ErrNotClaimed)
	}
	return nil
}

func (c *claims) pins() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.held))
	for pin := range c.held {
		out = append(out, pin)
	}
	return out
}

// MockDriver is a test implementation that logs actions and remembers pin levels.
// Used for development on PC or testing.
type MockDriver struct {
	claims *claims

	mu     sync.Mutex
	levels map[int]Level
}

// NewMockDriver creates a mock driver with the same claim rules as the real one.
func NewMockDriver(opts Options) *MockDriver {
	return &MockDriver{
		claims: newClaims(opts),
		levels: make(map[int]Level),
	}
}

func (m *MockDriver) Claim(pin int) error {
	debug.GPIO("Claim", pin, nil)
	return m.claims.claim(pin)
}

func (m *MockDriver) Release(pin int) error {
	debug.GPIO("Release", pin, nil)
	return m.claims.release(pin)
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return m.claims.check(pin)
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	if err := m.claims.check(pin); err != nil {
		return err
	}
	m.mu.Lock()
	m.levels[pin] = level
	m.mu.Unlock()
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

// Claimed reports whether pin is currently held by this driver.
func (m *MockDriver) Claimed(pin int) bool {
	return m.claims.check(pin) == nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	var err error
	for _, pin := range m.claims.pins() {
		err = multierr.Append(err, m.claims.release(pin))
	}
	return err
}
