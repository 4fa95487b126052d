package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Pipeline progress (stages, resolved parameters)
	LevelLive    = 2 // Live info (move start/end, step counts)
	LevelVerbose = 3 // Verbose (ramp plan, electrical model)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

// slog levels for the debug levels above the standard ones.
const (
	slogLive  = slog.Level(-2)
	slogTrace = slog.Level(-8)
)

var (
	mu     sync.RWMutex
	level  int
	out    io.Writer = os.Stderr
	logger *slog.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = pipeline progress
// 2 = live info (movement start/end)
// 3 = verbose (ramp planning, electrical model)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	rebuild()
}

// SetOutput redirects log output. Stderr is the default so stdout stays clean.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	rebuild()
}

func rebuild() {
	if level <= LevelOff {
		logger = nil
		return
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: handlerLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					switch lvl {
					case slogLive:
						a.Value = slog.StringValue("LIVE")
					case slogTrace:
						a.Value = slog.StringValue("TRACE")
					}
				}
			case "error":
				a.Key = "err"
			}
			return a
		},
	}))
}

func handlerLevel(l int) slog.Level {
	switch {
	case l >= LevelTrace:
		return slogTrace
	case l == LevelVerbose:
		return slog.LevelDebug
	case l == LevelLive:
		return slogLive
	default:
		return slog.LevelInfo
	}
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

func emit(lvl slog.Level, msg string, attrs ...any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l == nil {
		return
	}
	l.Log(context.Background(), lvl, msg, attrs...)
}

// --- Level 1 functions (Info) ---

// Info prints a level 1 message.
func Info(format string, args ...any) {
	emit(slog.LevelInfo, fmt.Sprintf(format, args...))
}

// Banner prints the program banner (level 1).
func Banner(title string) {
	emit(slog.LevelInfo, "# "+title)
}

// Value prints a named value (level 1).
func Value(name string, value any) {
	emit(slog.LevelInfo, name, "value", value)
}

// --- Level 2 functions (Live) ---

// Live prints a level 2 message.
func Live(format string, args ...any) {
	emit(slogLive, fmt.Sprintf(format, args...))
}

// Move prints the start of a relative move (level 2).
func Move(steps int64, direction string, omega any) {
	emit(slogLive, "move", "steps", steps, "direction", direction, "omega_max", omega)
}

// --- Level 3 functions (Verbose) ---

// Verbose prints a level 3 message.
func Verbose(format string, args ...any) {
	emit(slog.LevelDebug, fmt.Sprintf(format, args...))
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v any) {
	emit(slog.LevelDebug, name, "value", fmt.Sprintf("%+v", v))
}

// Section prints a section marker (level 3).
func Section(name string) {
	emit(slog.LevelDebug, "── "+name+" ──")
}

// Step prints a numbered pipeline stage (level 3).
func Step(num int, description string) {
	emit(slog.LevelDebug, description, "step", num)
}

// --- Level 4 functions (Trace) ---

// Trace prints a level 4 message.
func Trace(format string, args ...any) {
	emit(slogTrace, fmt.Sprintf(format, args...))
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value any) {
	emit(slogTrace, "gpio", "op", operation, "pin", pin, "value", value)
}

// --- General functions ---

// Error prints an error (level 1+).
func Error(err error) {
	emit(slog.LevelError, "failure", "error", err)
}
