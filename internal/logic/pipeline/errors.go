package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step that failed.
type Stage int

const (
	StageUsage Stage = iota + 1
	StageEnvironment
	StageGPIO
	StageConstruction
	StageSetup
	StageLoad
	StageMotion
)

func (s Stage) String() string {
	switch s {
	case StageUsage:
		return "usage"
	case StageEnvironment:
		return "environment"
	case StageGPIO:
		return "gpio acquisition"
	case StageConstruction:
		return "actuator construction"
	case StageSetup:
		return "actuator setup"
	case StageLoad:
		return "load application"
	case StageMotion:
		return "motion fault"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Error is a fatal pipeline failure tagged with the stage it came from.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Stage.String()
	}
	return e.Stage.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the stage sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Stage == e.Stage
}

// Stage sentinels, for errors.Is.
var (
	ErrUsage        = &Error{Stage: StageUsage}
	ErrEnvironment  = &Error{Stage: StageEnvironment}
	ErrGPIO         = &Error{Stage: StageGPIO}
	ErrConstruction = &Error{Stage: StageConstruction}
	ErrSetup        = &Error{Stage: StageSetup}
	ErrLoad         = &Error{Stage: StageLoad}
	ErrMotionFault  = &Error{Stage: StageMotion}
)

// Exit codes.
const (
	ExitOK    = 0
	ExitFatal = 1
	ExitUsage = 2
)

// ExitCode maps an error returned by Run to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	default:
		return ExitFatal
	}
}

func fail(stage Stage, err error) error {
	return &Error{Stage: stage, Err: err}
}
