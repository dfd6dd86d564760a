package gofootprint

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched with errors.Is.
var (
	ErrBoundaryWalkFailed = errors.New("boundary walk failed")
	ErrDualPole           = errors.New("unable to create image footprint because image has both poles")
	ErrUnrepairable       = errors.New("polygon is unrepairable")
	ErrEngineFailure      = errors.New("geometry engine failure")
	ErrOverlapEngine      = errors.New("overlap computation failed")
	ErrProgrammer         = errors.New("programmer error")
)

// BoundaryWalkError reports where in the raster a boundary walk gave up.
type BoundaryWalkError struct {
	Sample float64
	Line   float64
	Reason string
}

func (e *BoundaryWalkError) Error() string {
	return fmt.Sprintf("boundary walk failed at sample %g, line %g: %s", e.Sample, e.Line, e.Reason)
}

func (e *BoundaryWalkError) Unwrap() error { return ErrBoundaryWalkFailed }

func walkFailed(sample, line float64, format string, args ...interface{}) error {
	return &BoundaryWalkError{Sample: sample, Line: line, Reason: fmt.Sprintf(format, args...)}
}

// RepairKind distinguishes repair failures.
type RepairKind int

const (
	// Unrepairable means despiking or fixing could not produce a valid polygon.
	Unrepairable RepairKind = iota
	// EngineFailure means the overlay engine failed at every precision level.
	EngineFailure
)

func (k RepairKind) String() string {
	switch k {
	case Unrepairable:
		return "unrepairable"
	case EngineFailure:
		return "engine failure"
	default:
		return fmt.Sprintf("RepairKind(%d)", int(k))
	}
}

// RepairError is returned by the polygon repair primitives.
type RepairError struct {
	Kind RepairKind
	Op   string
	Err  error
}

func (e *RepairError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *RepairError) Unwrap() error { return e.Err }

// Is lets errors.Is match the sentinel for the error's kind.
func (e *RepairError) Is(target error) bool {
	switch target {
	case ErrUnrepairable:
		return e.Kind == Unrepairable
	case ErrEngineFailure:
		return e.Kind == EngineFailure
	}
	return false
}

// OverlapEngineError names the serial number sets involved in a failed
// overlap computation.
type OverlapEngineError struct {
	Serials     [][]string
	Description string
	Err         error
}

func (e *OverlapEngineError) Error() string {
	sets := make([]string, len(e.Serials))
	for i, s := range e.Serials {
		sets[i] = "[" + strings.Join(s, ", ") + "]"
	}
	msg := fmt.Sprintf("overlap computation failed for %s", strings.Join(sets, " and "))
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OverlapEngineError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrOverlapEngine}
	}
	return []error{ErrOverlapEngine, e.Err}
}

// ProgrammerError flags invalid arguments. It is never recovered from.
type ProgrammerError struct {
	Msg string
}

func (e *ProgrammerError) Error() string { return "programmer error: " + e.Msg }

func (e *ProgrammerError) Unwrap() error { return ErrProgrammer }

func programmerError(format string, args ...interface{}) error {
	return &ProgrammerError{Msg: fmt.Sprintf(format, args...)}
}
