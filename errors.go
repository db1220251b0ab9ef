package taskrt

import (
	"errors"
	"fmt"
)

// ConfigMissingError describes a configuration file that does not exist.
// Field holds the file's path. LoadConfig logs it as a warning and goes on
// with the default configuration.
type ConfigMissingError struct {
	Field string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("taskrt: missing config field %q", e.Field)
}

// InvalidStateError indicates an operation was attempted against a
// Coroutine or Scheduler that was not in a state that permits it, e.g.
// resuming a routine that is not RoutineReady.
type InvalidStateError struct {
	Want  RoutineState
	Got   RoutineState
	Cause error
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("taskrt: invalid state: want %s, got %s", e.Want, e.Got)
}

func (e *InvalidStateError) Unwrap() error {
	return e.Cause
}

// DuplicateDispatchError is returned by Scheduler.DispatchTask when a
// routine with the same id has already been dispatched and not yet removed.
type DuplicateDispatchError struct {
	Name string
	ID   uint64
}

func (e *DuplicateDispatchError) Error() string {
	return fmt.Sprintf("taskrt: routine %q (id=%d) already dispatched", e.Name, e.ID)
}

// ContextPoolExhaustedError is recorded (as a warning, not a failure) when
// a new Coroutine could not acquire a pooled RoutineContext and fell back
// to an ad hoc allocation.
type ContextPoolExhaustedError struct {
	PoolSize int
}

// Error returns the literal diagnostic croutine.cc:61 logs on the same
// condition ("Maximum routine context number exceeded"), so callers and
// tests can match on it directly instead of a taskrt-specific rewording.
func (e *ContextPoolExhaustedError) Error() string {
	return "Maximum routine context number exceeded"
}

// PriorityOutOfRangeError is recorded when a requested priority is
// MaxPriority or higher and has been clamped to MaxPriority-1.
type PriorityOutOfRangeError struct {
	Requested int
	Clamped   int
}

func (e *PriorityOutOfRangeError) Error() string {
	return fmt.Sprintf("taskrt: priority %d out of range, clamped to %d", e.Requested, e.Clamped)
}

// StopRaceError describes RemoveCoroutine still spinning while it waits for a
// routine to release its scheduling lock. It is only logged (rate-limited,
// see logStopRace); the wait itself has no deadline and never gives up.
type StopRaceError struct {
	Name string
	ID   uint64
}

func (e *StopRaceError) Error() string {
	return fmt.Sprintf("taskrt: still waiting for routine %q (id=%d) to release its scheduling lock", e.Name, e.ID)
}

// PanicError wraps a value recovered from a panic inside a Coroutine body.
// Value holds whatever was passed to panic(); if it is itself an error,
// Unwrap exposes it for [errors.Is] / [errors.As] matching.
type PanicError struct {
	Name  string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("taskrt: routine %q panicked: %v", e.Name, e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// AggregateError collects multiple errors encountered during a single
// operation, e.g. Scheduler.Shutdown tearing down several Processors.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("taskrt: %d errors occurred, first: %v", len(e.Errors), e.Errors[0])
}

// Unwrap returns the wrapped errors for [errors.Is] / [errors.As].
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Is reports whether target is an *AggregateError, satisfying the custom
// matching contract errors.Is expects from multi-error types.
func (e *AggregateError) Is(target error) bool {
	var aggTarget *AggregateError
	return errors.As(target, &aggTarget)
}

// WrapError wraps an error with a message, preserving the cause chain so
// that errors.Is(result, cause) == true.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
