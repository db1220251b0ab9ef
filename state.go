package taskrt

import (
	"sync/atomic"
)

// RoutineState represents the scheduling state of a Coroutine.
//
// State Machine:
//
//	DataWait/IOWait/Sleep → Ready   [UpdateState(), Wake()]
//	Ready → (running)               [Resume()]
//	(running) → Sleep               [Sleep(d)]
//	(running) → DataWait            [HangUp()]
//	(running) → IOWait              [Yield(IOWait)]
//	(running) → Finished            [body returns]
//
// NOTE: the numeric values are not load-bearing; only the named constants
// are compared against.
type RoutineState uint64

const (
	// RoutineReady indicates the routine is eligible to be picked up by a Processor.
	RoutineReady RoutineState = iota
	// RoutineFinished indicates the routine's body has returned; it will not run again.
	RoutineFinished
	// RoutineSleep indicates the routine is parked until its wake time elapses.
	RoutineSleep
	// RoutineIOWait indicates the routine yielded waiting on an external event.
	RoutineIOWait
	// RoutineDataWait indicates the routine yielded waiting on notifier data.
	RoutineDataWait
)

// String returns a human-readable representation of the state.
func (s RoutineState) String() string {
	switch s {
	case RoutineReady:
		return "Ready"
	case RoutineFinished:
		return "Finished"
	case RoutineSleep:
		return "Sleep"
	case RoutineIOWait:
		return "IOWait"
	case RoutineDataWait:
		return "DataWait"
	default:
		return "Unknown"
	}
}

// AtomicState is a lock-free state holder with cache-line padding, used for
// the Coroutine's state field which is read by every Processor scanning for
// ready work and written by at most one goroutine (the routine itself, or a
// waker calling Wake) at a time.
//
// Cache-line padding prevents false sharing between the cores running the
// scanning Processor and the routine being scanned.
type AtomicState struct { // betteralign:ignore
	_ [64]byte      // padding //nolint:unused
	v atomic.Uint64 // RoutineState value
	_ [56]byte      // pad to a full cache line (64 - 8 = 56) //nolint:unused
}

// NewAtomicState creates a new state holder in the given initial state.
func NewAtomicState(initial RoutineState) *AtomicState {
	s := &AtomicState{}
	s.v.Store(uint64(initial))
	return s
}

// Load returns the current state atomically.
func (s *AtomicState) Load() RoutineState {
	return RoutineState(s.v.Load())
}

// Store atomically stores a new state.
func (s *AtomicState) Store(state RoutineState) {
	s.v.Store(uint64(state))
}

// CompareAndSwap attempts to atomically transition from one state to another.
func (s *AtomicState) CompareAndSwap(from, to RoutineState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsTerminal returns true if the routine has finished running.
func (s *AtomicState) IsTerminal() bool {
	return s.Load() == RoutineFinished
}

// IsWaiting returns true if the routine is parked (sleep, IO, or data wait).
func (s *AtomicState) IsWaiting() bool {
	switch s.Load() {
	case RoutineSleep, RoutineIOWait, RoutineDataWait:
		return true
	default:
		return false
	}
}

// AtomicFlag mirrors C++'s std::atomic_flag: TestAndSet unconditionally
// sets the flag and reports what it was before. It backs both the
// Coroutine's scheduling lock (acquired by a Processor while a routine is
// scheduled onto it, and by RemoveCoroutine to safely detach a routine
// currently running on some Processor) and the "updated" signal flag,
// which uses the flag in reverse: clear means a signal is pending.
type AtomicFlag struct {
	v atomic.Bool
}

// TestAndSet sets the flag and returns its value immediately beforehand.
func (f *AtomicFlag) TestAndSet() bool {
	return f.v.Swap(true)
}

// Clear resets the flag to clear.
func (f *AtomicFlag) Clear() {
	f.v.Store(false)
}

// Acquire try-locks the flag, succeeding only if it was previously clear.
func (f *AtomicFlag) Acquire() bool {
	return !f.TestAndSet()
}
