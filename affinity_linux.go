//go:build linux

package taskrt

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// setThreadAffinity pins the calling OS thread to the given CPU list. The
// caller must have already called runtime.LockOSThread, or the pinning will
// apply to whatever thread the goroutine happens to be on when the syscall
// runs, not necessarily the one it stays on.
func setThreadAffinity(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	if err := unix.SchedSetaffinity(unix.Gettid(), &set); err != nil {
		return fmt.Errorf("taskrt: SchedSetaffinity(%v): %w", cpus, err)
	}
	return nil
}

// setThreadSchedPolicy applies a scheduling policy and priority to the
// calling OS thread, matching pin_thread.cc's SetSchedPolicy: SCHED_FIFO and
// SCHED_RR take a real-time priority via sched_setscheduler, SCHED_OTHER
// takes a nice-style priority via setpriority.
func setThreadSchedPolicy(policy string, priority int) error {
	tid := unix.Gettid()
	switch policy {
	case "SCHED_FIFO", "SCHED_RR":
		var schedPolicy int
		if policy == "SCHED_FIFO" {
			schedPolicy = unix.SCHED_FIFO
		} else {
			schedPolicy = unix.SCHED_RR
		}
		// mirrors struct sched_param { int sched_priority; } for the
		// raw sched_setscheduler syscall, which x/sys/unix does not wrap
		// directly.
		type schedParam struct {
			Priority int32
		}
		param := schedParam{Priority: int32(priority)}
		_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER,
			uintptr(tid), uintptr(schedPolicy), uintptr(unsafe.Pointer(&param)))
		if errno != 0 {
			return fmt.Errorf("taskrt: sched_setscheduler(%s, prio=%d): %w", policy, priority, errno)
		}
	case "SCHED_OTHER", "":
		if err := unix.Setpriority(unix.PRIO_PROCESS, tid, priority); err != nil {
			return fmt.Errorf("taskrt: setpriority(%d): %w", priority, err)
		}
	default:
		return fmt.Errorf("taskrt: unsupported scheduling policy %q", policy)
	}
	return nil
}
