//go:build windows

package taskrt

// Windows has SetThreadAffinityMask and SetThreadPriority, but neither maps
// cleanly onto the cpuset/SCHED_FIFO/SCHED_RR/SCHED_OTHER vocabulary this
// module's configuration schema exposes. Rather than half-translate POSIX
// real-time semantics onto the Windows scheduler, affinity and scheduling
// policy are best-effort no-ops on this platform, same as wakeup_windows.go
// does for its own unsupported primitives.

func setThreadAffinity(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}
	LogWarn(getGlobalLogger(), "affinity", "CPU affinity is not supported on windows, ignoring", map[string]interface{}{
		"cpus": cpus,
	})
	return nil
}

func setThreadSchedPolicy(policy string, priority int) error {
	if policy == "" || policy == "SCHED_OTHER" {
		return nil
	}
	LogWarn(getGlobalLogger(), "affinity", "real-time scheduling policies are not supported on windows, ignoring", map[string]interface{}{
		"policy":   policy,
		"priority": priority,
	})
	return nil
}
