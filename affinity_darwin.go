//go:build darwin

package taskrt

// Darwin exposes no POSIX real-time scheduling classes or a stable
// thread-affinity syscall comparable to Linux's sched_setaffinity (the
// nearest equivalent, thread affinity tags, only hints the scheduler and
// isn't a binding guarantee). Pinning is therefore best-effort: it logs and
// returns nil rather than failing callers that expect Linux semantics.

func setThreadAffinity(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}
	LogWarn(getGlobalLogger(), "affinity", "CPU affinity is not supported on darwin, ignoring", map[string]interface{}{
		"cpus": cpus,
	})
	return nil
}

func setThreadSchedPolicy(policy string, priority int) error {
	if policy == "" || policy == "SCHED_OTHER" {
		return nil
	}
	LogWarn(getGlobalLogger(), "affinity", "real-time scheduling policies are not supported on darwin, ignoring", map[string]interface{}{
		"policy":   policy,
		"priority": priority,
	})
	return nil
}
