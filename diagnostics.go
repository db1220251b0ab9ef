package taskrt

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// Rate limiters guarding the two "log at most once per window per key"
// diagnostics named in §7/§10.6: the StopRace spin-wait (replacing the
// original's AINFO_EVERY(1000) macro) and the timing wheel's dropped weak
// reference path. A shared production-grade sliding-window limiter is used
// rather than a hand-rolled iteration-modulo counter.
var (
	stopRaceLimiter  = catrate.NewLimiter(map[time.Duration]int{time.Second: 1})
	timerDropLimiter = catrate.NewLimiter(map[time.Duration]int{time.Second: 1})
)

// logStopRace logs a rate-limited warning while RemoveCoroutine spins
// waiting to acquire a routine's scheduling lock.
func logStopRace(cr *Coroutine, iterations int) {
	if _, ok := stopRaceLimiter.Allow(cr.id); ok {
		LogWarn(getGlobalLogger(), "scheduler", (&StopRaceError{Name: cr.name, ID: cr.id}).Error(), map[string]interface{}{
			"iterations": iterations,
		})
	}
}

// logTimerDropped logs a rate-limited notice when a timing wheel bucket
// finds a weak reference whose TimerTask has already been collected.
func logTimerDropped(bucketIndex int) {
	if _, ok := timerDropLimiter.Allow(bucketIndex); ok {
		LogDebug(getGlobalLogger(), "timer", "dropped a collected timer task", map[string]interface{}{
			"bucket": bucketIndex,
		})
	}
}
