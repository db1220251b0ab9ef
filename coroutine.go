package taskrt

import (
	"sync/atomic"
	"time"
)

// Coroutine is one scheduled task: a user function body, its scheduling
// state, priority, group membership, and the plumbing needed to suspend and
// resume it cooperatively. See RoutineContext for how the context switch
// itself is realized.
type Coroutine struct {
	id        uint64
	name      string
	groupName string
	priority  int

	state     *AtomicState
	wakeTime  atomic.Int64 // UnixNano; meaningful only while state == RoutineSleep
	forceStop atomic.Bool
	lock      AtomicFlag
	updated   AtomicFlag

	ctx     *RoutineContext
	started atomic.Bool
	exited  atomic.Bool // true once run()'s goroutine has actually returned
	body    func(*Coroutine)
	err     error // set at most once, before the final yield; safe to read after Resume returns RoutineFinished
}

// newCoroutine constructs a Coroutine bound to ctx, ready for its first
// Resume. updated starts set (clear = pending signal), matching a routine
// with no outstanding notification at creation time.
func newCoroutine(id uint64, name, groupName string, priority int, ctx *RoutineContext, body func(*Coroutine)) *Coroutine {
	c := &Coroutine{
		id:        id,
		name:      name,
		groupName: groupName,
		priority:  priority,
		state:     NewAtomicState(RoutineReady),
		ctx:       ctx,
		body:      body,
	}
	c.updated.TestAndSet() // mark clear->set, i.e. "no signal pending"
	return c
}

func (c *Coroutine) ID() uint64          { return c.id }
func (c *Coroutine) Name() string        { return c.name }
func (c *Coroutine) GroupName() string   { return c.groupName }
func (c *Coroutine) Priority() int       { return c.priority }
func (c *Coroutine) State() RoutineState { return c.state.Load() }
func (c *Coroutine) Err() error          { return c.err }

func (c *Coroutine) WakeTime() time.Time {
	ns := c.wakeTime.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Resume runs one scheduling slice of the routine's body: from its current
// suspension point up to its next Yield/HangUp/Sleep, or to completion.
//
// Resume is only legal when State() == RoutineReady; calling it otherwise is
// a no-op that returns the current state unchanged. If Stop has been
// called, the routine transitions directly to RoutineFinished without ever
// running its body, matching the "force_stop observed at top of resume"
// rule.
func (c *Coroutine) Resume() RoutineState {
	if c.forceStop.Load() {
		c.state.Store(RoutineFinished)
		return RoutineFinished
	}
	if got := c.state.Load(); got != RoutineReady {
		LogError(getGlobalLogger(), "coroutine", "resume attempted on non-ready routine", &InvalidStateError{Want: RoutineReady, Got: got}, map[string]interface{}{
			"routine": c.name,
		})
		return got
	}

	if c.started.CompareAndSwap(false, true) {
		go c.run()
	}

	c.ctx.resumeCh <- struct{}{}
	<-c.ctx.yieldCh
	return c.state.Load()
}

// run is the routine's dedicated goroutine. It blocks waiting for the first
// Resume, then executes body to completion (body itself contains the
// cooperative loop and calls back into Yield/HangUp/Sleep at each
// suspension point). A panic inside body is recovered here — not at the
// Processor's call site — because body runs on its own goroutine, and a Go
// panic never crosses a goroutine boundary; a PanicError is recorded and
// the routine is finished as though it had returned normally.
func (c *Coroutine) run() {
	defer func() {
		if r := recover(); r != nil {
			c.err = &PanicError{Name: c.name, Value: r}
			LogError(getGlobalLogger(), "coroutine", "routine panicked", c.err, map[string]interface{}{
				"routine": c.name,
			})
		}
		c.exited.Store(true)
		c.state.Store(RoutineFinished)
		c.ctx.yieldCh <- struct{}{}
	}()

	<-c.ctx.resumeCh
	c.body(c)
}

// ContextRecyclable reports whether it is safe to return this routine's
// RoutineContext to the shared pool: either its goroutine never started
// (force_stop fired before the first successful Resume), or it ran to
// completion and actually returned. A routine force-stopped mid-loop
// leaves its goroutine permanently parked on the context's channels — that
// context must never be reused, or a future occupant's Resume could wake
// the wrong goroutine.
func (c *Coroutine) ContextRecyclable() bool {
	return !c.started.Load() || c.exited.Load()
}

// yieldSlice is the suspension primitive every public Yield variant funnels
// through: record the new state, hand control back to whichever Processor
// goroutine is blocked in Resume, then block until the next Resume.
func (c *Coroutine) yieldSlice(state RoutineState) {
	c.state.Store(state)
	c.ctx.yieldCh <- struct{}{}
	<-c.ctx.resumeCh
}

// Yield suspends the routine with an explicit next state.
func (c *Coroutine) Yield(state RoutineState) {
	c.yieldSlice(state)
}

// YieldUnchanged suspends the routine without changing its state — used
// when a data-driven loop found nothing to fetch and wants to give up its
// slice without altering its wait condition.
func (c *Coroutine) YieldUnchanged() {
	c.yieldSlice(c.state.Load())
}

// HangUp suspends the routine in RoutineDataWait.
func (c *Coroutine) HangUp() {
	c.yieldSlice(RoutineDataWait)
}

// Sleep suspends the routine in RoutineSleep until at least d has elapsed.
func (c *Coroutine) Sleep(d time.Duration) {
	c.wakeTime.Store(time.Now().Add(d).UnixNano())
	c.yieldSlice(RoutineSleep)
}

// Wake forces the routine's state to RoutineReady, e.g. from a timer
// callback or other external waker.
func (c *Coroutine) Wake() {
	c.state.Store(RoutineReady)
}

// UpdateState is the reconciliation primitive a Processor calls while
// scanning for ready work. It promotes a timed-out sleeper to READY, then
// consumes any pending update signal and promotes a DATA_WAIT/IO_WAIT
// routine to READY exactly once per signal.
func (c *Coroutine) UpdateState() RoutineState {
	if c.state.Load() == RoutineSleep && time.Now().UnixNano() > c.wakeTime.Load() {
		c.state.Store(RoutineReady)
	}

	wasClear := !c.updated.TestAndSet()
	if wasClear {
		switch c.state.Load() {
		case RoutineDataWait, RoutineIOWait:
			c.state.Store(RoutineReady)
		}
	}
	return c.state.Load()
}

// SetUpdateFlag clears the updated flag, recording that a signal is
// pending for the next UpdateState call.
func (c *Coroutine) SetUpdateFlag() {
	c.updated.Clear()
}

// Acquire try-locks the routine's scheduling lock.
func (c *Coroutine) Acquire() bool {
	return c.lock.Acquire()
}

// Release drops the routine's scheduling lock.
func (c *Coroutine) Release() {
	c.lock.Clear()
}

// Stop requests force-termination: the routine's next Resume transitions
// directly to RoutineFinished without running.
func (c *Coroutine) Stop() {
	c.forceStop.Store(true)
}
