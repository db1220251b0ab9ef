package taskrt

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// MaxPriority is the number of priority buckets a group's classic scheduling
// policy maintains; valid routine priorities are [0, MaxPriority).
const MaxPriority = 20

// notifyWaitTimeout bounds how long a Processor's Wait blocks on its
// group's condition variable, limiting lost-wakeup damage to one second.
const notifyWaitTimeout = time.Second

// shutdownCounterSaturation mirrors the original's
// std::numeric_limits<unsigned char>::max() sentinel written to the notify
// counter on Shutdown, guaranteeing every waiter's predicate is satisfied
// regardless of how many are parked.
const shutdownCounterSaturation = 255

// priorityBucket holds the routines at one priority level for one group, in
// FIFO insertion order, each guarded by its own read-write lock so scans
// (NextRoutine) and mutations (dispatch/remove) can proceed independently
// across priorities.
type priorityBucket struct {
	mu    sync.RWMutex
	items *list.List // of *Coroutine
}

// group is the scheduling structure shared by every Processor bound to the
// same named group: one set of priority buckets, one notify counter/mutex/
// condition variable. Multiple ClassicContext instances (one per Processor)
// reference the same *group, exactly as the original's static
// croutines_group_/notify_group_ maps are shared across ClassicContext
// instances in the same group.
type group struct {
	name    string
	mu      sync.Mutex
	cond    *sync.Cond
	counter int
	stopped atomic.Bool
	buckets [MaxPriority]priorityBucket
}

func newGroup(name string) *group {
	g := &group{name: name}
	g.cond = sync.NewCond(&g.mu)
	for i := range g.buckets {
		g.buckets[i].items = list.New()
	}
	return g
}

// dispatch inserts cr at the tail of its priority bucket and notifies the
// group. Priority is assumed already clamped by the caller.
func (g *group) dispatch(cr *Coroutine) {
	b := &g.buckets[cr.priority]
	b.mu.Lock()
	b.items.PushBack(cr)
	b.mu.Unlock()
	g.Notify()
}

// Notify increments the group's coalescing counter and wakes one waiter,
// matching the original's Notify(group_name): lock, counter++, unlock,
// notify_one.
func (g *group) Notify() {
	g.mu.Lock()
	g.counter++
	g.mu.Unlock()
	g.cond.Signal()
}

// Shutdown sets the stop flag (making NextRoutine return nil from then on),
// saturates the notify counter, and broadcasts to release every waiter.
func (g *group) Shutdown() {
	g.stopped.Store(true)
	g.mu.Lock()
	g.counter = shutdownCounterSaturation
	g.mu.Unlock()
	g.cond.Broadcast()
}

// Wait blocks until the group's notify counter is positive or
// notifyWaitTimeout has elapsed, decrementing the counter on a successful
// wake. A spurious wake that finds the counter still zero does not consume
// it — see DESIGN.md's "open question preserved" note: the counter is an
// upper bound on pending signals, not an exact count.
func (g *group) Wait() {
	deadline := time.Now().Add(notifyWaitTimeout)
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.counter <= 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		timer := time.AfterFunc(remaining, func() {
			g.mu.Lock()
			g.cond.Broadcast()
			g.mu.Unlock()
		})
		g.cond.Wait()
		timer.Stop()
	}
	g.counter--
}

// NextRoutine scans priority buckets from MaxPriority-1 down to 0, trying to
// acquire and promote the first READY routine it finds. The routine's
// scheduling lock is left held on a successful return; the caller releases
// it after Resume.
func (g *group) NextRoutine() *Coroutine {
	if g.stopped.Load() {
		return nil
	}
	for p := MaxPriority - 1; p >= 0; p-- {
		b := &g.buckets[p]
		b.mu.RLock()
		for e := b.items.Front(); e != nil; e = e.Next() {
			cr := e.Value.(*Coroutine)
			if !cr.Acquire() {
				continue
			}
			if cr.UpdateState() == RoutineReady {
				b.mu.RUnlock()
				return cr
			}
			cr.Release()
		}
		b.mu.RUnlock()
	}
	return nil
}

// RemoveCoroutine write-locks cr's priority bucket, requests termination,
// spin-waits for any in-progress Resume to release the scheduling lock, and
// erases cr from the bucket. It returns false if cr is not present.
func (g *group) RemoveCoroutine(cr *Coroutine) bool {
	b := &g.buckets[cr.priority]
	b.mu.Lock()
	defer b.mu.Unlock()

	var target *list.Element
	for e := b.items.Front(); e != nil; e = e.Next() {
		if e.Value.(*Coroutine).id == cr.id {
			target = e
			break
		}
	}
	if target == nil {
		return false
	}

	cr.Stop()
	for iterations := 1; !cr.Acquire(); iterations++ {
		time.Sleep(time.Microsecond)
		if iterations%1000 == 0 {
			logStopRace(cr, iterations)
		}
	}
	b.items.Remove(target)
	cr.Release()
	return true
}

// removeFinished erases a naturally-completed routine from its priority
// bucket. Unlike RemoveCoroutine, it performs no Stop()/spin-wait for the
// scheduling lock: the caller (Processor.resumeAndRelease, having observed
// Resume return RoutineFinished) has already released that lock itself, and
// Resume permanently refuses to re-run a routine once it has reached
// RoutineFinished, so there is no in-progress slice to wait out.
func (g *group) removeFinished(cr *Coroutine) bool {
	b := &g.buckets[cr.priority]
	b.mu.Lock()
	defer b.mu.Unlock()

	for e := b.items.Front(); e != nil; e = e.Next() {
		if e.Value.(*Coroutine).id == cr.id {
			b.items.Remove(e)
			return true
		}
	}
	return false
}

// ProcessorContext is the capability set both Classic and Choreography
// processor contexts share. Only Classic is implemented; see SPEC_FULL.md
// §9 "Polymorphic processor contexts".
type ProcessorContext interface {
	NextRoutine() *Coroutine
	Wait()
	Shutdown()
}

// ClassicContext is one Processor's view onto its group's shared scheduling
// structure.
type ClassicContext struct {
	group *group
}

func newClassicContext(g *group) *ClassicContext {
	return &ClassicContext{group: g}
}

func (c *ClassicContext) NextRoutine() *Coroutine { return c.group.NextRoutine() }
func (c *ClassicContext) Wait()                   { c.group.Wait() }
func (c *ClassicContext) Shutdown()               { c.group.Shutdown() }

var _ ProcessorContext = (*ClassicContext)(nil)
