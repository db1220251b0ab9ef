package taskrt

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// processorNumbering assigns each Processor its "processor_<n>" name, same
// scheme as the original's atomic t_numb_ counter.
var processorNumbering atomic.Int64

// Processor is a worker OS thread bound to exactly one ProcessorContext. Its
// loop picks a ready routine from the context, resumes it, and releases its
// lock; when nothing is ready it blocks in the context's Wait.
type Processor struct {
	id      int64
	name    string
	context ProcessorContext

	cpus          []int
	affinity      string
	schedPolicy   string
	schedPriority int

	// onFinished reaps a routine that Resume has just reported as
	// RoutineFinished: removing it from the owning Scheduler's id registry
	// and group bucket, and returning its RoutineContext to the pool. Nil
	// when a Processor is built standalone (e.g. in tests) without a
	// Scheduler behind it, in which case a finished routine is simply
	// abandoned in its bucket — acceptable there, fatal in production.
	onFinished func(*Coroutine)

	running atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// NewProcessor creates a Processor bound to ctx, to be pinned per the given
// CPU set/affinity mode/scheduling policy once its thread starts running.
// onFinished, if non-nil, is called with every routine whose Resume returns
// RoutineFinished, so it can be reaped from whatever registry owns it.
func NewProcessor(ctx ProcessorContext, cpus []int, affinity, schedPolicy string, schedPriority int, onFinished func(*Coroutine)) *Processor {
	id := processorNumbering.Add(1)
	return &Processor{
		id:            id,
		name:          fmt.Sprintf("processor_%d", id),
		context:       ctx,
		cpus:          cpus,
		affinity:      affinity,
		schedPolicy:   schedPolicy,
		schedPriority: schedPriority,
		onFinished:    onFinished,
		done:          make(chan struct{}),
	}
}

func (p *Processor) Name() string { return p.name }

// BindContext starts the Processor's worker goroutine exactly once.
func (p *Processor) BindContext() {
	p.once.Do(func() {
		p.running.Store(true)
		go p.run()
	})
}

// run is the Processor's worker loop. It locks itself to its OS thread for
// the duration (CPU affinity and scheduling policy are thread properties on
// Linux, not process properties) before entering the pick-resume-release
// loop described in SPEC_FULL.md §4.4.
func (p *Processor) run() {
	defer close(p.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := setThreadAffinity(p.cpus); err != nil {
		LogWarn(getGlobalLogger(), "processor", "failed to set CPU affinity", map[string]interface{}{
			"processor": p.name,
			"error":     err.Error(),
		})
	}
	if err := setThreadSchedPolicy(p.schedPolicy, p.schedPriority); err != nil {
		LogWarn(getGlobalLogger(), "processor", "failed to set scheduling policy", map[string]interface{}{
			"processor": p.name,
			"error":     err.Error(),
		})
	}

	for p.running.Load() {
		cr := p.context.NextRoutine()
		if cr == nil {
			p.context.Wait()
			continue
		}
		p.resumeAndRelease(cr)
	}
}

// resumeAndRelease runs one scheduling slice of cr, always releases its
// scheduling lock afterward (even if something unexpected escapes Resume
// itself — user panics are already recovered inside Coroutine.run, on the
// routine's own goroutine; this recover guards the Processor loop against
// anything else going wrong in the scheduling path), and reaps cr once it
// has reached RoutineFinished: a routine is terminal from that point on, so
// leaving it in its bucket and in the registry only accumulates dead
// entries forever (see onFinished).
func (p *Processor) resumeAndRelease(cr *Coroutine) {
	state := RoutineReady // only a reap trigger if actually overwritten by Resume
	func() {
		defer cr.Release()
		defer func() {
			if r := recover(); r != nil {
				LogError(getGlobalLogger(), "processor", "unexpected panic resuming routine", &PanicError{Name: cr.Name(), Value: r}, map[string]interface{}{
					"processor": p.name,
				})
			}
		}()
		state = cr.Resume()
	}()

	if state == RoutineFinished && p.onFinished != nil {
		p.onFinished(cr)
	}
}

// Stop requests the worker loop to exit: it flips the running flag, shuts
// down the context (broadcasting its condition variable so a blocked Wait
// returns promptly), and blocks until the goroutine has actually exited.
func (p *Processor) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.context.Shutdown()
	<-p.done
}
