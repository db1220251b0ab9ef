package taskrt

import (
	"sync"
	"sync/atomic"
	"time"
	"weak"
)

// WorkWheelSize and TimerResolutionMS are the inner wheel's bucket count and
// per-tick granularity; one assistant (outer) wheel slot equals one full
// inner revolution, so these two constants also bound the longest interval
// directly representable before a task must cascade down from the
// assistant wheel. These match the values exercised end-to-end in
// SPEC_FULL.md §8's timer cascade scenario.
const (
	WorkWheelSize      = 512
	TimerResolutionMS  = 1
	AssistantWheelSize = 512
)

// TimerTask is one entry a TimingWheel fires on expiry. The wheel only ever
// holds a weak reference to a TimerTask (see DESIGN.md); callers must keep
// their own strong reference alive — typically the closure passed as
// Callback re-arms a periodic task by calling AddTask again on itself,
// which both keeps it alive and schedules the next firing.
type TimerTask struct {
	NextFireDurationMs  int64
	remainderIntervalMs int
	Callback            func()
}

type timerBucket struct {
	mu    sync.Mutex
	tasks []weak.Pointer[TimerTask]
}

func (b *timerBucket) push(wp weak.Pointer[TimerTask]) {
	b.mu.Lock()
	b.tasks = append(b.tasks, wp)
	b.mu.Unlock()
}

// drain removes and returns every task currently in the bucket.
func (b *timerBucket) drain() []weak.Pointer[TimerTask] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.tasks) == 0 {
		return nil
	}
	tasks := b.tasks
	b.tasks = nil
	return tasks
}

// TimingWheel is the two-level hierarchical timer described in
// SPEC_FULL.md §4.7: a coarse inner wheel plus a slower outer (assistant)
// wheel, where each outer tick cascades its bucket's tasks down into the
// inner wheel.
type TimingWheel struct {
	scheduler *Scheduler

	mu               sync.Mutex // guards currentWork/currentAssistant
	currentWork      int
	currentAssistant int

	workWheel      [WorkWheelSize]timerBucket
	assistantWheel [AssistantWheelSize]timerBucket

	running  atomic.Bool
	stopCh   chan struct{}
	tickDone chan struct{}
	tickCnt  atomic.Int64
}

// NewTimingWheel constructs a TimingWheel that submits expired callbacks as
// one-shot routines onto scheduler.
func NewTimingWheel(scheduler *Scheduler) *TimingWheel {
	return &TimingWheel{scheduler: scheduler}
}

// Start launches the wheel's tick goroutine if it is not already running.
func (tw *TimingWheel) Start() {
	if !tw.running.CompareAndSwap(false, true) {
		return
	}
	tw.stopCh = make(chan struct{})
	tw.tickDone = make(chan struct{})
	go tw.tickLoop()
}

// Shutdown stops the tick goroutine and waits for it to exit.
func (tw *TimingWheel) Shutdown() {
	if !tw.running.CompareAndSwap(true, false) {
		return
	}
	close(tw.stopCh)
	<-tw.tickDone
}

// AddTask computes the task's target bucket from the wheel's current index
// and inserts it, starting the wheel on first use — matching the
// original's "if not running, Start()" behavior.
func (tw *TimingWheel) AddTask(task *TimerTask) {
	tw.Start()
	tw.mu.Lock()
	base := tw.currentWork
	tw.mu.Unlock()
	tw.addTaskAt(task, base)
}

// addTaskAt is AddTask(task, baseIndex) from SPEC_FULL.md §4.7: compute
// k = baseIndex + ceil(delayMs/TimerResolutionMS); if k lands within the
// inner wheel, insert directly; otherwise insert into the assistant wheel,
// unless this is the special "still reachable this revolution" case where
// the target inner index has already been passed once but the task's
// single outer tick means it's due again before the wheel would otherwise
// cascade it down.
func (tw *TimingWheel) addTaskAt(task *TimerTask, baseIndex int) {
	delayTicks := (task.NextFireDurationMs + TimerResolutionMS - 1) / TimerResolutionMS
	k := baseIndex + int(delayTicks)

	if k < WorkWheelSize {
		tw.workWheel[k].push(weak.Make(task))
		return
	}

	inner := k % WorkWheelSize
	outerTicks := k / WorkWheelSize

	tw.mu.Lock()
	currentInner := tw.currentWork
	currentOuter := tw.currentAssistant
	tw.mu.Unlock()

	if outerTicks == 1 && inner < currentInner {
		tw.workWheel[inner].push(weak.Make(task))
		return
	}

	task.remainderIntervalMs = inner
	assistantIdx := (currentOuter + outerTicks) % AssistantWheelSize
	tw.assistantWheel[assistantIdx].push(weak.Make(task))
}

// tick drains the current inner bucket and submits every still-alive task's
// callback as a one-shot routine on the scheduler; dead weak references are
// silently dropped (logged at debug, rate-limited).
func (tw *TimingWheel) tick() {
	tw.mu.Lock()
	idx := tw.currentWork
	tw.mu.Unlock()

	tasks := tw.workWheel[idx].drain()
	for _, wp := range tasks {
		task := wp.Value()
		if task == nil {
			logTimerDropped(idx)
			continue
		}
		cb := task.Callback
		tw.scheduler.Async(func() {
			if tw.running.Load() {
				cb()
			}
		})
	}
}

// cascade moves every still-alive task in the given assistant bucket down
// into its recorded inner-wheel slot.
func (tw *TimingWheel) cascade(assistantIdx int) {
	tasks := tw.assistantWheel[assistantIdx].drain()
	for _, wp := range tasks {
		task := wp.Value()
		if task == nil {
			logTimerDropped(assistantIdx)
			continue
		}
		tw.workWheel[task.remainderIntervalMs].push(wp)
	}
}

// tickLoop is TickFunc: tick, advance the inner index, and on wraparound
// advance+cascade the outer index, once per TimerResolutionMS.
func (tw *TimingWheel) tickLoop() {
	defer close(tw.tickDone)
	ticker := time.NewTicker(TimerResolutionMS * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-tw.stopCh:
			return
		case <-ticker.C:
		}

		tw.tick()
		tw.tickCnt.Add(1)

		tw.mu.Lock()
		tw.currentWork = (tw.currentWork + 1) % WorkWheelSize
		wrapped := tw.currentWork == 0
		if wrapped {
			tw.currentAssistant = (tw.currentAssistant + 1) % AssistantWheelSize
		}
		assistantIdx := tw.currentAssistant
		tw.mu.Unlock()

		if wrapped {
			tw.cascade(assistantIdx)
		}
	}
}
