package taskrt

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// RoutineIDFromName derives a Coroutine's id deterministically from its
// name, matching the original's "hash name to id" convention used by
// RemoveTask — a routine can always be addressed by name without the
// caller having to thread an id of its own back through.
func RoutineIDFromName(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// taskPlacement is a per-task priority/group override from config.
type taskPlacement struct {
	priority  int
	groupName string
}

// Scheduler is the global entry point: it owns every group's scheduling
// structure and Processor pool, the id→routine registry, and the per-id
// mutex map that linearizes concurrent dispatch/remove of the same id.
type Scheduler struct {
	groups           map[string]*group
	defaultGroupName string
	taskPlacements   map[string]taskPlacement

	processors  []*Processor
	contextPool *contextPool

	routinesMu sync.RWMutex
	routines   map[uint64]*Coroutine

	idMutexes sync.Map // uint64 -> *sync.Mutex, persists for the scheduler's life

	stopped atomic.Bool
}

// New constructs a Scheduler from functional options, bypassing the JSON
// config file entirely — for tests and embedders that want to build a
// scheduler in-process. With no WithGroup option it creates one group,
// DefaultGroupName; otherwise it creates one group per WithGroup option, and
// the first of them receives routines that have no placement of their own.
func New(opts ...SchedulerOption) (*Scheduler, error) {
	cfg, err := resolveSchedulerOptions(opts)
	if err != nil {
		return nil, err
	}

	if len(cfg.groups) == 0 {
		groupCfg := GroupConf{
			Name:         DefaultGroupName,
			ProcessorNum: cfg.defaultProcNum,
			Affinity:     "range",
		}
		return newScheduler(cfg.routineNum, cfg.processLevelCPUSet, DefaultGroupName, nil, []GroupConf{groupCfg})
	}

	groupConfs := make([]GroupConf, len(cfg.groups))
	for i, spec := range cfg.groups {
		groupConfs[i] = GroupConf{
			Name:            spec.name,
			ProcessorNum:    spec.opts.procNum,
			CPUSet:          spec.opts.cpuset,
			Affinity:        spec.opts.affinity,
			ProcessorPolicy: spec.opts.schedPolicy,
			ProcessorPrio:   spec.opts.schedPriority,
		}
	}
	return newScheduler(cfg.routineNum, cfg.processLevelCPUSet, cfg.groups[0].name, nil, groupConfs)
}

// NewFromConfig builds a Scheduler from a fully validated Config, wiring up
// one group (and its Processors) per cfg.SchedulerConf.ClassicConf.Groups
// entry, or a single DefaultGroupName group if none are configured.
func NewFromConfig(cfg *Config) (*Scheduler, error) {
	if cfg.SchedulerConf.Policy != "classic" {
		return nil, fmt.Errorf("taskrt: scheduler policy %q is not implemented (only \"classic\" is)", cfg.SchedulerConf.Policy)
	}

	groupConfs := cfg.SchedulerConf.ClassicConf.Groups
	defaultGroupName := DefaultGroupName
	if len(groupConfs) == 0 {
		groupConfs = []GroupConf{{
			Name:         DefaultGroupName,
			ProcessorNum: cfg.SchedulerConf.DefaultProcNum,
			Affinity:     "range",
			ProcessorPolicy: "SCHED_OTHER",
		}}
	} else {
		defaultGroupName = groupConfs[0].Name
	}

	taskPlacements := make(map[string]taskPlacement)
	for _, g := range groupConfs {
		for _, t := range g.Tasks {
			taskPlacements[t.Name] = taskPlacement{priority: t.Prio, groupName: g.GroupName(t)}
		}
	}

	return newScheduler(cfg.SchedulerConf.RoutineNum, cfg.SchedulerConf.ProcessLevelCPUSet, defaultGroupName, taskPlacements, groupConfs)
}

// GroupName returns the task's explicit group override, or g's own name if
// the task didn't specify one.
func (g GroupConf) GroupName(t TaskConf) string {
	if t.GroupName != "" {
		return t.GroupName
	}
	return g.Name
}

func newScheduler(routineNum int, processLevelCPUSet, defaultGroupName string, taskPlacements map[string]taskPlacement, groupConfs []GroupConf) (*Scheduler, error) {
	if taskPlacements == nil {
		taskPlacements = make(map[string]taskPlacement)
	}

	poolSize := routineNum
	declared := 0
	for _, g := range groupConfs {
		declared += g.ProcessorNum
	}
	if declared > poolSize {
		poolSize = declared
	}

	s := &Scheduler{
		groups:           make(map[string]*group),
		defaultGroupName: defaultGroupName,
		taskPlacements:   taskPlacements,
		contextPool:      newContextPool(poolSize),
		routines:         make(map[uint64]*Coroutine),
	}

	processCPUs, err := ParseCPUSet(processLevelCPUSet)
	if err != nil {
		return nil, WrapError("taskrt: invalid process-level cpuset", err)
	}

	for _, gc := range groupConfs {
		g := newGroup(gc.Name)
		s.groups[gc.Name] = g

		groupCPUs, err := ParseCPUSet(gc.CPUSet)
		if err != nil {
			return nil, WrapError(fmt.Sprintf("taskrt: invalid cpuset for group %q", gc.Name), err)
		}
		if len(groupCPUs) == 0 {
			groupCPUs = processCPUs
		}

		for i := 0; i < gc.ProcessorNum; i++ {
			cpus := groupCPUs
			if gc.Affinity == "1to1" {
				if i < len(groupCPUs) {
					cpus = []int{groupCPUs[i]}
				} else {
					// pin_thread.cc's SetSchedAffinity returns without
					// pinning when cpu_id >= cpus.size(); match that rather
					// than wrapping back around the cpuset.
					cpus = nil
				}
			}
			proc := NewProcessor(newClassicContext(g), cpus, gc.Affinity, gc.ProcessorPolicy, gc.ProcessorPrio, s.reapFinished)
			s.processors = append(s.processors, proc)
		}
	}

	for _, proc := range s.processors {
		proc.BindContext()
	}

	return s, nil
}

func (s *Scheduler) idMutex(id uint64) *sync.Mutex {
	v, _ := s.idMutexes.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// CreateTask builds a Coroutine named name running body and dispatches it.
// Returns false if a routine with the same name (hence the same id) is
// already dispatched.
func (s *Scheduler) CreateTask(name string, body RoutineBody) bool {
	id := RoutineIDFromName(name)

	ctx, pooled := s.contextPool.acquire()
	if !pooled {
		LogWarn(getGlobalLogger(), "scheduler", (&ContextPoolExhaustedError{PoolSize: s.contextPool.Size()}).Error(), map[string]interface{}{
			"routine":   name,
			"pool_size": s.contextPool.Size(),
		})
		ctx = newRoutineContext()
	}

	cr := newCoroutine(id, name, "", 0, ctx, body)
	if !s.DispatchTask(cr) {
		if pooled {
			s.contextPool.release(ctx)
		}
		return false
	}
	return true
}

// DispatchTask inserts cr into the id→routine registry and its resolved
// group's priority bucket, under the per-id mutex that serializes
// concurrent dispatch/remove of the same id.
func (s *Scheduler) DispatchTask(cr *Coroutine) bool {
	mu := s.idMutex(cr.id)
	mu.Lock()
	defer mu.Unlock()

	s.routinesMu.Lock()
	if _, exists := s.routines[cr.id]; exists {
		s.routinesMu.Unlock()
		LogWarn(getGlobalLogger(), "scheduler", (&DuplicateDispatchError{Name: cr.name, ID: cr.id}).Error(), nil)
		return false
	}

	priority, groupName := s.resolvePlacement(cr.name)
	if _, configured := s.taskPlacements[cr.name]; !configured {
		// No per-task override: keep the priority the routine was built with.
		priority = cr.priority
	}
	if priority >= MaxPriority {
		clamped := MaxPriority - 1
		LogWarn(getGlobalLogger(), "scheduler", (&PriorityOutOfRangeError{Requested: priority, Clamped: clamped}).Error(), map[string]interface{}{
			"routine": cr.name,
		})
		priority = clamped
	}
	cr.priority = priority
	cr.groupName = groupName

	s.routines[cr.id] = cr
	s.routinesMu.Unlock()

	g := s.groups[groupName]
	if g == nil {
		g = s.groups[s.defaultGroupName]
	}
	g.dispatch(cr)
	return true
}

func (s *Scheduler) resolvePlacement(name string) (priority int, groupName string) {
	if tc, ok := s.taskPlacements[name]; ok {
		g := tc.groupName
		if g == "" {
			g = s.defaultGroupName
		}
		return tc.priority, g
	}
	return 0, s.defaultGroupName
}

// NotifyProcessor flips a DATA_WAIT/IO_WAIT routine's update flag and
// notifies its group. No-op (returns true) if the scheduler is stopped;
// returns false for an unknown id.
func (s *Scheduler) NotifyProcessor(id uint64) bool {
	if s.stopped.Load() {
		return true
	}

	s.routinesMu.RLock()
	cr, ok := s.routines[id]
	s.routinesMu.RUnlock()
	if !ok {
		return false
	}

	switch cr.State() {
	case RoutineDataWait, RoutineIOWait:
		cr.SetUpdateFlag()
	}

	g := s.groups[cr.groupName]
	if g != nil {
		g.Notify()
	}
	return true
}

// RemoveTask hashes name to its id and removes the corresponding routine.
func (s *Scheduler) RemoveTask(name string) bool {
	return s.RemoveCoroutine(RoutineIDFromName(name))
}

// RemoveCoroutine marks the routine stopped, waits for any in-progress
// Resume to finish, and erases it from the registry and its group bucket.
func (s *Scheduler) RemoveCoroutine(id uint64) bool {
	mu := s.idMutex(id)
	mu.Lock()
	defer mu.Unlock()

	s.routinesMu.Lock()
	cr, ok := s.routines[id]
	if ok {
		delete(s.routines, id)
	}
	s.routinesMu.Unlock()
	if !ok {
		return false
	}

	g := s.groups[cr.groupName]
	removed := g != nil && g.RemoveCoroutine(cr)
	if removed && cr.ContextRecyclable() {
		s.contextPool.release(cr.ctx)
	}
	return removed
}

// reapFinished is a Processor's onFinished callback: it erases a naturally
// RoutineFinished routine from the id registry and its group's bucket, and
// returns its RoutineContext to the pool if recyclable. Unlike
// RemoveCoroutine, it never calls cr.Stop() or spin-waits for the
// scheduling lock — the Processor calling this has already released it,
// and a RoutineFinished routine never runs again, so there is nothing left
// to race with other than a concurrent, externally-initiated
// RemoveCoroutine/RemoveTask for the same id.
func (s *Scheduler) reapFinished(cr *Coroutine) {
	mu := s.idMutex(cr.id)
	mu.Lock()
	defer mu.Unlock()

	s.routinesMu.Lock()
	_, existed := s.routines[cr.id]
	if existed {
		delete(s.routines, cr.id)
	}
	s.routinesMu.Unlock()
	if !existed {
		// A concurrent RemoveCoroutine/RemoveTask already claimed this id
		// and owns tearing it down; nothing left for us to do.
		return
	}

	if g := s.groups[cr.groupName]; g != nil {
		g.removeFinished(cr)
	}
	if cr.ContextRecyclable() {
		s.contextPool.release(cr.ctx)
	}
}

// TaskPoolSize returns the total configured worker count across all groups.
func (s *Scheduler) TaskPoolSize() int {
	return len(s.processors)
}

var asyncTaskCounter atomic.Uint64

// Async submits fn as a one-shot routine, used by the timing wheel to run
// expired callbacks on the scheduler instead of on its own tick goroutine.
func (s *Scheduler) Async(fn func()) bool {
	n := asyncTaskCounter.Add(1)
	name := fmt.Sprintf("__async_%d", n)
	return s.CreateTask(name, NewPlainFactory(fn))
}

// Shutdown stops every Processor (which in turn shuts down its group's
// condition variable) and marks the scheduler itself stopped so subsequent
// NotifyProcessor calls become no-ops. Idempotent: a second call is a no-op
// returning nil. Any panic recovered while stopping an individual Processor
// is collected rather than propagated, so one stuck Processor doesn't stop
// the rest from being asked to stop too; the caller gets every failure back
// together as an *AggregateError.
func (s *Scheduler) Shutdown() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	for _, g := range s.groups {
		g.Shutdown()
	}

	var errs []error
	for _, p := range s.processors {
		if err := stopProcessor(p); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: errs}
}

// stopProcessor runs p.Stop() with a panic recovered into a *PanicError,
// so a single misbehaving Processor can't prevent Shutdown from asking the
// rest of the pool to stop.
func stopProcessor(p *Processor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Name: p.Name(), Value: r}
		}
	}()
	p.Stop()
	return nil
}

var (
	schedulerSingleton   *Scheduler
	schedulerSingletonMu sync.Mutex
	schedulerOnce        sync.Once
	schedulerInitErr     error
)

// Instance returns the process-wide Scheduler singleton, lazily constructed
// from conf/<DefaultGroupName>.conf on first call (double-checked per
// scheduler_factory.cc's atomic<Scheduler*> pattern, realized here with
// sync.Once).
func Instance() (*Scheduler, error) {
	schedulerOnce.Do(func() {
		schedulerSingletonMu.Lock()
		defer schedulerSingletonMu.Unlock()
		cfg, err := LoadConfig(fmt.Sprintf("conf/%s.conf", DefaultGroupName))
		if err != nil {
			schedulerInitErr = err
			return
		}
		schedulerSingleton, schedulerInitErr = NewFromConfig(cfg)
	})
	return schedulerSingleton, schedulerInitErr
}
