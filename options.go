package taskrt

// schedulerOptions holds configuration applied when constructing a Scheduler.
type schedulerOptions struct {
	routineNum         int
	defaultProcNum     int
	processLevelCPUSet string
	groups             []groupSpec
}

// groupSpec names one group built by WithGroup, carrying its resolved
// groupOptions until newScheduler turns it into a GroupConf.
type groupSpec struct {
	name string
	opts *groupOptions
}

// SchedulerOption configures a Scheduler instance.
type SchedulerOption interface {
	applyScheduler(*schedulerOptions) error
}

type schedulerOptionImpl struct {
	applySchedulerFunc func(*schedulerOptions) error
}

func (o *schedulerOptionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applySchedulerFunc(opts)
}

// WithRoutineNum sets the configured routine_num for the shared
// RoutineContext pool; the pool's capacity is the larger of this and the
// Scheduler's total Processor count. Coroutines created while the pool is
// empty fall back to an ad hoc, unpooled context and log a
// ContextPoolExhaustedError.
func WithRoutineNum(n int) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.routineNum = n
		return nil
	}}
}

// WithDefaultProcNum sets how many Processors are created for the default
// group when no explicit group configuration is supplied.
func WithDefaultProcNum(n int) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.defaultProcNum = n
		return nil
	}}
}

// WithProcessLevelCPUSet sets a cpuset string (see ParseCPUSet for the
// accepted format) that the Processors of every group without a cpuset of
// its own are pinned to, following that group's affinity mode. Groups that
// set their own cpuset ignore it, and no thread other than a Processor's is
// pinned to it.
func WithProcessLevelCPUSet(cpuset string) SchedulerOption {
	return &schedulerOptionImpl{func(opts *schedulerOptions) error {
		opts.processLevelCPUSet = cpuset
		return nil
	}}
}

// WithGroup adds a named processor group to the Scheduler being built,
// configured by the given GroupOption values. A Scheduler built with no
// WithGroup calls falls back to a single DefaultGroupName group sized by
// WithDefaultProcNum.
func WithGroup(name string, opts ...GroupOption) SchedulerOption {
	return &schedulerOptionImpl{func(sopts *schedulerOptions) error {
		gopts, err := resolveGroupOptions(opts)
		if err != nil {
			return err
		}
		sopts.groups = append(sopts.groups, groupSpec{name: name, opts: gopts})
		return nil
	}}
}

// resolveSchedulerOptions applies SchedulerOption instances over defaults.
func resolveSchedulerOptions(opts []SchedulerOption) (*schedulerOptions, error) {
	cfg := &schedulerOptions{
		defaultProcNum: 2,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// groupOptions holds per-group configuration: how many Processors the group
// owns, which CPUs they may run on, and what OS scheduling policy to apply.
type groupOptions struct {
	procNum       int
	cpuset        string
	affinity      string // "range" or "1to1"
	schedPolicy   string // "SCHED_FIFO", "SCHED_RR", or "SCHED_OTHER"
	schedPriority int
}

// GroupOption configures a single named processor group.
type GroupOption interface {
	applyGroup(*groupOptions) error
}

type groupOptionImpl struct {
	applyGroupFunc func(*groupOptions) error
}

func (o *groupOptionImpl) applyGroup(opts *groupOptions) error {
	return o.applyGroupFunc(opts)
}

// WithProcNum sets how many Processors a group owns.
func WithProcNum(n int) GroupOption {
	return &groupOptionImpl{func(opts *groupOptions) error {
		opts.procNum = n
		return nil
	}}
}

// WithCPUSet restricts a group's Processors to the given cpuset string.
func WithCPUSet(cpuset string) GroupOption {
	return &groupOptionImpl{func(opts *groupOptions) error {
		opts.cpuset = cpuset
		return nil
	}}
}

// WithAffinity selects how a group's cpuset is distributed across its
// Processors: "range" pins every Processor to the full cpuset, "1to1" pins
// the Nth Processor to the Nth CPU in the set.
func WithAffinity(mode string) GroupOption {
	return &groupOptionImpl{func(opts *groupOptions) error {
		opts.affinity = mode
		return nil
	}}
}

// WithSchedPolicy sets the OS scheduling policy applied to a group's
// Processor threads: "SCHED_FIFO", "SCHED_RR", or "SCHED_OTHER".
func WithSchedPolicy(policy string) GroupOption {
	return &groupOptionImpl{func(opts *groupOptions) error {
		opts.schedPolicy = policy
		return nil
	}}
}

// WithSchedPriority sets the real-time priority (for SCHED_FIFO/SCHED_RR) or
// the nice-style priority (for SCHED_OTHER) applied to a group's threads.
func WithSchedPriority(priority int) GroupOption {
	return &groupOptionImpl{func(opts *groupOptions) error {
		opts.schedPriority = priority
		return nil
	}}
}

// resolveGroupOptions applies GroupOption instances over defaults.
func resolveGroupOptions(opts []GroupOption) (*groupOptions, error) {
	cfg := &groupOptions{
		procNum:     1,
		affinity:    "range",
		schedPolicy: "SCHED_OTHER",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyGroup(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
