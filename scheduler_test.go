package taskrt

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutineIDFromName_DeterministicAndDistinct(t *testing.T) {
	assert.Equal(t, RoutineIDFromName("alpha"), RoutineIDFromName("alpha"))
	assert.NotEqual(t, RoutineIDFromName("alpha"), RoutineIDFromName("beta"))
}

func TestScheduler_New_DefaultGroup(t *testing.T) {
	sched, err := New(WithDefaultProcNum(2))
	require.NoError(t, err)
	defer sched.Shutdown()

	assert.Equal(t, 2, sched.TaskPoolSize())
	assert.Contains(t, sched.groups, DefaultGroupName)
}

func TestScheduler_New_WithGroups(t *testing.T) {
	sched, err := New(
		WithGroup("io", WithProcNum(2)),
		WithGroup("control", WithProcNum(1)),
	)
	require.NoError(t, err)
	defer sched.Shutdown()

	assert.Equal(t, 3, sched.TaskPoolSize())
	assert.Contains(t, sched.groups, "io")
	assert.Contains(t, sched.groups, "control")
}

func TestScheduler_CreateTask_RunsBody(t *testing.T) {
	sched, err := New(WithDefaultProcNum(1))
	require.NoError(t, err)
	defer sched.Shutdown()

	var ran atomic.Bool
	ok := sched.CreateTask("job", NewPlainFactory(func() { ran.Store(true) }))
	require.True(t, ok)

	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

func TestScheduler_CreateTask_DuplicateNameRejected(t *testing.T) {
	sched, err := New(WithDefaultProcNum(1))
	require.NoError(t, err)
	defer sched.Shutdown()

	// DispatchTask inserts into the id registry synchronously, before the
	// routine's goroutine ever runs, so the duplicate check is race-free
	// even against an instantly-finishing body.
	require.True(t, sched.CreateTask("dup", NewPlainFactory(func() {})))
	assert.False(t, sched.CreateTask("dup", NewPlainFactory(func() {})))
}

func TestScheduler_RemoveTask_StopsFutureExecution(t *testing.T) {
	sched, err := New(WithDefaultProcNum(1))
	require.NoError(t, err)
	defer sched.Shutdown()

	var count atomic.Int64
	ok := sched.CreateTask("loop", NewRoutineFactory1[int](countingVisitor{count: &count}, func(int) {}))
	require.True(t, ok)

	require.Eventually(t, func() bool { return count.Load() > 0 }, time.Second, time.Millisecond)

	removed := sched.RemoveTask("loop")
	assert.True(t, removed)
}

type countingVisitor struct {
	count *atomic.Int64
}

func (v countingVisitor) TryFetch() (int, bool) {
	v.count.Add(1)
	return 0, false
}

func TestScheduler_RemoveTask_UnknownNameReturnsFalse(t *testing.T) {
	sched, err := New(WithDefaultProcNum(1))
	require.NoError(t, err)
	defer sched.Shutdown()

	assert.False(t, sched.RemoveTask("never-existed"))
}

func TestScheduler_NotifyProcessor_UnknownIDReturnsFalse(t *testing.T) {
	sched, err := New(WithDefaultProcNum(1))
	require.NoError(t, err)
	defer sched.Shutdown()

	assert.False(t, sched.NotifyProcessor(999))
}

func TestScheduler_Async_SubmitsOneShot(t *testing.T) {
	sched, err := New(WithDefaultProcNum(1))
	require.NoError(t, err)
	defer sched.Shutdown()

	var ran atomic.Bool
	ok := sched.Async(func() { ran.Store(true) })
	require.True(t, ok)

	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

func TestScheduler_DispatchTask_ClampsOutOfRangePriority(t *testing.T) {
	sched, err := New(WithDefaultProcNum(1))
	require.NoError(t, err)
	defer sched.Shutdown()

	cr := newCoroutine(RoutineIDFromName("high-prio"), "high-prio", "", 1000, newRoutineContext(), func(c *Coroutine) {
		c.HangUp()
	})
	ok := sched.DispatchTask(cr)
	require.True(t, ok)
	assert.Equal(t, MaxPriority-1, cr.Priority())
}

func TestScheduler_NewFromConfig_RejectsChoreography(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SchedulerConf.Policy = "choreography"

	_, err := NewFromConfig(cfg)
	assert.Error(t, err)
}

func TestScheduler_NewFromConfig_BuildsConfiguredGroups(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SchedulerConf.ClassicConf.Groups = []GroupConf{
		{Name: "io", ProcessorNum: 2, Tasks: []TaskConf{{Name: "reader", Prio: 3}}},
	}
	require.NoError(t, cfg.Validate())

	sched, err := NewFromConfig(cfg)
	require.NoError(t, err)
	defer sched.Shutdown()

	assert.Equal(t, 2, sched.TaskPoolSize())
	assert.Contains(t, sched.groups, "io")

	priority, group := sched.resolvePlacement("reader")
	assert.Equal(t, 3, priority)
	assert.Equal(t, "io", group)
}

func TestScheduler_Shutdown_IsIdempotent(t *testing.T) {
	sched, err := New(WithDefaultProcNum(1))
	require.NoError(t, err)

	assert.NoError(t, sched.Shutdown())
	assert.NoError(t, sched.Shutdown()) // must not panic or block on a second call
}

func TestScheduler_Async_ReapsFinishedRoutinesInsteadOfLeakingThem(t *testing.T) {
	sched, err := New(WithDefaultProcNum(1))
	require.NoError(t, err)
	defer sched.Shutdown()

	poolSize := sched.contextPool.Size()
	require.Greater(t, poolSize, 0)

	// Fire well more one-shot routines than the pool can hold at once.
	// Each one runs to completion almost immediately; if finished routines
	// were never reaped, every fire past poolSize would permanently drain
	// the pool and the registry would grow without bound.
	var fired atomic.Int64
	for i := 0; i < poolSize*5; i++ {
		ok := sched.Async(func() { fired.Add(1) })
		require.True(t, ok)
	}

	require.Eventually(t, func() bool { return fired.Load() == int64(poolSize*5) }, 2*time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		sched.routinesMu.RLock()
		defer sched.routinesMu.RUnlock()
		return len(sched.routines) == 0
	}, 2*time.Second, time.Millisecond, "finished async routines must be reaped from the registry")

	// A pool that actually recycles contexts should still be able to
	// satisfy pooled acquisitions after far more fires than its size.
	_, pooled := sched.contextPool.acquire()
	assert.True(t, pooled, "contextPool should not be permanently exhausted once finished routines are reaped")
}

func TestScheduler_CreateTask_PoolExhaustionLogsSpecLiteral(t *testing.T) {
	sched, err := New(WithDefaultProcNum(1))
	require.NoError(t, err)
	defer sched.Shutdown()

	// Hold every pooled context so the next CreateTask must fall back to an
	// ad hoc allocation and log the exhaustion warning.
	held := make([]*RoutineContext, 0, sched.contextPool.Size())
	for {
		ctx, pooled := sched.contextPool.acquire()
		if !pooled {
			break
		}
		held = append(held, ctx)
	}
	require.NotEmpty(t, held)

	var buf bytes.Buffer
	SetStructuredLogger(NewWriterLogger(LevelDebug, &buf))
	defer SetStructuredLogger(nil)

	ok := sched.CreateTask("pool-exhausted-probe", NewPlainFactory(func() {}))
	require.True(t, ok)

	assert.Contains(t, buf.String(), "Maximum routine context number exceeded")
}

func TestNewScheduler_1to1AffinityLeavesExcessProcessorsUnpinned(t *testing.T) {
	sched, err := newScheduler(0, "", "g", nil, []GroupConf{
		{Name: "g", ProcessorNum: 3, CPUSet: "0-1", Affinity: "1to1", ProcessorPolicy: "SCHED_OTHER"},
	})
	require.NoError(t, err)
	defer sched.Shutdown()

	require.Len(t, sched.processors, 3)
	assert.Equal(t, []int{0}, sched.processors[0].cpus)
	assert.Equal(t, []int{1}, sched.processors[1].cpus)
	assert.Nil(t, sched.processors[2].cpus, "processor index past the cpuset must be left unpinned, not wrapped")
}
