package taskrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSchedulerOptions_Defaults(t *testing.T) {
	cfg, err := resolveSchedulerOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.defaultProcNum)
	assert.Equal(t, 0, cfg.routineNum)
	assert.Empty(t, cfg.processLevelCPUSet)
	assert.Empty(t, cfg.groups)
}

func TestResolveSchedulerOptions_Overrides(t *testing.T) {
	cfg, err := resolveSchedulerOptions([]SchedulerOption{
		WithRoutineNum(64),
		WithDefaultProcNum(4),
		WithProcessLevelCPUSet("0-3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.routineNum)
	assert.Equal(t, 4, cfg.defaultProcNum)
	assert.Equal(t, "0-3", cfg.processLevelCPUSet)
}

func TestResolveSchedulerOptions_NilOptionIgnored(t *testing.T) {
	cfg, err := resolveSchedulerOptions([]SchedulerOption{nil, WithDefaultProcNum(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.defaultProcNum)
}

func TestWithGroup_AccumulatesGroupSpecs(t *testing.T) {
	cfg, err := resolveSchedulerOptions([]SchedulerOption{
		WithGroup("io", WithProcNum(2), WithCPUSet("0-1")),
		WithGroup("control", WithProcNum(1), WithSchedPolicy("SCHED_FIFO"), WithSchedPriority(10)),
	})
	require.NoError(t, err)
	require.Len(t, cfg.groups, 2)

	assert.Equal(t, "io", cfg.groups[0].name)
	assert.Equal(t, 2, cfg.groups[0].opts.procNum)
	assert.Equal(t, "0-1", cfg.groups[0].opts.cpuset)

	assert.Equal(t, "control", cfg.groups[1].name)
	assert.Equal(t, "SCHED_FIFO", cfg.groups[1].opts.schedPolicy)
	assert.Equal(t, 10, cfg.groups[1].opts.schedPriority)
}

func TestResolveGroupOptions_Defaults(t *testing.T) {
	cfg, err := resolveGroupOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.procNum)
	assert.Equal(t, "range", cfg.affinity)
	assert.Equal(t, "SCHED_OTHER", cfg.schedPolicy)
}

func TestResolveGroupOptions_Overrides(t *testing.T) {
	cfg, err := resolveGroupOptions([]GroupOption{
		WithProcNum(3),
		WithCPUSet("2-5"),
		WithAffinity("1to1"),
		WithSchedPolicy("SCHED_RR"),
		WithSchedPriority(50),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.procNum)
	assert.Equal(t, "2-5", cfg.cpuset)
	assert.Equal(t, "1to1", cfg.affinity)
	assert.Equal(t, "SCHED_RR", cfg.schedPolicy)
	assert.Equal(t, 50, cfg.schedPriority)
}
