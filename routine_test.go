package taskrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContextPool_PreallocatesSize(t *testing.T) {
	p := newContextPool(3)
	assert.Equal(t, 3, p.Size())

	var acquired []*RoutineContext
	for i := 0; i < 3; i++ {
		ctx, ok := p.acquire()
		require.True(t, ok)
		acquired = append(acquired, ctx)
	}

	_, ok := p.acquire()
	assert.False(t, ok, "pool should report exhaustion past its configured size")

	for _, ctx := range acquired {
		p.release(ctx)
	}
	_, ok = p.acquire()
	assert.True(t, ok, "released contexts should be acquirable again")
}

func TestContextPool_ReleaseBeyondCapacityIsDropped(t *testing.T) {
	p := newContextPool(1)
	ctx, ok := p.acquire()
	require.True(t, ok)

	p.release(ctx)
	extra := newRoutineContext()
	p.release(extra) // pool already at capacity, should be silently dropped

	first, ok := p.acquire()
	require.True(t, ok)
	assert.Same(t, ctx, first)

	_, ok = p.acquire()
	assert.False(t, ok)
}

func TestNewContextPool_ZeroSize(t *testing.T) {
	p := newContextPool(0)
	assert.Equal(t, 0, p.Size())
	_, ok := p.acquire()
	assert.False(t, ok)
}

func TestNewContextPool_NegativeSizeClampsToZero(t *testing.T) {
	p := newContextPool(-5)
	assert.Equal(t, 0, p.Size())
}
