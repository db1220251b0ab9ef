package taskrt

import "sync"

// RoutineContext is the Go-native stand-in for a stackful coroutine's saved
// execution context. Where the original spins up a fixed-size mmap'd stack
// and swaps stack pointers by hand, a RoutineContext instead owns the pair
// of unbuffered channels used to rendezvous between a Processor goroutine
// and the dedicated goroutine running the routine's body (see Coroutine.Resume).
//
// A RoutineContext is reusable across routines: once a routine is finished or
// removed and its goroutine is no longer parked on the context (see
// Coroutine.ContextRecyclable), its context is returned to the pool, whether
// or not it came from there, so the next dispatched routine can reuse the
// channel pair instead of allocating new ones.
type RoutineContext struct {
	resumeCh chan struct{}
	yieldCh  chan struct{}
}

func newRoutineContext() *RoutineContext {
	return &RoutineContext{
		resumeCh: make(chan struct{}),
		yieldCh:  make(chan struct{}),
	}
}

// contextPool is the bounded object pool described in §3: capacity is set
// once at scheduler construction to max(total Processor count across all
// groups, configured routine_num); no per-component count enters that
// figure. Exhaustion is not an error; callers fall back to an ad hoc
// RoutineContext and log a ContextPoolExhaustedError.
type contextPool struct {
	mu   sync.Mutex
	free []*RoutineContext
	size int
}

func newContextPool(size int) *contextPool {
	if size < 0 {
		size = 0
	}
	p := &contextPool{size: size, free: make([]*RoutineContext, 0, size)}
	for i := 0; i < size; i++ {
		p.free = append(p.free, newRoutineContext())
	}
	return p
}

// acquire pops a context from the pool. ok is false if the pool is
// exhausted, in which case the caller is responsible for allocating a
// fresh, unpooled RoutineContext.
func (p *contextPool) acquire() (ctx *RoutineContext, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return nil, false
	}
	ctx = p.free[n-1]
	p.free = p.free[:n-1]
	return ctx, true
}

// release returns a context for reuse. It accepts any context, including one
// allocated ad hoc on pool exhaustion, while the pool holds fewer than its
// configured capacity; past that the context is dropped and left to the
// garbage collector.
func (p *contextPool) release(ctx *RoutineContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < p.size {
		p.free = append(p.free, ctx)
	}
}

// Size returns the pool's configured capacity.
func (p *contextPool) Size() int {
	return p.size
}
