package taskrt

// DataVisitor1..4 are the typed, non-blocking input contracts a routine
// factory drives. TryFetch attempts to pull one value from each of the
// visitor's channels atomically: it either returns every value with ok=true,
// or returns ok=false having consumed nothing.
//
// The original implementation hand-writes one CreateRoutineFactory overload
// per arity (1 through 4 message types); Go generics make that arity-specific
// boilerplate unnecessary while preserving the same call-site ergonomics —
// see NewRoutineFactory1..4 below.
type (
	DataVisitor1[T1 any] interface {
		TryFetch() (T1, bool)
	}
	DataVisitor2[T1, T2 any] interface {
		TryFetch() (T1, T2, bool)
	}
	DataVisitor3[T1, T2, T3 any] interface {
		TryFetch() (T1, T2, T3, bool)
	}
	DataVisitor4[T1, T2, T3, T4 any] interface {
		TryFetch() (T1, T2, T3, T4, bool)
	}
)

// RoutineBody is the function type a dispatched Coroutine ultimately runs.
type RoutineBody func(c *Coroutine)

// NewPlainFactory wraps a finite, non-data-driven function so it can be
// dispatched as a Coroutine body. Unlike the data-driven factories below,
// the body runs once and the routine then finishes normally, so its
// RoutineContext is recyclable when it completes (see Coroutine.ContextRecyclable).
func NewPlainFactory(fn func()) RoutineBody {
	return func(c *Coroutine) {
		fn()
	}
}

// NewRoutineFactory1 builds a data-driven routine body from a single-input
// visitor: each iteration marks the routine DATA_WAIT, attempts a fetch,
// and on success invokes fn before yielding READY (so the scheduler
// requeues fairly at the tail of its priority bucket).
func NewRoutineFactory1[T1 any](dv DataVisitor1[T1], fn func(T1)) RoutineBody {
	return func(c *Coroutine) {
		for {
			c.state.Store(RoutineDataWait)
			v1, ok := dv.TryFetch()
			if !ok {
				c.YieldUnchanged()
				continue
			}
			fn(v1)
			c.Yield(RoutineReady)
		}
	}
}

// NewRoutineFactory2 is the two-input analogue of NewRoutineFactory1.
func NewRoutineFactory2[T1, T2 any](dv DataVisitor2[T1, T2], fn func(T1, T2)) RoutineBody {
	return func(c *Coroutine) {
		for {
			c.state.Store(RoutineDataWait)
			v1, v2, ok := dv.TryFetch()
			if !ok {
				c.YieldUnchanged()
				continue
			}
			fn(v1, v2)
			c.Yield(RoutineReady)
		}
	}
}

// NewRoutineFactory3 is the three-input analogue of NewRoutineFactory1.
func NewRoutineFactory3[T1, T2, T3 any](dv DataVisitor3[T1, T2, T3], fn func(T1, T2, T3)) RoutineBody {
	return func(c *Coroutine) {
		for {
			c.state.Store(RoutineDataWait)
			v1, v2, v3, ok := dv.TryFetch()
			if !ok {
				c.YieldUnchanged()
				continue
			}
			fn(v1, v2, v3)
			c.Yield(RoutineReady)
		}
	}
}

// NewRoutineFactory4 is the four-input analogue of NewRoutineFactory1.
func NewRoutineFactory4[T1, T2, T3, T4 any](dv DataVisitor4[T1, T2, T3, T4], fn func(T1, T2, T3, T4)) RoutineBody {
	return func(c *Coroutine) {
		for {
			c.state.Store(RoutineDataWait)
			v1, v2, v3, v4, ok := dv.TryFetch()
			if !ok {
				c.YieldUnchanged()
				continue
			}
			fn(v1, v2, v3, v4)
			c.Yield(RoutineReady)
		}
	}
}
