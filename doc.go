// Package taskrt is a cooperative task runtime for latency-sensitive,
// multi-threaded robotics middleware: stackful-style coroutines multiplexed
// onto a small pool of CPU-pinned worker Processors, a priority scheduler
// grouping Processors by name, a data-arrival notification bus, and a
// two-level timing wheel for software timers.
//
// A typical embedder builds a Scheduler once (New, NewFromConfig, or the
// process-wide Instance), dispatches routines onto it with CreateTask, and
// wakes data-driven routines from I/O callbacks with NotifyProcessor.
package taskrt
