// Package bsync drives ordered plans of asynchronous, callback-style
// tasks to completion.
//
// A plan is a list of stages executed strictly in order. A stage holds
// either a single task or a parallel group of tasks; group members are
// all dispatched before any completion is awaited, and their results are
// fanned back in before the next stage starts. An accumulating shared
// context threads through the run: the initial arguments plus everything
// merged so far are handed to each stage's tasks.
//
// Core components include:
//   - Sequence: validates a RunConfig and drives it stage by stage
//   - Task: an opaque (context, complete) callable supplied by the host
//   - TaskContext: the per-stage context snapshot, carrying the
//     termination capability
//   - Observer: the diagnostic hook surface for metrics, tracing, and
//     run journals
//
// Task errors never halt the run by themselves: they accumulate and are
// passed to the terminal callback, which fires exactly once, on natural
// completion or after Terminate stops future stages.
package bsync
