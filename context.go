package bsync

// TaskContext is the shared context handed to every task of a stage.
// All tasks of one stage receive the same snapshot; results a concurrent
// sibling merges during the stage only become visible from the next stage
// on. Mutating Args from inside a task is possible but carries no
// visibility or ordering guarantee toward siblings.
//
// The context carries a back-reference to the sequence that exposes only
// the termination capability, never the internal accumulators.
type TaskContext struct {
	// Args holds the initial arguments overlaid with the merged results
	// of every stage that completed before this one.
	Args map[string]any

	// Logger is the sequence's logger, available for task-level output.
	Logger Logger

	seq *Sequence
}

// Value looks up a single argument by key.
func (c *TaskContext) Value(key string) (any, bool) {
	v, ok := c.Args[key]
	return v, ok
}

// Terminate asks the owning sequence to stop after the current stage.
// Tasks already dispatched keep running; no later stage will start.
func (c *TaskContext) Terminate() {
	c.seq.Terminate()
}
