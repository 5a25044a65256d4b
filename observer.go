package bsync

import "time"

// Observer receives lifecycle events from a running sequence. It is the
// diagnostic surface of the engine: metrics, tracing, and run journals
// all attach through it. Observers must not block; they are invoked
// inline on the goroutine processing the completion.
type Observer interface {
	// SequenceStarted fires once when Go begins execution.
	SequenceStarted(id string, stageCount int)

	// StageStarted fires before the tasks of a stage are dispatched.
	StageStarted(id string, index, taskCount int)

	// TaskCompleted fires for every task completion, with the error the
	// task reported (nil on success).
	TaskCompleted(id string, index int, err error)

	// KeyCollision fires when a merged result overwrites an existing key.
	KeyCollision(id string, key string)

	// StageCompleted fires when the last task of a stage has reported in.
	StageCompleted(id string, index int, elapsed time.Duration)

	// SequenceCompleted fires exactly once per run, with the accumulated
	// error and the final merged data.
	SequenceCompleted(id string, err error, data map[string]any, elapsed time.Duration)
}

// BaseObserver is a no-op Observer meant for embedding, so custom
// observers only implement the events they care about.
type BaseObserver struct{}

// SequenceStarted implements Observer.
func (BaseObserver) SequenceStarted(string, int) {}

// StageStarted implements Observer.
func (BaseObserver) StageStarted(string, int, int) {}

// TaskCompleted implements Observer.
func (BaseObserver) TaskCompleted(string, int, error) {}

// KeyCollision implements Observer.
func (BaseObserver) KeyCollision(string, string) {}

// StageCompleted implements Observer.
func (BaseObserver) StageCompleted(string, int, time.Duration) {}

// SequenceCompleted implements Observer.
func (BaseObserver) SequenceCompleted(string, error, map[string]any, time.Duration) {}
