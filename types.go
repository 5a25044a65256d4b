package bsync

// Task is a single unit of callback-style work within a sequence.
// A task receives the shared context for its stage and a completion
// function. It must invoke complete exactly once, either synchronously
// before returning or later from any goroutine. The data passed to
// complete is merged into the sequence's accumulated results and becomes
// visible to every later stage.
type Task func(ctx *TaskContext, complete CompleteFunc)

// CompleteFunc reports the outcome of a task or of an entire sequence.
// err may be nil; data may be nil when the task produced nothing to merge.
type CompleteFunc func(err error, data map[string]any)

// Stage is one step of a declared plan. A stage with a single task runs
// sequentially; a stage with several tasks is a parallel group whose
// members are all dispatched before any completion is awaited.
type Stage struct {
	// Tasks is the ordered, fixed set of tasks belonging to this stage.
	Tasks []Task
}

// NewStage creates a stage from the given tasks. One task makes a
// sequential step, several make a parallel group.
func NewStage(tasks ...Task) Stage {
	return Stage{Tasks: tasks}
}

// RunConfig is the canonical configuration for a sequence run.
// It is immutable once accepted by New.
type RunConfig struct {
	// Stages is the ordered plan to execute. Must be non-empty.
	Stages []Stage

	// InitialArgs seeds the shared context visible to every stage.
	InitialArgs map[string]any

	// OnComplete is the terminal callback for the whole run. It is invoked
	// exactly once, with the accumulated error (nil on full success) and
	// the union of all merged stage results. A nil OnComplete is valid and
	// means the caller does not want the outcome reported.
	OnComplete CompleteFunc
}

// Logger provides a simple interface for sequence logging
type Logger interface {
	// Debug logs a message at debug level
	Debug(format string, args ...interface{})

	// Info logs a message at info level
	Info(format string, args ...interface{})

	// Warn logs a message at warning level
	Warn(format string, args ...interface{})

	// Error logs a message at error level
	Error(format string, args ...interface{})
}

// Option configures a Sequence at construction time.
type Option func(*Sequence)

// WithLogger sets the logger used by the sequence and handed to tasks
// through their context.
func WithLogger(logger Logger) Option {
	return func(s *Sequence) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver attaches one or more observers to the sequence lifecycle.
func WithObserver(observers ...Observer) Option {
	return func(s *Sequence) {
		s.observers = append(s.observers, observers...)
	}
}
