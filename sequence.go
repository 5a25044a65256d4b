package bsync

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

// Errors reported when a RunConfig fails validation.
var (
	// ErrNoStages means the configuration declared an empty plan.
	ErrNoStages = errors.New("run configuration has no stages")

	// ErrEmptyStage means a stage declared no tasks at all.
	ErrEmptyStage = errors.New("stage has no tasks")

	// ErrNilTask means a stage contained a nil task value.
	ErrNilTask = errors.New("stage contains a nil task")
)

// Sequence drives an ordered plan of stages to completion. Stages execute
// strictly in declared order; a stage holding several tasks is dispatched
// as a parallel group and the sequence fans its results back in before
// advancing. Results merge into an accumulator that, combined with the
// initial arguments, forms the context handed to each later stage.
//
// A Sequence runs at most once. Execution starts with Go and ends either
// when the stage list is exhausted or when Terminate is called; in both
// cases the terminal callback fires exactly once.
type Sequence struct {
	// ID is the unique identifier for this run.
	ID string

	stages      []Stage
	initialArgs map[string]any
	onComplete  CompleteFunc

	logger    Logger
	observers []Observer

	// mu guards all run state below. Tasks may invoke their completion
	// from arbitrary goroutines, so fan-in must be serialized.
	mu          deadlock.Mutex
	current     int
	pendingData map[string]any
	pendingErrs []error
	remaining   int
	started     bool
	completed   bool
	configErr   error
	startedAt   time.Time
	stageStart  time.Time
}

// New validates the configuration and returns a Sequence ready to run.
//
// Validation failures are fatal to the run before it starts: the error is
// logged, the terminal callback (if any) is invoked once with (err, nil),
// and Go becomes a no-op. No task is ever executed for an invalid
// configuration.
func New(cfg RunConfig, opts ...Option) *Sequence {
	s := &Sequence{
		ID:          uuid.NewString(),
		stages:      cfg.Stages,
		initialArgs: cfg.InitialArgs,
		onComplete:  cfg.OnComplete,
		logger:      NewDefaultLogger(),
		pendingData: make(map[string]any),
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := validate(cfg); err != nil {
		s.configErr = err
		s.completed = true
		s.logger.Error("sequence %s: invalid run configuration: %v", s.ID, err)
		if s.onComplete != nil {
			s.onComplete(err, nil)
		}
	}

	return s
}

// validate checks the shape of a run configuration.
func validate(cfg RunConfig) error {
	if len(cfg.Stages) == 0 {
		return ErrNoStages
	}
	for i, stage := range cfg.Stages {
		if len(stage.Tasks) == 0 {
			return fmt.Errorf("stage %d: %w", i, ErrEmptyStage)
		}
		for j, task := range stage.Tasks {
			if task == nil {
				return fmt.Errorf("stage %d, task %d: %w", i, j, ErrNilTask)
			}
		}
	}
	return nil
}

// Err returns the construction error recorded during New, if any.
func (s *Sequence) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configErr
}

// Go starts execution at stage 0. Calling Go more than once, or on a
// sequence that failed validation or already finished, is a no-op.
func (s *Sequence) Go() {
	s.mu.Lock()
	if s.started || s.completed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("sequence %s: starting, %d stage(s)", s.ID, len(s.stages))
	for _, o := range s.observers {
		o.SequenceStarted(s.ID, len(s.stages))
	}

	s.processStage()
}

// Terminate prevents any future stage from starting. Tasks already
// dispatched in the current stage keep running and their completions are
// still merged; once the last of them reports in, the terminal callback
// fires with everything accumulated so far. Termination is permanent; a
// terminated sequence cannot be restarted.
func (s *Sequence) Terminate() {
	s.mu.Lock()
	if !s.completed && s.current < len(s.stages) {
		s.logger.Info("sequence %s: terminated at stage %d/%d", s.ID, s.current+1, len(s.stages))
		s.current = len(s.stages)
	}
	s.mu.Unlock()
}

// processStage dispatches the stage at the current index. Every task of a
// parallel group is invoked before any of their completions is awaited;
// all of them receive the same context snapshot.
func (s *Sequence) processStage() {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return
	}
	if s.current >= len(s.stages) {
		// Terminated before this stage could start.
		s.finishLocked()
		return
	}

	idx := s.current
	stage := s.stages[idx]
	ctx := &TaskContext{
		Args:   s.contextArgsLocked(),
		Logger: s.logger,
		seq:    s,
	}
	s.remaining = len(stage.Tasks)
	s.stageStart = time.Now()
	s.mu.Unlock()

	s.logger.Debug("sequence %s: stage %d/%d dispatching %d task(s)",
		s.ID, idx+1, len(s.stages), len(stage.Tasks))
	for _, o := range s.observers {
		o.StageStarted(s.ID, idx, len(stage.Tasks))
	}

	for _, task := range stage.Tasks {
		s.dispatch(idx, task, ctx)
	}
}

// contextArgsLocked builds the argument snapshot for the next stage:
// the initial arguments overlaid with everything merged so far. The copy
// keeps results produced during the stage invisible to its own tasks.
func (s *Sequence) contextArgsLocked() map[string]any {
	args := make(map[string]any, len(s.initialArgs)+len(s.pendingData))
	for k, v := range s.initialArgs {
		args[k] = v
	}
	for k, v := range s.pendingData {
		args[k] = v
	}
	return args
}

// dispatch invokes a single task with an at-most-once completion wrapper.
// A task calling complete twice is a contract violation; the duplicate is
// dropped with a warning so it can never re-fire the terminal callback.
func (s *Sequence) dispatch(stageIdx int, task Task, ctx *TaskContext) {
	var (
		onceMu deadlock.Mutex
		fired  bool
	)
	complete := func(err error, data map[string]any) {
		onceMu.Lock()
		if fired {
			onceMu.Unlock()
			s.logger.Warn("sequence %s: task in stage %d invoked complete more than once, ignoring",
				s.ID, stageIdx+1)
			return
		}
		fired = true
		onceMu.Unlock()

		s.taskDone(stageIdx, err, data)
	}

	task(ctx, complete)
}

// taskDone is the fan-in point for task completions. It merges the task's
// result data, accumulates its error, and decides whether the stage is
// finished. When the last stage (or a terminated run) drains, it delivers
// the terminal outcome; the completed flag guarantees at-most-once
// delivery even when stragglers report in after termination.
func (s *Sequence) taskDone(stageIdx int, err error, data map[string]any) {
	s.mu.Lock()
	if err != nil {
		s.pendingErrs = append(s.pendingErrs, err)
	}
	collisions := s.mergeLocked(data)
	if s.remaining > 0 {
		s.remaining--
	}

	var (
		finish, advance bool
		stageElapsed    time.Duration
		finalErr        error
		finalData       map[string]any
		elapsed         time.Duration
	)
	if s.remaining == 0 && !s.completed {
		stageElapsed = time.Since(s.stageStart)
		if s.current >= len(s.stages)-1 {
			// Last declared stage, or the index was forced past the end
			// by Terminate.
			s.completed = true
			finish = true
			finalErr = errors.Join(s.pendingErrs...)
			finalData = s.pendingData
			elapsed = time.Since(s.startedAt)
		} else {
			s.current++
			advance = true
		}
	}
	s.mu.Unlock()

	for _, key := range collisions {
		s.logger.Warn("sequence %s: stage %d overwrote result key %q, last write wins",
			s.ID, stageIdx+1, key)
		for _, o := range s.observers {
			o.KeyCollision(s.ID, key)
		}
	}
	for _, o := range s.observers {
		o.TaskCompleted(s.ID, stageIdx, err)
	}
	if finish || advance {
		for _, o := range s.observers {
			o.StageCompleted(s.ID, stageIdx, stageElapsed)
		}
	}

	switch {
	case finish:
		s.deliver(finalErr, finalData, elapsed)
	case advance:
		s.processStage()
	}
}

// mergeLocked folds a task's result data into the run accumulator.
// Existing keys are overwritten (last write wins); the overwritten keys
// are returned so the caller can flag them once the lock is released.
func (s *Sequence) mergeLocked(data map[string]any) []string {
	var collisions []string
	for k, v := range data {
		if _, exists := s.pendingData[k]; exists {
			collisions = append(collisions, k)
		}
		s.pendingData[k] = v
	}
	return collisions
}

// finishLocked completes a run on which no stage is in flight (terminated
// before the next dispatch). Must be entered holding s.mu; the lock is
// released before the terminal callback runs.
func (s *Sequence) finishLocked() {
	s.completed = true
	err := errors.Join(s.pendingErrs...)
	data := s.pendingData
	elapsed := time.Since(s.startedAt)
	s.mu.Unlock()

	s.deliver(err, data, elapsed)
}

// deliver reports the terminal outcome to the observers and the terminal
// callback. Callers must have set the completed flag first.
func (s *Sequence) deliver(err error, data map[string]any, elapsed time.Duration) {
	if err != nil {
		s.logger.Error("sequence %s: finished with errors in %v: %v", s.ID, elapsed, err)
	} else {
		s.logger.Info("sequence %s: finished in %v", s.ID, elapsed)
	}
	for _, o := range s.observers {
		o.SequenceCompleted(s.ID, err, data, elapsed)
	}
	if s.onComplete != nil {
		s.onComplete(err, data)
	}
}
