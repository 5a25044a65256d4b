package bsync

import (
	"context"
	"fmt"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/SteeleParker/bsync"

// TelemetryObserver emits OpenTelemetry spans and metrics for sequence
// execution: one span per run with a child span per stage, plus counters
// for task completions and key collisions and a stage duration histogram.
type TelemetryObserver struct {
	tracer trace.Tracer

	tasks         metric.Int64Counter
	collisions    metric.Int64Counter
	stageDuration metric.Float64Histogram

	mu     deadlock.Mutex
	runs   map[string]context.Context
	stages map[string]trace.Span
}

// NewTelemetryObserver wires the observer to the given tracer and meter
// providers.
func NewTelemetryObserver(tp trace.TracerProvider, mp metric.MeterProvider) (*TelemetryObserver, error) {
	meter := mp.Meter(instrumentationName)

	tasks, err := meter.Int64Counter("bsync.tasks.completed",
		metric.WithDescription("Task completions processed by the sequencer."))
	if err != nil {
		return nil, fmt.Errorf("creating task counter: %w", err)
	}

	collisions, err := meter.Int64Counter("bsync.result.collisions",
		metric.WithDescription("Merged result keys that overwrote an existing key."))
	if err != nil {
		return nil, fmt.Errorf("creating collision counter: %w", err)
	}

	stageDuration, err := meter.Float64Histogram("bsync.stage.duration",
		metric.WithDescription("Wall time from stage dispatch to its last task completion."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("creating stage duration histogram: %w", err)
	}

	return &TelemetryObserver{
		tracer:        tp.Tracer(instrumentationName),
		tasks:         tasks,
		collisions:    collisions,
		stageDuration: stageDuration,
		runs:          make(map[string]context.Context),
		stages:        make(map[string]trace.Span),
	}, nil
}

// SequenceStarted implements Observer.
func (t *TelemetryObserver) SequenceStarted(id string, stageCount int) {
	ctx, _ := t.tracer.Start(context.Background(), "bsync.sequence",
		trace.WithAttributes(
			attribute.String("bsync.sequence.id", id),
			attribute.Int("bsync.sequence.stages", stageCount),
		))

	t.mu.Lock()
	t.runs[id] = ctx
	t.mu.Unlock()
}

// StageStarted implements Observer.
func (t *TelemetryObserver) StageStarted(id string, index, taskCount int) {
	t.mu.Lock()
	parent, ok := t.runs[id]
	t.mu.Unlock()
	if !ok {
		parent = context.Background()
	}

	_, span := t.tracer.Start(parent, fmt.Sprintf("bsync.stage[%d]", index),
		trace.WithAttributes(
			attribute.Int("bsync.stage.index", index),
			attribute.Int("bsync.stage.tasks", taskCount),
		))

	t.mu.Lock()
	t.stages[stageKey(id, index)] = span
	t.mu.Unlock()
}

// TaskCompleted implements Observer.
func (t *TelemetryObserver) TaskCompleted(_ string, _ int, err error) {
	t.tasks.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("status", statusLabel(err))))
}

// KeyCollision implements Observer.
func (t *TelemetryObserver) KeyCollision(_ string, key string) {
	t.collisions.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("key", key)))
}

// StageCompleted implements Observer.
func (t *TelemetryObserver) StageCompleted(id string, index int, elapsed time.Duration) {
	t.mu.Lock()
	span, ok := t.stages[stageKey(id, index)]
	delete(t.stages, stageKey(id, index))
	t.mu.Unlock()

	if ok {
		span.End()
	}
	t.stageDuration.Record(context.Background(), elapsed.Seconds(),
		metric.WithAttributes(attribute.Int("bsync.stage.index", index)))
}

// SequenceCompleted implements Observer.
func (t *TelemetryObserver) SequenceCompleted(id string, err error, _ map[string]any, _ time.Duration) {
	t.mu.Lock()
	ctx, ok := t.runs[id]
	delete(t.runs, id)
	t.mu.Unlock()
	if !ok {
		return
	}

	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func stageKey(id string, index int) string {
	return fmt.Sprintf("%s/%d", id, index)
}
