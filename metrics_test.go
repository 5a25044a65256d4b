package bsync

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserverCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetricsObserver(reg)

	boom := errors.New("boom")
	seq := New(RunConfig{
		Stages: []Stage{
			NewStage(
				produceTask(map[string]any{"k": 1}),
				produceTask(map[string]any{"k": 2}),
			),
			NewStage(func(ctx *TaskContext, complete CompleteFunc) {
				complete(boom, nil)
			}),
		},
	}, WithObserver(metrics))
	seq.Go()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sequencesStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sequencesCompleted.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.tasksCompleted.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.tasksCompleted.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.keyCollisions))
}

func TestMetricsObserverStageDurationHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetricsObserver(reg)

	seq := New(RunConfig{
		Stages: []Stage{
			NewStage(produceTask(nil)),
			NewStage(produceTask(nil)),
		},
	}, WithObserver(metrics))
	seq.Go()

	families, err := reg.Gather()
	require.NoError(t, err)

	var histogram *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "bsync_stage_duration_seconds" {
			histogram = mf
		}
	}
	require.NotNil(t, histogram)
	require.Len(t, histogram.GetMetric(), 1)
	assert.Equal(t, uint64(2), histogram.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestMetricsObserverNilRegisterer(t *testing.T) {
	// A nil registerer is allowed; the collectors just stay unregistered.
	metrics := NewMetricsObserver(nil)

	seq := New(RunConfig{
		Stages: []Stage{NewStage(produceTask(nil))},
	}, WithObserver(metrics))
	seq.Go()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sequencesStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sequencesCompleted.WithLabelValues("ok")))
}
