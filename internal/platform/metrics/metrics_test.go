package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRun(t *testing.T) {
	m := New()

	m.ObserveRun("slack", "success", 1.5, 40)
	m.ObserveRun("slack", "failed", 0.1, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceRuns.WithLabelValues("slack", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceRuns.WithLabelValues("slack", "failed")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.RecordsRedacted.WithLabelValues("slack")))
}

func TestAddLabelsSkipsZeroCategories(t *testing.T) {
	m := New()
	m.AddLabels(map[string]int{"user": 3, "bot": 0})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.LabelsAllocated.WithLabelValues("user")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LabelsAllocated))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun("x", "success", 1, 1)
		m.AddLabels(map[string]int{"user": 1})
		m.IncPackages("success")
		m.IncActivityEvents("processing_started")
		m.IncActivityDropped()
		m.IncActivityFailures()
	})
	assert.NotNil(t, m.Handler())
}

func TestInstancesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
