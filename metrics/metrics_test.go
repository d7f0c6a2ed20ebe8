package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/assert"
)

func Test_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Iteration()
	m.Iteration()
	m.Checkpoint(0.7, 0.6, 0.8, 0.85)
	m.Restarted("source")
	m.Stopped("early")

	assert.Equal(t, testutil.ToFloat64(m.Iterations), 2.0)
	assert.Equal(t, testutil.ToFloat64(m.Checkpoints), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.SourceLoss), 0.7)
	assert.Equal(t, testutil.ToFloat64(m.TargetROC), 0.8)
	assert.Equal(t, testutil.ToFloat64(m.BestROC), 0.85)
	assert.Equal(t, testutil.ToFloat64(m.StreamRestarts.WithLabelValues("source")), 1.0)
	assert.Equal(t, testutil.ToFloat64(m.Stops.WithLabelValues("early")), 1.0)

	n, err := testutil.GatherAndCount(reg)
	assert.NilError(t, err)
	assert.Equal(t, n, 8)
}

func Test_NilMetrics(t *testing.T) {
	var m *Metrics
	m.Iteration()
	m.Checkpoint(1, 1, 1, 1)
	m.Restarted("target")
	m.Stopped("budget")
}
