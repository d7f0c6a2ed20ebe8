/*
Package metrics exposes training progress as Prometheus metrics
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the training collectors, a nil *Metrics records nothing
type Metrics struct {
	Iterations     prometheus.Counter
	Checkpoints    prometheus.Counter
	SourceLoss     prometheus.Gauge
	TargetLoss     prometheus.Gauge
	TargetROC      prometheus.Gauge
	BestROC        prometheus.Gauge
	Stops          *prometheus.CounterVec
	StreamRestarts *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Iterations: f.NewCounter(prometheus.CounterOpts{
			Name: "dacredit_training_iterations_total",
			Help: "Total number of optimization steps done",
		}),
		Checkpoints: f.NewCounter(prometheus.CounterOpts{
			Name: "dacredit_training_checkpoints_total",
			Help: "Total number of evaluation checkpoints",
		}),
		SourceLoss: f.NewGauge(prometheus.GaugeOpts{
			Name: "dacredit_source_loss",
			Help: "Average source loss at the last checkpoint",
		}),
		TargetLoss: f.NewGauge(prometheus.GaugeOpts{
			Name: "dacredit_target_loss",
			Help: "Target classification loss at the last checkpoint",
		}),
		TargetROC: f.NewGauge(prometheus.GaugeOpts{
			Name: "dacredit_target_roc_auc",
			Help: "Target ROC-AUC at the last checkpoint",
		}),
		BestROC: f.NewGauge(prometheus.GaugeOpts{
			Name: "dacredit_target_best_roc_auc",
			Help: "Best target ROC-AUC of the run",
		}),
		Stops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dacredit_training_stops_total",
			Help: "Finished training runs by termination reason",
		}, []string{"reason"}),
		StreamRestarts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dacredit_stream_restarts_total",
			Help: "Reshuffles of exhausted batch streams",
		}, []string{"stream"}),
	}
}

func (m *Metrics) Iteration() {
	if m != nil {
		m.Iterations.Inc()
	}
}

func (m *Metrics) Checkpoint(srcLoss, tgtLoss, roc, best float64) {
	if m == nil {
		return
	}
	m.Checkpoints.Inc()
	m.SourceLoss.Set(srcLoss)
	m.TargetLoss.Set(tgtLoss)
	m.TargetROC.Set(roc)
	m.BestROC.Set(best)
}

func (m *Metrics) Stopped(reason string) {
	if m != nil {
		m.Stops.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Restarted(stream string) {
	if m != nil {
		m.StreamRestarts.WithLabelValues(stream).Inc()
	}
}
