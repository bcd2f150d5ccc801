package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "forpostctl"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	opDuration      *prom.HistogramVec
	opResults       *prom.CounterVec
	replaceFailures *prom.CounterVec
	compensations   *prom.CounterVec
	configBackups   prom.Gauge
	artifactBackups prom.Gauge
	restartPending  prom.Gauge
	streamActive    prom.Gauge
	fileEvents      *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		opDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of lifecycle operations",
			Buckets:   prom.DefBuckets,
		}, []string{"operation"}),
		opResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "operation_results_total",
			Help:      "Lifecycle operation results by outcome",
		}, []string{"operation", "result"}),
		replaceFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_replace_failures_total",
			Help:      "Failed artifact replace transactions by failing state",
		}, []string{"state"}),
		compensations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "service_compensations_total",
			Help:      "Compensating service starts after a failed replace",
		}, []string{"result"}),
		configBackups: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "config_backups",
			Help:      "Occupied config backup slots",
		}),
		artifactBackups: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_backups",
			Help:      "Binary backups in the backup directory",
		}),
		restartPending: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "restart_pending",
			Help:      "1 when a critical config change has not been applied by a stream restart",
		}),
		streamActive: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_active",
			Help:      "1 when the stream unit is active",
		}),
		fileEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "config_file_events_total",
			Help:      "Filesystem events observed on the persisted config",
		}, []string{"kind"}),
	}
	reg.MustRegister(pr.opDuration, pr.opResults, pr.replaceFailures, pr.compensations,
		pr.configBackups, pr.artifactBackups, pr.restartPending, pr.streamActive, pr.fileEvents)
	return pr
}

func (p *PrometheusRecorder) ObserveOperationDuration(op string, d time.Duration) {
	if p == nil || p.opDuration == nil {
		return
	}
	p.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncOperationResult(op string, result ResultLabel) {
	if p == nil || p.opResults == nil {
		return
	}
	p.opResults.WithLabelValues(op, string(result)).Inc()
}

func (p *PrometheusRecorder) IncReplaceFailure(state string) {
	if p == nil || p.replaceFailures == nil {
		return
	}
	p.replaceFailures.WithLabelValues(state).Inc()
}

func (p *PrometheusRecorder) IncCompensation(success bool) {
	if p == nil || p.compensations == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.compensations.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) SetConfigBackups(n int) {
	if p == nil || p.configBackups == nil {
		return
	}
	p.configBackups.Set(float64(n))
}

func (p *PrometheusRecorder) SetArtifactBackups(n int) {
	if p == nil || p.artifactBackups == nil {
		return
	}
	p.artifactBackups.Set(float64(n))
}

func (p *PrometheusRecorder) SetRestartPending(pending bool) {
	if p == nil || p.restartPending == nil {
		return
	}
	p.restartPending.Set(boolGauge(pending))
}

func (p *PrometheusRecorder) SetStreamActive(active bool) {
	if p == nil || p.streamActive == nil {
		return
	}
	p.streamActive.Set(boolGauge(active))
}

func (p *PrometheusRecorder) IncConfigFileEvent(kind string) {
	if p == nil || p.fileEvents == nil {
		return
	}
	p.fileEvents.WithLabelValues(kind).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
