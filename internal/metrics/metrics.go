// Package metrics records apply and destroy progress as prometheus metrics.
//
// A run is short lived, so metrics are not scraped. They are written to a
// textfile for the node exporter textfile collector when the run ends.
package metrics

import (
	"fmt"

	"github.com/picklr-io/webstack/internal/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects resource operation metrics for one run.
type Recorder struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	resourcesManaged  prometheus.Gauge
	lastRunTimestamp  prometheus.Gauge
}

func NewRecorder(deployment string) *Recorder {
	constLabels := prometheus.Labels{"deployment": deployment}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "webstack",
				Name:        "resource_operations_total",
				Help:        "Resource operations by type, action and result",
				ConstLabels: constLabels,
			},
			[]string{"type", "action", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "webstack",
				Name:        "resource_operation_duration_seconds",
				Help:        "Duration of resource operations in seconds",
				ConstLabels: constLabels,
				Buckets:     prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
			},
			[]string{"type", "action"},
		),
		resourcesManaged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "webstack",
			Name:        "resources_managed",
			Help:        "Resources recorded in state after the run",
			ConstLabels: constLabels,
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "webstack",
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time the last run finished",
			ConstLabels: constLabels,
		}),
	}
	r.registry.MustRegister(r.operationsTotal, r.operationDuration, r.resourcesManaged, r.lastRunTimestamp)
	return r
}

// Observe records a finished operation. Start events are ignored.
func (r *Recorder) Observe(event engine.ApplyEvent) {
	switch event.Status {
	case "completed", "failed":
	default:
		return
	}
	result := "success"
	if event.Status == "failed" {
		result = "error"
	}
	r.operationsTotal.WithLabelValues(event.Type, event.Action, result).Inc()
	r.operationDuration.WithLabelValues(event.Type, event.Action).Observe(event.Duration.Seconds())
}

// Finish records the state size and the completion time.
func (r *Recorder) Finish(resources int) {
	r.resourcesManaged.Set(float64(resources))
	r.lastRunTimestamp.SetToCurrentTime()
}

// WriteTextfile writes the collected metrics atomically to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}
