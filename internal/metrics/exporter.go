package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter mirrors batch statistics into a private Prometheus registry so they
// can be written in the node_exporter textfile format after a run.
type Exporter struct {
	registry *prometheus.Registry

	processed prometheus.Counter
	failed    prometheus.Counter
	mse       prometheus.Gauge
	avgRel    prometheus.Gauge
	detected  prometheus.Histogram
}

// NewExporter creates an exporter with its own registry.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coin_counter_images_processed_total",
			Help: "Images that contributed to the running statistics",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coin_counter_images_failed_total",
			Help: "Images that could not be loaded, analyzed or scored",
		}),
		mse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coin_counter_mean_squared_error",
			Help: "Running mean squared error of predicted coin counts",
		}),
		avgRel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coin_counter_average_relative_error_percent",
			Help: "Running average relative error of predicted coin counts",
		}),
		detected: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coin_counter_detected_coins",
			Help:    "Distribution of predicted coin counts per image",
			Buckets: prometheus.LinearBuckets(0, 2, 16),
		}),
	}
	e.registry.MustRegister(e.processed, e.failed, e.mse, e.avgRel, e.detected)
	return e
}

// ObserveSample records a scored image and the running totals that include it.
func (e *Exporter) ObserveSample(s Sample, running RunningMetrics) {
	e.processed.Inc()
	e.detected.Observe(float64(s.EstimatedValue))
	if mse, err := running.MeanSquaredError(); err == nil {
		e.mse.Set(mse)
	}
	if rel, err := running.AverageRelativeError(); err == nil {
		e.avgRel.Set(rel)
	}
}

// ObserveFailure records an image that was skipped.
func (e *Exporter) ObserveFailure() {
	e.failed.Inc()
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
func (e *Exporter) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
