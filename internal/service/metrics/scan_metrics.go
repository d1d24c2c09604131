// Package metrics holds process-wide gauges for the scan loop and the
// calibration refresher. Per-decision counters live in pkg/metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cryptosignal",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Wall time of one full scan cycle",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	ScanAssets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cryptosignal",
			Subsystem: "scan",
			Name:      "assets",
			Help:      "Assets in the last scan by outcome",
		},
		[]string{"outcome"},
	)

	CalibrationBins = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cryptosignal",
			Subsystem: "calibration",
			Name:      "bins",
			Help:      "Bins in the calibration table in use; 0 means raw fallback",
		},
	)

	CalibrationRefits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cryptosignal",
			Subsystem: "calibration",
			Name:      "refits_total",
			Help:      "Calibration refit attempts by result",
		},
		[]string{"result"},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	RegisterWith(prometheus.DefaultRegisterer)
}

// RegisterWith adds the collectors to reg once per process.
func RegisterWith(reg prometheus.Registerer) {
	once.Do(func() {
		reg.MustRegister(ScanDuration, ScanAssets, CalibrationBins, CalibrationRefits)
	})
}

// ObserveScan records one finished scan.
func ObserveScan(seconds float64, published, rejected, failed int) {
	ScanDuration.Observe(seconds)
	ScanAssets.WithLabelValues("published").Set(float64(published))
	ScanAssets.WithLabelValues("rejected").Set(float64(rejected))
	ScanAssets.WithLabelValues("failed").Set(float64(failed))
}

// ObserveRefit records a calibration refit attempt.
func ObserveRefit(ok bool, bins int) {
	if !ok {
		CalibrationRefits.WithLabelValues("skipped").Inc()
		return
	}
	CalibrationRefits.WithLabelValues("ok").Inc()
	CalibrationBins.Set(float64(bins))
}
