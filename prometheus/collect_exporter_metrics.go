package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

func (e *Exporter) collectExporterMetrics(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(
		e.cyclesTotal,
		prometheus.CounterValue,
		float64(e.checkSvc.CyclesTotal()),
	)
	ch <- prometheus.MustNewConstMetric(
		e.cyclesFailed,
		prometheus.CounterValue,
		float64(e.checkSvc.CyclesFailed()),
	)

	snapshot, exists := e.checkSvc.LatestSnapshot()
	if !exists {
		return
	}
	ch <- prometheus.MustNewConstMetric(
		e.lastCycle,
		prometheus.GaugeValue,
		snapshot.Duration.Seconds(),
	)
}
