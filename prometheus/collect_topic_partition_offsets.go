package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudhut/kconsumer/check"
)

func (e *Exporter) collectTopicPartitionOffsets(snapshot *check.Snapshot, ch chan<- prometheus.Metric) bool {
	// Topics with at least one failed partition must not report a sum
	failedTopics := make(map[string]bool)
	for _, partitionErr := range snapshot.Highwater.Errors {
		failedTopics[partitionErr.Topic] = true
	}

	waterMarkSums := make(map[string]int64)
	for tp, offset := range snapshot.HighwaterOffsets {
		waterMarkSums[tp.Topic] += offset
		ch <- prometheus.MustNewConstMetric(
			e.partitionHighWaterMark,
			prometheus.GaugeValue,
			float64(offset),
			tp.Topic,
			strconv.Itoa(int(tp.Partition)),
		)
	}

	for topicName, sum := range waterMarkSums {
		if failedTopics[topicName] {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			e.topicHighWaterMarkSum,
			prometheus.GaugeValue,
			float64(sum),
			topicName,
		)
	}

	ch <- prometheus.MustNewConstMetric(
		e.highwaterErrors,
		prometheus.GaugeValue,
		float64(len(snapshot.Highwater.Errors)),
	)

	return len(snapshot.Highwater.Errors) == 0
}
