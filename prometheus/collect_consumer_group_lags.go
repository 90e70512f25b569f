package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudhut/kconsumer/check"
)

type groupTopic struct {
	GroupID   string
	TopicName string
}

func (e *Exporter) collectConsumerGroupLags(snapshot *check.Snapshot, ch chan<- prometheus.Metric) bool {
	isOk := true

	topicLags := make(map[groupTopic]int64)
	for _, lag := range snapshot.Lags.Lags {
		partitionID := strconv.Itoa(int(lag.Partition))
		topicLags[groupTopic{GroupID: lag.Group, TopicName: lag.Topic}] += lag.Lag

		ch <- prometheus.MustNewConstMetric(
			e.consumerGroupTopicPartitionOffset,
			prometheus.GaugeValue,
			float64(lag.ConsumerOffset),
			lag.Group,
			lag.Topic,
			partitionID,
		)
		ch <- prometheus.MustNewConstMetric(
			e.consumerGroupTopicPartitionLag,
			prometheus.GaugeValue,
			float64(lag.Lag),
			lag.Group,
			lag.Topic,
			partitionID,
		)
	}

	for key, lag := range topicLags {
		ch <- prometheus.MustNewConstMetric(
			e.consumerGroupTopicLag,
			prometheus.GaugeValue,
			float64(lag),
			key.GroupID,
			key.TopicName,
		)
	}

	unreported := make(map[string]int)
	for _, key := range snapshot.Lags.Unreported {
		unreported[key.Group]++
	}
	for groupID, count := range unreported {
		isOk = false
		ch <- prometheus.MustNewConstMetric(
			e.consumerGroupUnreported,
			prometheus.GaugeValue,
			float64(count),
			groupID,
		)
	}

	failedGroups := snapshot.Consumer.FailedGroups()
	if failedGroups > 0 || snapshot.Consumer.DiscoveryErr != nil || len(snapshot.Consumer.PartitionErrors()) > 0 {
		isOk = false
	}
	ch <- prometheus.MustNewConstMetric(
		e.consumerGroupsFailed,
		prometheus.GaugeValue,
		float64(failedGroups),
	)

	return isOk
}
