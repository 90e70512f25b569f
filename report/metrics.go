package report

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cloudhut/kconsumer/check"
	"github.com/cloudhut/kconsumer/offsets"
)

const (
	MetricBrokerOffset   = "kafka.broker_offset"
	MetricConsumerOffset = "kafka.consumer_offset"
	MetricConsumerLag    = "kafka.consumer_lag"
)

// Sample is a single gauge value that is reported to all writers.
type Sample struct {
	Name      string
	Value     float64
	Tags      map[string]string
	Timestamp time.Time
}

// TagList returns the tags in the "name:value" format, followed by the given static tags.
func (s Sample) TagList(static []string) []string {
	tags := make([]string, 0, len(s.Tags)+len(static))
	for _, name := range []string{"consumer_group", "topic", "partition"} {
		if value, exists := s.Tags[name]; exists {
			tags = append(tags, fmt.Sprintf("%s:%s", name, value))
		}
	}
	return append(tags, static...)
}

// samplesFromSnapshot converts a snapshot into broker offset, consumer offset and lag samples. Samples are ordered
// by metric and then by their keys.
func samplesFromSnapshot(snapshot *check.Snapshot) []Sample {
	samples := make([]Sample, 0, len(snapshot.HighwaterOffsets)+2*len(snapshot.Lags.Lags))

	for _, tp := range sortedPartitions(snapshot.HighwaterOffsets) {
		samples = append(samples, Sample{
			Name:      MetricBrokerOffset,
			Value:     float64(snapshot.HighwaterOffsets[tp]),
			Tags:      map[string]string{"topic": tp.Topic, "partition": strconv.Itoa(int(tp.Partition))},
			Timestamp: snapshot.StartedAt,
		})
	}

	for _, lag := range snapshot.Lags.Lags {
		tags := map[string]string{
			"consumer_group": lag.Group,
			"topic":          lag.Topic,
			"partition":      strconv.Itoa(int(lag.Partition)),
		}
		samples = append(samples,
			Sample{Name: MetricConsumerOffset, Value: float64(lag.ConsumerOffset), Tags: tags, Timestamp: snapshot.StartedAt},
			Sample{Name: MetricConsumerLag, Value: float64(lag.Lag), Tags: tags, Timestamp: snapshot.StartedAt},
		)
	}

	return samples
}

// sortedPartitions returns the keys of the highwater table sorted by topic and partition.
func sortedPartitions(table offsets.HighwaterOffsetTable) []offsets.TopicPartition {
	res := make([]offsets.TopicPartition, 0, len(table))
	for tp := range table {
		res = append(res, tp)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Topic != res[j].Topic {
			return res[i].Topic < res[j].Topic
		}
		return res[i].Partition < res[j].Partition
	})
	return res
}
