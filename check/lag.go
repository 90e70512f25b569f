package check

import (
	"sort"

	"github.com/cloudhut/kconsumer/offsets"
)

// PartitionLag is the lag of a consumer group on a single partition.
type PartitionLag struct {
	Group           string `json:"group"`
	Topic           string `json:"topic"`
	Partition       int32  `json:"partition"`
	HighwaterOffset int64  `json:"highwaterOffset"`
	ConsumerOffset  int64  `json:"consumerOffset"`

	// Lag may be negative if the consumer offset has been fetched after the highwater offset and messages were
	// produced and consumed in between.
	Lag int64 `json:"lag"`
}

// LagReport is the result of joining both offset tables.
type LagReport struct {
	Lags []PartitionLag

	// Unreported are committed offsets whose partition has no highwater offset, their lag is unknown.
	Unreported []offsets.GroupTopicPartition
}

// NegativeLags returns all lags that are below zero.
func (r LagReport) NegativeLags() []PartitionLag {
	var negative []PartitionLag
	for _, lag := range r.Lags {
		if lag.Lag < 0 {
			negative = append(negative, lag)
		}
	}
	return negative
}

// ComputeLags computes the lag of every committed consumer offset. Results are sorted by group, topic and
// partition.
func ComputeLags(highwater offsets.HighwaterOffsetTable, consumer offsets.ConsumerOffsetTable) LagReport {
	report := LagReport{}
	for key, consumerOffset := range consumer {
		highwaterOffset, exists := highwater[key.TopicPartition()]
		if !exists {
			report.Unreported = append(report.Unreported, key)
			continue
		}
		report.Lags = append(report.Lags, PartitionLag{
			Group:           key.Group,
			Topic:           key.Topic,
			Partition:       key.Partition,
			HighwaterOffset: highwaterOffset,
			ConsumerOffset:  consumerOffset,
			Lag:             highwaterOffset - consumerOffset,
		})
	}

	sort.Slice(report.Lags, func(i, j int) bool {
		return lessKey(report.Lags[i].Group, report.Lags[i].Topic, report.Lags[i].Partition,
			report.Lags[j].Group, report.Lags[j].Topic, report.Lags[j].Partition)
	})
	sort.Slice(report.Unreported, func(i, j int) bool {
		return lessKey(report.Unreported[i].Group, report.Unreported[i].Topic, report.Unreported[i].Partition,
			report.Unreported[j].Group, report.Unreported[j].Topic, report.Unreported[j].Partition)
	})

	return report
}

func lessKey(groupA, topicA string, partitionA int32, groupB, topicB string, partitionB int32) bool {
	if groupA != groupB {
		return groupA < groupB
	}
	if topicA != topicB {
		return topicA < topicB
	}
	return partitionA < partitionB
}
