package offsets

import (
	"context"
	"fmt"
)

// TopicPartition identifies a single partition of a topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%v:%v", tp.Topic, tp.Partition)
}

// GroupTopicPartition identifies the committed offset of a consumer group for a single partition.
type GroupTopicPartition struct {
	Group     string
	Topic     string
	Partition int32
}

func (k GroupTopicPartition) String() string {
	return fmt.Sprintf("%v:%v:%v", k.Group, k.Topic, k.Partition)
}

// TopicPartition returns the partition part of the key.
func (k GroupTopicPartition) TopicPartition() TopicPartition {
	return TopicPartition{Topic: k.Topic, Partition: k.Partition}
}

// HighwaterOffsetTable maps each partition to its latest produced offset.
type HighwaterOffsetTable map[TopicPartition]int64

// ConsumerOffsetTable maps each group/topic/partition to the last committed offset. Partitions whose offsets
// could not be fetched are never part of this table.
type ConsumerOffsetTable map[GroupTopicPartition]int64

// PartitionResult is the outcome of a single offset lookup. Either Err is set or Offset is valid.
type PartitionResult struct {
	Offset int64
	Err    error
}

// Ok returns true if the lookup succeeded.
func (r PartitionResult) Ok() bool {
	return r.Err == nil
}

// PartitionOffset is the committed offset (or the error) that has been returned for one partition of a group.
type PartitionOffset struct {
	Topic     string
	Partition int32
	PartitionResult
}

// GroupOffsets is the response to a committed offsets request of a single consumer group.
type GroupOffsets struct {
	Group      string
	Partitions []PartitionOffset
}

// TopicPartitions maps topic names to the partition ids that exist for them.
type TopicPartitions map[string][]int32

// ListingSession is a metadata session that is scoped to a consumer group. Sessions must be closed after use.
type ListingSession interface {
	// ListTopics returns all topics including internal ones that are visible to this session.
	ListTopics(ctx context.Context) (TopicPartitions, error)

	// HighWatermarks returns the latest produced offset for each of the given partitions. An error is only returned
	// if the whole request failed, partition level errors are reported as part of the results.
	HighWatermarks(ctx context.Context, topic string, partitions []int32) (map[int32]PartitionResult, error)

	Close()
}

// OffsetSource provides committed consumer group offsets.
type OffsetSource interface {
	// ListGroups returns all consumer group ids that are known to the cluster.
	ListGroups(ctx context.Context) ([]string, error)

	// FetchOffsets requests all committed offsets of a group. Partition level errors are reported as part of the
	// returned GroupOffsets, an error is returned if the request for the group as a whole failed.
	FetchOffsets(ctx context.Context, group string) (GroupOffsets, error)
}

// ClusterAdmin is the administrative API of a Kafka cluster as needed for collecting offsets.
type ClusterAdmin interface {
	OffsetSource

	// OpenSession opens a listing session on behalf of the given group. An empty group opens a cluster wide session.
	OpenSession(ctx context.Context, group string) (ListingSession, error)

	// PartitionsForTopic requests fresh metadata for the given topic and returns its partition ids in ascending
	// order. A topic that does not exist has no partitions.
	PartitionsForTopic(ctx context.Context, topic string) ([]int32, error)
}
