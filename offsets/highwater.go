package offsets

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// HighwaterReport summarizes a highwater offset collection.
type HighwaterReport struct {
	Sessions int
	Topics   int

	// Partitions is the number of partitions in the highwater table after the collection.
	Partitions int
	Errors     []PartitionError
}

// CollectHighwaterOffsets opens a listing session for each of the given groups and stores the latest produced
// offset of every partition of all non internal topics. Highwater marks are cluster wide, hence they are keyed by
// topic and partition only and repeated topics across groups overwrite each other. If no groups are given a
// single cluster wide session is used. Listing failures are returned, partitions whose watermark could not be
// fetched are omitted and part of the report.
func (c *Collector) CollectHighwaterOffsets(ctx context.Context, groups []string) (HighwaterReport, error) {
	report := HighwaterReport{}
	if len(groups) == 0 {
		groups = []string{""}
	}

	topicsSeen := make(map[string]struct{})
	for _, group := range groups {
		err := c.collectSessionHighwaterOffsets(ctx, group, &report, topicsSeen)
		if err != nil {
			return report, err
		}
		report.Sessions++
	}
	report.Topics = len(topicsSeen)
	report.Partitions = c.store.highwaterOffsets.Count()

	return report, nil
}

func (c *Collector) collectSessionHighwaterOffsets(ctx context.Context, group string, report *HighwaterReport, topicsSeen map[string]struct{}) error {
	session, err := c.admin.OpenSession(ctx, group)
	if err != nil {
		return fmt.Errorf("failed to open listing session for consumer group '%v': %w", group, err)
	}
	defer session.Close()

	topics, err := session.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("failed to list topics for consumer group '%v': %w", group, err)
	}

	// Iterate in a stable order so that logs and reports are reproducible
	topicNames := make([]string, 0, len(topics))
	for topic := range topics {
		topicNames = append(topicNames, topic)
	}
	sort.Strings(topicNames)

	for _, topic := range topicNames {
		if _, excluded := ExcludedTopics[topic]; excluded {
			continue
		}
		partitions := topics[topic]
		if len(partitions) == 0 {
			continue
		}
		topicsSeen[topic] = struct{}{}

		marks, err := session.HighWatermarks(ctx, topic, partitions)
		if err != nil {
			return fmt.Errorf("failed to get watermarks of topic '%v': %w", topic, err)
		}

		for _, partition := range partitions {
			mark, exists := marks[partition]
			if !exists {
				mark = PartitionResult{Err: ErrMissingPartition}
			}
			if !mark.Ok() {
				c.logger.Debug("failed to get partition high water mark",
					zap.String("topic_name", topic),
					zap.Int32("partition_id", partition),
					zap.Error(mark.Err))
				report.Errors = append(report.Errors, PartitionError{Topic: topic, Partition: partition, Err: mark.Err})
				continue
			}

			c.store.setHighwaterOffset(TopicPartition{Topic: topic, Partition: partition}, mark.Offset)
		}
	}

	return nil
}
