package offsets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// GroupSelectionMode describes how the consumer groups of a collection have been selected.
type GroupSelectionMode string

const (
	GroupSelectionDiscovered GroupSelectionMode = "discovered"
	GroupSelectionConfigured GroupSelectionMode = "configured"
)

// ConsumerOffsetReport contains the outcome of a consumer offset collection for each requested group.
type ConsumerOffsetReport struct {
	Mode GroupSelectionMode

	// DiscoveryErr is set if consumer groups could not be discovered. No offsets have been collected in that case.
	DiscoveryErr error

	Groups []GroupResult
}

// GroupResult is the outcome of the committed offsets request of a single group. Either Err is set or Partitions
// contains the results of each returned partition.
type GroupResult struct {
	Group      string
	Err        error
	Partitions []PartitionOffset
}

// FailedGroups returns the number of groups whose offset request failed as a whole.
func (r ConsumerOffsetReport) FailedGroups() int {
	failed := 0
	for _, group := range r.Groups {
		if group.Err != nil {
			failed++
		}
	}
	return failed
}

// PartitionErrors returns all partition level errors of all groups.
func (r ConsumerOffsetReport) PartitionErrors() []PartitionError {
	var errs []PartitionError
	for _, group := range r.Groups {
		for _, partition := range group.Partitions {
			if partition.Ok() {
				continue
			}
			errs = append(errs, PartitionError{
				Group:     group.Group,
				Topic:     partition.Topic,
				Partition: partition.Partition,
				Err:       partition.Err,
			})
		}
	}
	return errs
}

// CollectConsumerOffsets collects the committed offsets of all monitored consumer groups. If unlisted consumer
// groups shall be monitored all groups are discovered first, otherwise the configured groups are used. A
// ConfigurationError is returned if neither is set up, the store remains untouched in that case. Failures of single
// groups or partitions are logged and reported but never abort the collection of other groups or partitions.
func (c *Collector) CollectConsumerOffsets(ctx context.Context) (ConsumerOffsetReport, error) {
	report := ConsumerOffsetReport{}

	var groups []string
	switch {
	case c.Cfg.MonitorUnlistedConsumerGroups:
		report.Mode = GroupSelectionDiscovered
		discovered, err := c.source.ListGroups(ctx)
		if err != nil {
			c.logger.Error("failed to collect consumer offsets, could not list consumer groups", zap.Error(err))
			report.DiscoveryErr = err
			return report, nil
		}
		groups = discovered
	case len(c.Cfg.ConsumerGroups) > 0:
		report.Mode = GroupSelectionConfigured
		if err := ValidateConsumerGroups(c.Cfg.ConsumerGroups); err != nil {
			return report, err
		}
		groups = c.Cfg.GroupIDs()
	default:
		return report, &ConfigurationError{Reason: fmt.Sprintf(
			"cannot fetch consumer offsets because no consumer groups are specified and monitorUnlistedConsumerGroups is %v",
			c.Cfg.MonitorUnlistedConsumerGroups)}
	}

	for _, group := range groups {
		report.Groups = append(report.Groups, c.collectGroupOffsets(ctx, group))
	}

	return report, nil
}

func (c *Collector) collectGroupOffsets(ctx context.Context, group string) GroupResult {
	result := GroupResult{Group: group}

	res, err := c.source.FetchOffsets(ctx, group)
	if err != nil {
		c.logger.Debug("failed to read consumer offsets",
			zap.String("consumer_group", group),
			zap.Error(err))
		result.Err = err
		return result
	}

	filter := c.filters[group]
	for _, partition := range res.Partitions {
		if !filter.allows(partition.Topic, partition.Partition) {
			continue
		}
		result.Partitions = append(result.Partitions, partition)

		if !partition.Ok() {
			c.logger.Debug("failed to read consumer offset of partition",
				zap.String("consumer_group", group),
				zap.String("topic_name", partition.Topic),
				zap.Int32("partition_id", partition.Partition),
				zap.Error(partition.Err))
			continue
		}

		key := GroupTopicPartition{Group: group, Topic: partition.Topic, Partition: partition.Partition}
		c.store.setConsumerOffset(key, partition.Offset)
	}

	return result
}
