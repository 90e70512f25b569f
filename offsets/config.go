package offsets

import (
	"fmt"
	"sort"
)

const (
	SourceKafka     string = "kafka"
	SourceZookeeper string = "zookeeper"
)

type Config struct {
	// ConsumerGroups are the consumer groups whose offsets shall be collected. Each group can optionally be narrowed
	// down to a set of topics and partitions.
	ConsumerGroups []ConsumerGroupConfig `koanf:"consumerGroups"`

	// MonitorUnlistedConsumerGroups discovers all consumer groups of the cluster and collects their offsets. It takes
	// precedence over the explicitly configured consumer groups.
	MonitorUnlistedConsumerGroups bool `koanf:"monitorUnlistedConsumerGroups"`

	// Source specifies whether committed offsets are read from Kafka or from ZooKeeper (legacy consumers).
	Source string `koanf:"source"`
}

// ConsumerGroupConfig selects a consumer group and optionally restricts the collected offsets to some topics.
type ConsumerGroupConfig struct {
	GroupID string `koanf:"groupId"`

	// Topics restricts the collected offsets of this group. All topics are collected if empty.
	Topics []TopicSelection `koanf:"topics"`
}

// TopicSelection selects a topic and optionally some of its partitions.
type TopicSelection struct {
	Name string `koanf:"name"`

	// Partitions restricts the collected partitions. All partitions are collected if empty.
	Partitions []int32 `koanf:"partitions"`
}

func (c *Config) SetDefaults() {
	c.MonitorUnlistedConsumerGroups = false
	c.Source = SourceKafka
}

func (c *Config) Validate() error {
	switch c.Source {
	case SourceKafka, SourceZookeeper:
	default:
		return fmt.Errorf("invalid offset source '%v' specified. Valid sources are '%v' or '%v'",
			c.Source,
			SourceKafka,
			SourceZookeeper)
	}

	return ValidateConsumerGroups(c.ConsumerGroups)
}

// GroupIDs returns the ids of all explicitly configured consumer groups in ascending order.
func (c *Config) GroupIDs() []string {
	ids := make([]string, 0, len(c.ConsumerGroups))
	for _, group := range c.ConsumerGroups {
		ids = append(ids, group.GroupID)
	}
	sort.Strings(ids)

	return ids
}

// ValidateConsumerGroups checks that the consumer group selection is well-formed: group ids and topic names must
// be set and unique, partition ids must not be negative.
func ValidateConsumerGroups(groups []ConsumerGroupConfig) error {
	seenGroups := make(map[string]struct{}, len(groups))
	for i, group := range groups {
		if group.GroupID == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("consumer group at index %v has an empty group id", i)}
		}
		if _, exists := seenGroups[group.GroupID]; exists {
			return &ConfigurationError{Reason: fmt.Sprintf("consumer group '%v' is specified more than once", group.GroupID)}
		}
		seenGroups[group.GroupID] = struct{}{}

		seenTopics := make(map[string]struct{}, len(group.Topics))
		for _, topic := range group.Topics {
			if topic.Name == "" {
				return &ConfigurationError{Reason: fmt.Sprintf("consumer group '%v' has a topic with an empty name", group.GroupID)}
			}
			if _, exists := seenTopics[topic.Name]; exists {
				return &ConfigurationError{Reason: fmt.Sprintf("topic '%v' is specified more than once for consumer group '%v'",
					topic.Name, group.GroupID)}
			}
			seenTopics[topic.Name] = struct{}{}

			for _, partition := range topic.Partitions {
				if partition < 0 {
					return &ConfigurationError{Reason: fmt.Sprintf("partition %v of topic '%v' in consumer group '%v' is negative",
						partition, topic.Name, group.GroupID)}
				}
			}
		}
	}

	return nil
}

// groupFilter decides which partitions of a consumer group are recorded.
type groupFilter map[string]map[int32]struct{}

func newGroupFilters(groups []ConsumerGroupConfig) map[string]groupFilter {
	filters := make(map[string]groupFilter)
	for _, group := range groups {
		if len(group.Topics) == 0 {
			continue
		}
		filter := make(groupFilter, len(group.Topics))
		for _, topic := range group.Topics {
			partitions := make(map[int32]struct{}, len(topic.Partitions))
			for _, partition := range topic.Partitions {
				partitions[partition] = struct{}{}
			}
			filter[topic.Name] = partitions
		}
		filters[group.GroupID] = filter
	}

	return filters
}

// allows returns true if the partition is selected. A nil filter selects everything.
func (f groupFilter) allows(topic string, partition int32) bool {
	if f == nil {
		return true
	}
	partitions, exists := f[topic]
	if !exists {
		return false
	}
	if len(partitions) == 0 {
		return true
	}
	_, exists = partitions[partition]
	return exists
}
