package offsets

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCommittedOffset is reported for partitions where the group has no valid committed offset.
	ErrNoCommittedOffset = errors.New("no committed offset for partition")

	// ErrMissingPartition is reported for partitions that were requested but not part of the response.
	ErrMissingPartition = errors.New("partition missing in response")
)

// ConfigurationError is returned if the configuration does not allow to collect offsets at all. It must be
// surfaced to the caller.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// PartitionError is a failed offset lookup for a single partition.
type PartitionError struct {
	Group     string
	Topic     string
	Partition int32
	Err       error
}

func (e PartitionError) Error() string {
	if e.Group == "" {
		return fmt.Sprintf("topic '%v' partition %v: %v", e.Topic, e.Partition, e.Err)
	}
	return fmt.Sprintf("group '%v' topic '%v' partition %v: %v", e.Group, e.Topic, e.Partition, e.Err)
}

func (e PartitionError) Unwrap() error {
	return e.Err
}
