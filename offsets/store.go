package offsets

import (
	cmap "github.com/orcaman/concurrent-map"
	"go.uber.org/zap"
)

// Store holds the offsets that have been collected during the current cycle. It is owned by a single Collector
// and reset before each cycle.
type Store struct {
	logger *zap.Logger

	// highwaterOffsets is a map of all partition highwater marks. A unique key in the format "topic:partition" is
	// used as map key. Value is of type highwaterEntry.
	highwaterOffsets cmap.ConcurrentMap

	// consumerOffsets is a map of all committed consumer offsets. A unique key in the format "group:topic:partition"
	// is used as map key. Value is of type consumerOffsetEntry.
	consumerOffsets cmap.ConcurrentMap
}

type highwaterEntry struct {
	Key    TopicPartition
	Offset int64
}

type consumerOffsetEntry struct {
	Key    GroupTopicPartition
	Offset int64
}

func NewStore(logger *zap.Logger) *Store {
	return &Store{
		logger:           logger.Named("storage"),
		highwaterOffsets: cmap.New(),
		consumerOffsets:  cmap.New(),
	}
}

// Reset clears both offset tables.
func (s *Store) Reset() {
	s.highwaterOffsets = cmap.New()
	s.consumerOffsets = cmap.New()
}

func (s *Store) setHighwaterOffset(key TopicPartition, offset int64) {
	s.highwaterOffsets.Set(key.String(), highwaterEntry{Key: key, Offset: offset})
}

func (s *Store) setConsumerOffset(key GroupTopicPartition, offset int64) {
	s.consumerOffsets.Set(key.String(), consumerOffsetEntry{Key: key, Offset: offset})
}

// HighwaterOffsets returns a copy of the highwater offset table.
func (s *Store) HighwaterOffsets() HighwaterOffsetTable {
	items := s.highwaterOffsets.Items()
	table := make(HighwaterOffsetTable, len(items))
	for _, item := range items {
		entry := item.(highwaterEntry)
		table[entry.Key] = entry.Offset
	}

	return table
}

// ConsumerOffsets returns a copy of the consumer offset table.
func (s *Store) ConsumerOffsets() ConsumerOffsetTable {
	items := s.consumerOffsets.Items()
	table := make(ConsumerOffsetTable, len(items))
	for _, item := range items {
		entry := item.(consumerOffsetEntry)
		table[entry.Key] = entry.Offset
	}

	return table
}

// ConsumerOffsetsByGroup returns the consumer offsets grouped by group id, topic and partition id as keys of the
// nested maps.
func (s *Store) ConsumerOffsetsByGroup() map[string]map[string]map[int32]int64 {
	offsetsByGroup := make(map[string]map[string]map[int32]int64)
	for _, item := range s.consumerOffsets.Items() {
		entry := item.(consumerOffsetEntry)

		// Initialize inner maps as necessary
		if _, exists := offsetsByGroup[entry.Key.Group]; !exists {
			offsetsByGroup[entry.Key.Group] = make(map[string]map[int32]int64)
		}
		if _, exists := offsetsByGroup[entry.Key.Group][entry.Key.Topic]; !exists {
			offsetsByGroup[entry.Key.Group][entry.Key.Topic] = make(map[int32]int64)
		}
		offsetsByGroup[entry.Key.Group][entry.Key.Topic][entry.Key.Partition] = entry.Offset
	}

	return offsetsByGroup
}
