package check

import (
	"time"

	"github.com/cloudhut/kconsumer/offsets"
)

// Snapshot is the immutable result of a completed collection cycle. Reporters and scrapes read snapshots, never
// the offset store that is being written by the running cycle.
type Snapshot struct {
	InstanceID string
	Cycle      int64
	StartedAt  time.Time
	Duration   time.Duration
	Tags       []string

	HighwaterOffsets offsets.HighwaterOffsetTable
	ConsumerOffsets  offsets.ConsumerOffsetTable
	Lags             LagReport

	Highwater offsets.HighwaterReport
	Consumer  offsets.ConsumerOffsetReport
}

// ConsumerOffsetsByGroup returns the committed offsets grouped by group id, topic and partition id.
func (s *Snapshot) ConsumerOffsetsByGroup() map[string]map[string]map[int32]int64 {
	res := make(map[string]map[string]map[int32]int64)
	for key, offset := range s.ConsumerOffsets {
		if _, exists := res[key.Group]; !exists {
			res[key.Group] = make(map[string]map[int32]int64)
		}
		if _, exists := res[key.Group][key.Topic]; !exists {
			res[key.Group][key.Topic] = make(map[int32]int64)
		}
		res[key.Group][key.Topic][key.Partition] = offset
	}

	return res
}
