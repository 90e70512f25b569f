package offsets

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ExcludedTopics are internal topics whose offsets are never collected.
var ExcludedTopics = map[string]struct{}{
	"__consumer_offsets":  {},
	"__transaction_state": {},
}

// Collector collects highwater and consumer offsets into its Store. It is not safe for concurrent use, a single
// scheduler is supposed to run one collection cycle at a time.
type Collector struct {
	Cfg    Config
	logger *zap.Logger

	admin   ClusterAdmin
	source  OffsetSource
	store   *Store
	filters map[string]groupFilter
}

type Option func(*Collector)

// WithOffsetSource reads committed consumer offsets from the given source instead of the cluster admin.
func WithOffsetSource(source OffsetSource) Option {
	return func(c *Collector) {
		c.source = source
	}
}

func NewCollector(cfg Config, logger *zap.Logger, admin ClusterAdmin, opts ...Option) (*Collector, error) {
	if admin == nil {
		return nil, fmt.Errorf("a cluster admin is required")
	}
	if err := ValidateConsumerGroups(cfg.ConsumerGroups); err != nil {
		return nil, err
	}

	logger = logger.Named("collector")
	c := &Collector{
		Cfg:     cfg,
		logger:  logger,
		admin:   admin,
		source:  admin,
		store:   NewStore(logger),
		filters: newGroupFilters(cfg.ConsumerGroups),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ResetOffsets clears all collected offsets. It should be called before each collection cycle.
func (c *Collector) ResetOffsets() {
	c.store.Reset()
}

// HighwaterOffsets returns a copy of the collected highwater offsets.
func (c *Collector) HighwaterOffsets() HighwaterOffsetTable {
	return c.store.HighwaterOffsets()
}

// ConsumerOffsets returns a copy of the collected consumer offsets.
func (c *Collector) ConsumerOffsets() ConsumerOffsetTable {
	return c.store.ConsumerOffsets()
}

// PartitionsForTopic returns the partition ids of the given topic. Metadata is requested for each call.
func (c *Collector) PartitionsForTopic(ctx context.Context, topic string) ([]int32, error) {
	partitions, err := c.admin.PartitionsForTopic(ctx, topic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get partitions for topic")
	}
	if partitions == nil {
		partitions = []int32{}
	}

	return partitions, nil
}
