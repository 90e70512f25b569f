// Package librdkafka implements the offset collection backend on top of librdkafka. In contrast to the franz-go
// backend every listing session is a consumer that joins the cluster with the group id it lists topics for.
package librdkafka

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/cloudhut/kconsumer/kafka"
	"github.com/cloudhut/kconsumer/offsets"
)

// Default timeout for requests to Kafka if a context is passed in with no deadline set.
var defaultTimeout = 5 * time.Second

// groupAdmin is the subset of *ckafka.AdminClient that is used to read consumer groups.
type groupAdmin interface {
	ListConsumerGroups(ctx context.Context, options ...ckafka.ListConsumerGroupsAdminOption) (ckafka.ListConsumerGroupsResult, error)
	ListConsumerGroupOffsets(ctx context.Context, groupsPartitions []ckafka.ConsumerGroupTopicPartitions,
		options ...ckafka.ListConsumerGroupOffsetsAdminOption) (ckafka.ListConsumerGroupOffsetsResult, error)
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*ckafka.Metadata, error)
	Close()
}

// metadataConsumer is the subset of *ckafka.Consumer that is used by listing sessions.
type metadataConsumer interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*ckafka.Metadata, error)
	QueryWatermarkOffsets(topic string, partition int32, timeoutMs int) (low, high int64, err error)
	Close() error
}

type AdminFactoryFunc func(conf *ckafka.ConfigMap) (groupAdmin, error)
type ConsumerFactoryFunc func(conf *ckafka.ConfigMap) (metadataConsumer, error)

// Admin implements offsets.ClusterAdmin with librdkafka. The admin client is created on first use and cached.
type Admin struct {
	cfg    kafka.Config
	logger *zap.Logger

	newAdmin    AdminFactoryFunc
	newConsumer ConsumerFactoryFunc

	adminLock sync.Mutex
	admin     groupAdmin
}

var _ offsets.ClusterAdmin = (*Admin)(nil)

func NewAdmin(cfg kafka.Config, logger *zap.Logger) *Admin {
	return newAdminWithFactories(cfg, logger,
		func(conf *ckafka.ConfigMap) (groupAdmin, error) {
			return ckafka.NewAdminClient(conf)
		},
		func(conf *ckafka.ConfigMap) (metadataConsumer, error) {
			return ckafka.NewConsumer(conf)
		})
}

func newAdminWithFactories(cfg kafka.Config, logger *zap.Logger, newAdmin AdminFactoryFunc, newConsumer ConsumerFactoryFunc) *Admin {
	return &Admin{
		cfg:         cfg,
		logger:      logger.Named("librdkafka_admin"),
		newAdmin:    newAdmin,
		newConsumer: newConsumer,
	}
}

func (a *Admin) client() (groupAdmin, error) {
	a.adminLock.Lock()
	defer a.adminLock.Unlock()

	if a.admin != nil {
		return a.admin, nil
	}

	kafkaCfg, err := cfgToConfigMap(a.cfg, "")
	if err != nil {
		return nil, fmt.Errorf("[config] %w", err)
	}
	admin, err := a.newAdmin(kafkaCfg)
	if err != nil {
		return nil, fmt.Errorf("[librdkafka] %w", err)
	}
	a.admin = admin

	return admin, nil
}

// Close closes the cached admin client.
func (a *Admin) Close() {
	a.adminLock.Lock()
	defer a.adminLock.Unlock()

	if a.admin != nil {
		a.admin.Close()
		a.admin = nil
	}
}

func (a *Admin) ListGroups(ctx context.Context) ([]string, error) {
	admin, err := a.client()
	if err != nil {
		return nil, err
	}

	res, err := admin.ListConsumerGroups(ctx, ckafka.SetAdminRequestTimeout(timeout(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to list consumer groups: %w", err)
	}
	for _, listErr := range res.Errors {
		a.logger.Warn("failed to list consumer groups from some brokers", zap.Error(listErr))
	}

	groups := make([]string, 0, len(res.Valid))
	for _, listing := range res.Valid {
		groups = append(groups, listing.GroupID)
	}
	sort.Strings(groups)

	return groups, nil
}

func (a *Admin) FetchOffsets(ctx context.Context, group string) (offsets.GroupOffsets, error) {
	admin, err := a.client()
	if err != nil {
		return offsets.GroupOffsets{}, err
	}

	req := []ckafka.ConsumerGroupTopicPartitions{{Group: group}}
	res, err := admin.ListConsumerGroupOffsets(ctx, req, ckafka.SetAdminRequireStableOffsets(false))
	if err != nil {
		return offsets.GroupOffsets{}, fmt.Errorf("failed to fetch offsets of consumer group '%v': %w", group, err)
	}

	for _, groupRes := range res.ConsumerGroupsTopicPartitions {
		if groupRes.Group == group {
			return groupOffsetsFromPartitions(group, groupRes.Partitions), nil
		}
	}

	return offsets.GroupOffsets{}, fmt.Errorf("response did not contain offsets of consumer group '%v'", group)
}

// OpenSession creates a consumer with the given group id. The consumer never subscribes to any topic, it is only
// used for metadata and watermark requests.
func (a *Admin) OpenSession(_ context.Context, group string) (offsets.ListingSession, error) {
	groupID := group
	if groupID == "" {
		groupID = defaultGroupID
	}

	kafkaCfg, err := cfgToConfigMap(a.cfg, groupID)
	if err != nil {
		return nil, fmt.Errorf("[config] %w", err)
	}
	consumer, err := a.newConsumer(kafkaCfg)
	if err != nil {
		return nil, fmt.Errorf("[librdkafka] %w", err)
	}

	return &session{consumer: consumer, group: group, logger: a.logger}, nil
}

func (a *Admin) PartitionsForTopic(ctx context.Context, topic string) ([]int32, error) {
	admin, err := a.client()
	if err != nil {
		return nil, err
	}

	md, err := admin.GetMetadata(&topic, false, timeoutMs(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to request metadata: %w", err)
	}

	detail, exists := md.Topics[topic]
	if !exists || detail.Error.Code() == ckafka.ErrUnknownTopicOrPart || detail.Error.Code() == ckafka.ErrUnknownTopic {
		return []int32{}, nil
	}
	if detail.Error.Code() != ckafka.ErrNoError {
		return nil, fmt.Errorf("failed to describe topic '%v': %w", topic, detail.Error)
	}

	return partitionIDs(detail.Partitions), nil
}

type session struct {
	consumer metadataConsumer
	group    string
	logger   *zap.Logger
}

func (s *session) ListTopics(ctx context.Context) (offsets.TopicPartitions, error) {
	md, err := s.consumer.GetMetadata(nil, true, timeoutMs(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to request metadata: %w", err)
	}

	topics := make(offsets.TopicPartitions, len(md.Topics))
	for name, detail := range md.Topics {
		if detail.Error.Code() != ckafka.ErrNoError {
			s.logger.Warn("failed to describe topic, skipping it",
				zap.String("consumer_group", s.group),
				zap.String("topic_name", name),
				zap.Error(detail.Error))
			continue
		}
		topics[name] = partitionIDs(detail.Partitions)
	}

	return topics, nil
}

// HighWatermarks queries the watermarks of each partition. librdkafka has no batched watermark request, a failed
// request only affects the partition it was issued for.
func (s *session) HighWatermarks(ctx context.Context, topic string, partitions []int32) (map[int32]offsets.PartitionResult, error) {
	res := make(map[int32]offsets.PartitionResult, len(partitions))
	for _, partition := range partitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, high, err := s.consumer.QueryWatermarkOffsets(topic, partition, timeoutMs(ctx))
		res[partition] = offsets.PartitionResult{Offset: high, Err: err}
	}

	return res, nil
}

func (s *session) Close() {
	if err := s.consumer.Close(); err != nil {
		s.logger.Debug("failed to close listing session", zap.String("consumer_group", s.group), zap.Error(err))
	}
}

func groupOffsetsFromPartitions(group string, partitions []ckafka.TopicPartition) offsets.GroupOffsets {
	res := offsets.GroupOffsets{Group: group}
	for _, tp := range partitions {
		if tp.Topic == nil {
			continue
		}

		result := offsets.PartitionResult{Offset: int64(tp.Offset), Err: tp.Error}
		if result.Err == nil && result.Offset < 0 {
			result = offsets.PartitionResult{Err: offsets.ErrNoCommittedOffset}
		}
		res.Partitions = append(res.Partitions, offsets.PartitionOffset{
			Topic:           *tp.Topic,
			Partition:       tp.Partition,
			PartitionResult: result,
		})
	}

	return res
}

func partitionIDs(partitions []ckafka.PartitionMetadata) []int32 {
	ids := make([]int32, 0, len(partitions))
	for _, partition := range partitions {
		ids = append(ids, partition.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// timeout returns the time left until the context deadline, or the default timeout if no deadline is set.
func timeout(ctx context.Context) time.Duration {
	if dl, set := ctx.Deadline(); set {
		return time.Until(dl)
	}
	return defaultTimeout
}

func timeoutMs(ctx context.Context) int {
	return int(timeout(ctx).Milliseconds())
}
