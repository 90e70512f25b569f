package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cloudhut/kconsumer/offsets"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"go.uber.org/zap"
)

// Admin implements offsets.ClusterAdmin on top of a franz-go admin client. All listing sessions share the cached
// handle of the Service, hence sessions are not scoped to a consumer group.
type Admin struct {
	svc    *Service
	logger *zap.Logger
}

var _ offsets.ClusterAdmin = (*Admin)(nil)

func NewAdmin(svc *Service, logger *zap.Logger) *Admin {
	return &Admin{
		svc:    svc,
		logger: logger.Named("franz_admin"),
	}
}

func (a *Admin) client(ctx context.Context) (*kadm.Client, error) {
	handle, err := a.svc.EnsureConnected(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to kafka: %w", err)
	}
	return handle.Admin, nil
}

// ListGroups returns the ids of all consumer groups. Brokers that fail to respond are logged and skipped as long
// as at least one broker responded.
func (a *Admin) ListGroups(ctx context.Context) ([]string, error) {
	adm, err := a.client(ctx)
	if err != nil {
		return nil, err
	}

	groups, err := adm.ListGroups(ctx)
	if err != nil {
		if err := a.handleShardErrors("list consumer groups", err); err != nil {
			return nil, err
		}
	}

	return groups.Groups(), nil
}

// FetchOffsets returns the committed offsets of a single group.
func (a *Admin) FetchOffsets(ctx context.Context, group string) (offsets.GroupOffsets, error) {
	adm, err := a.client(ctx)
	if err != nil {
		return offsets.GroupOffsets{}, err
	}

	resps, err := adm.FetchOffsets(ctx, group)
	if err != nil {
		return offsets.GroupOffsets{}, fmt.Errorf("failed to fetch offsets of consumer group '%v': %w", group, err)
	}

	return groupOffsetsFromResponses(group, resps), nil
}

// OpenSession returns a listing session. The franz backend lists topics with the shared client for every group.
func (a *Admin) OpenSession(ctx context.Context, group string) (offsets.ListingSession, error) {
	adm, err := a.client(ctx)
	if err != nil {
		return nil, err
	}

	return &session{admin: a, adm: adm, group: group}, nil
}

// PartitionsForTopic requests fresh metadata for the given topic.
func (a *Admin) PartitionsForTopic(ctx context.Context, topic string) ([]int32, error) {
	adm, err := a.client(ctx)
	if err != nil {
		return nil, err
	}

	details, err := adm.ListTopicsWithInternal(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to request metadata: %w", err)
	}

	detail, exists := details[topic]
	if !exists || errors.Is(detail.Err, kerr.UnknownTopicOrPartition) {
		return []int32{}, nil
	}
	if detail.Err != nil {
		return nil, fmt.Errorf("failed to describe topic '%v'. Inner kafka error: %w", topic, detail.Err)
	}

	return partitionIDs(detail.Partitions), nil
}

// handleShardErrors returns nil if only some brokers failed to respond to a sharded request.
func (a *Admin) handleShardErrors(request string, err error) error {
	var se *kadm.ShardErrors
	if !errors.As(err, &se) {
		return fmt.Errorf("failed to %s: %w", request, err)
	}

	if se.AllFailed {
		return fmt.Errorf("failed to %s, all shard responses failed: %w", request, err)
	}
	a.logger.Info(fmt.Sprintf("failed to %s from some shards", request), zap.Int("failed_shards", len(se.Errs)))
	for _, shardErr := range se.Errs {
		a.logger.Warn(fmt.Sprintf("shard error for %s", request),
			zap.Int32("broker_id", shardErr.Broker.NodeID),
			zap.Error(shardErr.Err))
	}

	return nil
}

type session struct {
	admin *Admin
	adm   *kadm.Client
	group string
}

func (s *session) ListTopics(ctx context.Context) (offsets.TopicPartitions, error) {
	details, err := s.adm.ListTopicsWithInternal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to request metadata: %w", err)
	}

	return topicPartitionsFromDetails(details, s.admin.logger), nil
}

func (s *session) HighWatermarks(ctx context.Context, topic string, partitions []int32) (map[int32]offsets.PartitionResult, error) {
	listed, err := s.adm.ListEndOffsets(ctx, topic)
	if err != nil {
		if err := s.admin.handleShardErrors("list end offsets", err); err != nil {
			return nil, err
		}
	}

	return watermarksFromListed(topic, partitions, listed), nil
}

func (s *session) Close() {}

func groupOffsetsFromResponses(group string, resps kadm.OffsetResponses) offsets.GroupOffsets {
	res := offsets.GroupOffsets{Group: group}
	resps.Each(func(resp kadm.OffsetResponse) {
		result := offsets.PartitionResult{Offset: resp.At, Err: resp.Err}
		if result.Err == nil && result.Offset < 0 {
			result = offsets.PartitionResult{Err: offsets.ErrNoCommittedOffset}
		}
		res.Partitions = append(res.Partitions, offsets.PartitionOffset{
			Topic:           resp.Topic,
			Partition:       resp.Partition,
			PartitionResult: result,
		})
	})

	sort.Slice(res.Partitions, func(i, j int) bool {
		if res.Partitions[i].Topic != res.Partitions[j].Topic {
			return res.Partitions[i].Topic < res.Partitions[j].Topic
		}
		return res.Partitions[i].Partition < res.Partitions[j].Partition
	})

	return res
}

func topicPartitionsFromDetails(details kadm.TopicDetails, logger *zap.Logger) offsets.TopicPartitions {
	topics := make(offsets.TopicPartitions, len(details))
	for name, detail := range details {
		if detail.Err != nil {
			logger.Warn("failed to describe topic, skipping it",
				zap.String("topic_name", name),
				zap.Error(detail.Err))
			continue
		}
		topics[name] = partitionIDs(detail.Partitions)
	}

	return topics
}

func watermarksFromListed(topic string, partitions []int32, listed kadm.ListedOffsets) map[int32]offsets.PartitionResult {
	res := make(map[int32]offsets.PartitionResult, len(partitions))
	for _, partition := range partitions {
		offset, exists := listed.Lookup(topic, partition)
		if !exists {
			continue
		}
		res[partition] = offsets.PartitionResult{Offset: offset.Offset, Err: offset.Err}
	}

	return res
}

func partitionIDs(partitions kadm.PartitionDetails) []int32 {
	ids := make([]int32, 0, len(partitions))
	for id := range partitions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
