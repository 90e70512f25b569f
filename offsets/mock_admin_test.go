package offsets

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// mockAdmin is a stubbed implementation of ClusterAdmin.
type mockAdmin struct {
	mock.Mock
}

func (m *mockAdmin) ListGroups(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	groups, _ := args.Get(0).([]string)
	return groups, args.Error(1)
}

func (m *mockAdmin) FetchOffsets(ctx context.Context, group string) (GroupOffsets, error) {
	args := m.Called(ctx, group)
	return args.Get(0).(GroupOffsets), args.Error(1)
}

func (m *mockAdmin) OpenSession(ctx context.Context, group string) (ListingSession, error) {
	args := m.Called(ctx, group)
	session, _ := args.Get(0).(ListingSession)
	return session, args.Error(1)
}

func (m *mockAdmin) PartitionsForTopic(ctx context.Context, topic string) ([]int32, error) {
	args := m.Called(ctx, topic)
	partitions, _ := args.Get(0).([]int32)
	return partitions, args.Error(1)
}

// fakeSession serves topics and watermarks from memory.
type fakeSession struct {
	topics     TopicPartitions
	watermarks map[TopicPartition]PartitionResult
	listErr    error
	closed     bool
}

func (s *fakeSession) ListTopics(_ context.Context) (TopicPartitions, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.topics, nil
}

func (s *fakeSession) HighWatermarks(_ context.Context, topic string, partitions []int32) (map[int32]PartitionResult, error) {
	res := make(map[int32]PartitionResult)
	for _, partition := range partitions {
		mark, exists := s.watermarks[TopicPartition{Topic: topic, Partition: partition}]
		if exists {
			res[partition] = mark
		}
	}
	return res, nil
}

func (s *fakeSession) Close() {
	s.closed = true
}

func ok(offset int64) PartitionResult {
	return PartitionResult{Offset: offset}
}

func failed(err error) PartitionResult {
	return PartitionResult{Err: err}
}

func partitionOffset(topic string, partition int32, res PartitionResult) PartitionOffset {
	return PartitionOffset{Topic: topic, Partition: partition, PartitionResult: res}
}
