package librdkafka

import (
	"context"
	"errors"
	"testing"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudhut/kconsumer/kafka"
	"github.com/cloudhut/kconsumer/offsets"
)

// mockedAdminClient is a mocked implementation of groupAdmin.
type mockedAdminClient struct {
	mock.Mock
}

func (m *mockedAdminClient) ListConsumerGroups(ctx context.Context, _ ...ckafka.ListConsumerGroupsAdminOption) (ckafka.ListConsumerGroupsResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(ckafka.ListConsumerGroupsResult), args.Error(1)
}

func (m *mockedAdminClient) ListConsumerGroupOffsets(ctx context.Context, groupsPartitions []ckafka.ConsumerGroupTopicPartitions,
	_ ...ckafka.ListConsumerGroupOffsetsAdminOption) (ckafka.ListConsumerGroupOffsetsResult, error) {
	args := m.Called(ctx, groupsPartitions)
	return args.Get(0).(ckafka.ListConsumerGroupOffsetsResult), args.Error(1)
}

func (m *mockedAdminClient) GetMetadata(topic *string, allTopics bool, _ int) (*ckafka.Metadata, error) {
	args := m.Called(topic, allTopics)
	md, _ := args.Get(0).(*ckafka.Metadata)
	return md, args.Error(1)
}

func (m *mockedAdminClient) Close() {
	m.Called()
}

// fakeConsumer serves metadata and watermarks from memory.
type fakeConsumer struct {
	metadata   *ckafka.Metadata
	watermarks map[int32]int64
	closed     bool
}

func (c *fakeConsumer) GetMetadata(_ *string, _ bool, _ int) (*ckafka.Metadata, error) {
	return c.metadata, nil
}

func (c *fakeConsumer) QueryWatermarkOffsets(_ string, partition int32, _ int) (int64, int64, error) {
	high, exists := c.watermarks[partition]
	if !exists {
		return 0, 0, ckafka.NewError(ckafka.ErrNotLeaderForPartition, "not leader", false)
	}
	return 0, high, nil
}

func (c *fakeConsumer) Close() error {
	c.closed = true
	return nil
}

func strPtr(s string) *string {
	return &s
}

func testConfig() kafka.Config {
	cfg := kafka.Config{}
	cfg.SetDefaults()
	cfg.Brokers = []string{"kafka:9092"}
	cfg.Backend = kafka.BackendLibrdkafka
	return cfg
}

func newTestAdmin(admin groupAdmin, consumer metadataConsumer, configs *[]*ckafka.ConfigMap) *Admin {
	return newAdminWithFactories(testConfig(), zap.NewNop(),
		func(conf *ckafka.ConfigMap) (groupAdmin, error) {
			return admin, nil
		},
		func(conf *ckafka.ConfigMap) (metadataConsumer, error) {
			if configs != nil {
				*configs = append(*configs, conf)
			}
			return consumer, nil
		})
}

func TestAdmin_ListGroups(t *testing.T) {
	client := &mockedAdminClient{}
	client.On("ListConsumerGroups", mock.Anything).Return(ckafka.ListConsumerGroupsResult{
		Valid: []ckafka.ConsumerGroupListing{{GroupID: "zeta"}, {GroupID: "alpha"}},
	}, nil)

	a := newTestAdmin(client, nil, nil)
	groups, err := a.ListGroups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, groups)

	// The admin client is created once and reused
	_, err = a.ListGroups(context.Background())
	require.NoError(t, err)
	client.AssertNumberOfCalls(t, "ListConsumerGroups", 2)
}

func TestAdmin_FetchOffsets(t *testing.T) {
	client := &mockedAdminClient{}
	client.On("ListConsumerGroupOffsets", mock.Anything, []ckafka.ConsumerGroupTopicPartitions{{Group: "my_consumer"}}).
		Return(ckafka.ListConsumerGroupOffsetsResult{
			ConsumerGroupsTopicPartitions: []ckafka.ConsumerGroupTopicPartitions{{
				Group: "my_consumer",
				Partitions: []ckafka.TopicPartition{
					{Topic: strPtr("marvel"), Partition: 0, Offset: 5},
					{Topic: strPtr("marvel"), Partition: 1, Offset: ckafka.OffsetInvalid},
					{Topic: strPtr("dc"), Partition: 0, Error: ckafka.NewError(ckafka.ErrUnknownTopicOrPart, "unknown", false)},
				},
			}},
		}, nil)

	a := newTestAdmin(client, nil, nil)
	res, err := a.FetchOffsets(context.Background(), "my_consumer")
	require.NoError(t, err)
	require.Len(t, res.Partitions, 3)

	assert.Equal(t, offsets.PartitionResult{Offset: 5}, res.Partitions[0].PartitionResult)
	assert.ErrorIs(t, res.Partitions[1].Err, offsets.ErrNoCommittedOffset)
	assert.Error(t, res.Partitions[2].Err)
}

func TestAdmin_FetchOffsetsRequestFailure(t *testing.T) {
	client := &mockedAdminClient{}
	client.On("ListConsumerGroupOffsets", mock.Anything, mock.Anything).
		Return(ckafka.ListConsumerGroupOffsetsResult{}, errors.New("timed out"))

	a := newTestAdmin(client, nil, nil)
	_, err := a.FetchOffsets(context.Background(), "my_consumer")
	assert.Error(t, err)
}

func TestAdmin_PartitionsForTopic(t *testing.T) {
	client := &mockedAdminClient{}
	client.On("GetMetadata", mock.Anything, false).Return(&ckafka.Metadata{
		Topics: map[string]ckafka.TopicMetadata{
			"marvel": {Topic: "marvel", Partitions: []ckafka.PartitionMetadata{{ID: 1}, {ID: 0}}},
		},
	}, nil)

	a := newTestAdmin(client, nil, nil)
	partitions, err := a.PartitionsForTopic(context.Background(), "marvel")
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1}, partitions)

	partitions, err = a.PartitionsForTopic(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, []int32{}, partitions)
}

func TestSession_ScopedToGroup(t *testing.T) {
	consumer := &fakeConsumer{
		metadata: &ckafka.Metadata{
			Topics: map[string]ckafka.TopicMetadata{
				"marvel": {Topic: "marvel", Partitions: []ckafka.PartitionMetadata{{ID: 0}, {ID: 1}}},
				"broken": {Topic: "broken", Error: ckafka.NewError(ckafka.ErrTopicAuthorizationFailed, "denied", false)},
			},
		},
		watermarks: map[int32]int64{0: 10},
	}

	var configs []*ckafka.ConfigMap
	a := newTestAdmin(nil, consumer, &configs)

	s, err := a.OpenSession(context.Background(), "my_consumer")
	require.NoError(t, err)
	_, err = a.OpenSession(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, configs, 2)
	groupID, err := configs[0].Get("group.id", nil)
	require.NoError(t, err)
	assert.Equal(t, "my_consumer", groupID)
	groupID, err = configs[1].Get("group.id", nil)
	require.NoError(t, err)
	assert.Equal(t, defaultGroupID, groupID)

	topics, err := s.ListTopics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, offsets.TopicPartitions{"marvel": {0, 1}}, topics)

	marks, err := s.HighWatermarks(context.Background(), "marvel", []int32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, offsets.PartitionResult{Offset: 10}, marks[0])
	assert.Error(t, marks[1].Err)

	s.Close()
	assert.True(t, consumer.closed)
}
