package check

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudhut/kconsumer/offsets"
)

// fakeAdmin serves a static cluster state.
type fakeAdmin struct {
	topics     offsets.TopicPartitions
	highwater  map[offsets.TopicPartition]int64
	groups     map[string][]offsets.PartitionOffset
	listingErr error
}

func (f *fakeAdmin) ListGroups(_ context.Context) ([]string, error) {
	groups := make([]string, 0, len(f.groups))
	for group := range f.groups {
		groups = append(groups, group)
	}
	return groups, nil
}

func (f *fakeAdmin) FetchOffsets(_ context.Context, group string) (offsets.GroupOffsets, error) {
	partitions, exists := f.groups[group]
	if !exists {
		return offsets.GroupOffsets{}, errors.New("group coordinator not available")
	}
	return offsets.GroupOffsets{Group: group, Partitions: partitions}, nil
}

func (f *fakeAdmin) OpenSession(_ context.Context, _ string) (offsets.ListingSession, error) {
	return f, nil
}

func (f *fakeAdmin) PartitionsForTopic(_ context.Context, topic string) ([]int32, error) {
	return f.topics[topic], nil
}

func (f *fakeAdmin) ListTopics(_ context.Context) (offsets.TopicPartitions, error) {
	if f.listingErr != nil {
		return nil, f.listingErr
	}
	return f.topics, nil
}

func (f *fakeAdmin) HighWatermarks(_ context.Context, topic string, partitions []int32) (map[int32]offsets.PartitionResult, error) {
	res := make(map[int32]offsets.PartitionResult)
	for _, partition := range partitions {
		if offset, exists := f.highwater[offsets.TopicPartition{Topic: topic, Partition: partition}]; exists {
			res[partition] = offsets.PartitionResult{Offset: offset}
		}
	}
	return res, nil
}

func (f *fakeAdmin) Close() {}

type recordingReporter struct {
	snapshots []*Snapshot
	err       error
}

func (r *recordingReporter) Report(_ context.Context, snapshot *Snapshot) error {
	r.snapshots = append(r.snapshots, snapshot)
	return r.err
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{
		topics: offsets.TopicPartitions{"marvel": {0, 1}, "__consumer_offsets": {0}},
		highwater: map[offsets.TopicPartition]int64{
			{Topic: "marvel", Partition: 0}: 100,
			{Topic: "marvel", Partition: 1}: 80,
		},
		groups: map[string][]offsets.PartitionOffset{
			"my_consumer": {
				{Topic: "marvel", Partition: 0, PartitionResult: offsets.PartitionResult{Offset: 90}},
				{Topic: "marvel", Partition: 1, PartitionResult: offsets.PartitionResult{Offset: 80}},
			},
		},
	}
}

func newTestService(t *testing.T, admin offsets.ClusterAdmin, offsetsCfg offsets.Config, reporters ...Reporter) *Service {
	t.Helper()

	collector, err := offsets.NewCollector(offsetsCfg, zap.NewNop(), admin)
	require.NoError(t, err)

	cfg := Config{}
	cfg.SetDefaults()
	cfg.Tags = []string{"env:test"}
	return NewService(cfg, zap.NewNop(), collector, reporters...)
}

func TestService_RunCycle(t *testing.T) {
	reporter := &recordingReporter{}
	offsetsCfg := offsets.Config{ConsumerGroups: []offsets.ConsumerGroupConfig{{GroupID: "my_consumer"}}}
	svc := newTestService(t, newFakeAdmin(), offsetsCfg, reporter)

	_, exists := svc.LatestSnapshot()
	assert.False(t, exists)

	snapshot, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, svc.InstanceID(), snapshot.InstanceID)
	assert.Equal(t, int64(1), snapshot.Cycle)
	assert.Equal(t, []string{"env:test"}, snapshot.Tags)
	assert.Len(t, snapshot.HighwaterOffsets, 2)
	assert.Equal(t, []PartitionLag{
		{Group: "my_consumer", Topic: "marvel", Partition: 0, HighwaterOffset: 100, ConsumerOffset: 90, Lag: 10},
		{Group: "my_consumer", Topic: "marvel", Partition: 1, HighwaterOffset: 80, ConsumerOffset: 80, Lag: 0},
	}, snapshot.Lags.Lags)
	assert.Equal(t, map[string]map[string]map[int32]int64{
		"my_consumer": {"marvel": {0: 90, 1: 80}},
	}, snapshot.ConsumerOffsetsByGroup())

	latest, exists := svc.LatestSnapshot()
	require.True(t, exists)
	assert.Same(t, snapshot, latest)
	require.Len(t, reporter.snapshots, 1)
	assert.Same(t, snapshot, reporter.snapshots[0])
}

func TestService_SnapshotsAreIndependent(t *testing.T) {
	admin := newFakeAdmin()
	offsetsCfg := offsets.Config{ConsumerGroups: []offsets.ConsumerGroupConfig{{GroupID: "my_consumer"}}}
	svc := newTestService(t, admin, offsetsCfg)

	first, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	admin.highwater[offsets.TopicPartition{Topic: "marvel", Partition: 0}] = 200
	second, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(100), first.HighwaterOffsets[offsets.TopicPartition{Topic: "marvel", Partition: 0}])
	assert.Equal(t, int64(200), second.HighwaterOffsets[offsets.TopicPartition{Topic: "marvel", Partition: 0}])
	assert.Equal(t, int64(2), svc.CyclesTotal())
}

func TestService_ReporterFailureDoesNotFailCycle(t *testing.T) {
	failing := &recordingReporter{err: errors.New("statsd unreachable")}
	working := &recordingReporter{}
	offsetsCfg := offsets.Config{MonitorUnlistedConsumerGroups: true}
	svc := newTestService(t, newFakeAdmin(), offsetsCfg, failing, working)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, working.snapshots, 1)
	assert.Equal(t, int64(0), svc.CyclesFailed())
}

func TestService_ListingFailureFailsCycle(t *testing.T) {
	admin := newFakeAdmin()
	admin.listingErr = errors.New("broker unavailable")
	offsetsCfg := offsets.Config{MonitorUnlistedConsumerGroups: true}
	svc := newTestService(t, admin, offsetsCfg)

	_, err := svc.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(1), svc.CyclesFailed())
	_, exists := svc.LatestSnapshot()
	assert.False(t, exists)
}

func TestService_StartAbortsOnConfigurationError(t *testing.T) {
	svc := newTestService(t, newFakeAdmin(), offsets.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := svc.Start(ctx)
	var cfgErr *offsets.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, int64(1), svc.CyclesTotal())
}

func TestService_StartStopsOnCancel(t *testing.T) {
	offsetsCfg := offsets.Config{MonitorUnlistedConsumerGroups: true}
	svc := newTestService(t, newFakeAdmin(), offsetsCfg)
	svc.Cfg.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- svc.Start(ctx)
	}()

	require.Eventually(t, func() bool { return svc.CyclesTotal() >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("check did not stop after the context has been cancelled")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())

	cfg.Timeout = cfg.Interval + time.Second
	assert.Error(t, cfg.Validate())

	cfg.Interval = 0
	assert.Error(t, cfg.Validate())
}
