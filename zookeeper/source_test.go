package zookeeper

import (
	"context"
	"errors"
	"path"
	"strings"
	"testing"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudhut/kconsumer/offsets"
)

// stubConn serves a static tree of znodes.
type stubConn struct {
	data   map[string]string
	closed bool
}

func (s *stubConn) Children(p string) ([]string, *zk.Stat, error) {
	children := make(map[string]struct{})
	found := false
	for node := range s.data {
		if node == p {
			found = true
			continue
		}
		if !strings.HasPrefix(node, p+"/") {
			continue
		}
		found = true
		rest := strings.TrimPrefix(node, p+"/")
		children[strings.SplitN(rest, "/", 2)[0]] = struct{}{}
	}
	if !found {
		return nil, nil, zk.ErrNoNode
	}

	res := make([]string, 0, len(children))
	for child := range children {
		res = append(res, child)
	}
	return res, &zk.Stat{}, nil
}

func (s *stubConn) Get(p string) ([]byte, *zk.Stat, error) {
	d, exists := s.data[p]
	if !exists {
		return nil, nil, zk.ErrNoNode
	}
	return []byte(d), &zk.Stat{}, nil
}

func (s *stubConn) Close() {
	s.closed = true
}

func newTestSource(stub *stubConn, prefix string) *Source {
	src := NewSource(Config{Servers: []string{"zk:2181"}, Prefix: prefix}, zap.NewNop())
	src.dial = func(_ Config) (conn, error) {
		return stub, nil
	}
	return src
}

func TestSource_ListGroups(t *testing.T) {
	stub := &stubConn{data: map[string]string{
		"/kafka/consumers/zeta/offsets/marvel/0":  "1",
		"/kafka/consumers/alpha/offsets/marvel/0": "2",
		"/kafka/consumers/empty":                  "",
	}}

	groups, err := newTestSource(stub, "kafka").ListGroups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "empty", "zeta"}, groups)
}

func TestSource_ListGroupsWithoutConsumers(t *testing.T) {
	groups, err := newTestSource(&stubConn{}, "").ListGroups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestSource_FetchOffsets(t *testing.T) {
	stub := &stubConn{data: map[string]string{
		"/consumers/my_consumer/offsets/marvel/0":   "10",
		"/consumers/my_consumer/offsets/marvel/1":   " 12\n",
		"/consumers/my_consumer/offsets/dc/0":       "garbage",
		"/consumers/my_consumer/offsets/dc/1":       "-1",
		"/consumers/my_consumer/offsets/dc/invalid": "3",
	}}
	src := newTestSource(stub, "")

	res, err := src.FetchOffsets(context.Background(), "my_consumer")
	require.NoError(t, err)
	require.Len(t, res.Partitions, 4)

	assert.Equal(t, "dc", res.Partitions[0].Topic)
	assert.Error(t, res.Partitions[0].Err)
	assert.ErrorIs(t, res.Partitions[1].Err, offsets.ErrNoCommittedOffset)
	assert.Equal(t, offsets.PartitionOffset{Topic: "marvel", Partition: 0, PartitionResult: offsets.PartitionResult{Offset: 10}}, res.Partitions[2])
	assert.Equal(t, int64(12), res.Partitions[3].Offset)

	src.Close()
	assert.True(t, stub.closed)
}

func TestSource_FetchOffsetsUnknownGroup(t *testing.T) {
	_, err := newTestSource(&stubConn{}, "").FetchOffsets(context.Background(), "unknown")
	assert.True(t, errors.Is(err, zk.ErrNoNode))
}

func TestSource_ConnectsOnce(t *testing.T) {
	dials := 0
	stub := &stubConn{data: map[string]string{path.Join("/consumers", "g", "offsets", "t", "0"): "1"}}
	src := newTestSource(stub, "")
	src.dial = func(_ Config) (conn, error) {
		dials++
		return stub, nil
	}

	_, err := src.ListGroups(context.Background())
	require.NoError(t, err)
	_, err = src.FetchOffsets(context.Background(), "g")
	require.NoError(t, err)
	assert.Equal(t, 1, dials)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())

	cfg.Servers = []string{"zk:2181"}
	assert.NoError(t, cfg.Validate())

	cfg.Prefix = "/kafka"
	assert.Error(t, cfg.Validate())
}
