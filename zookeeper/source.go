// Package zookeeper reads consumer offsets that legacy consumers committed to ZooKeeper.
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-zookeeper/zk"
	"go.uber.org/zap"

	"github.com/cloudhut/kconsumer/offsets"
)

// conn is the subset of *zk.Conn that is needed to read offsets.
type conn interface {
	Children(path string) ([]string, *zk.Stat, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Close()
}

type dialFunc func(cfg Config) (conn, error)

// Source implements offsets.OffsetSource for offsets stored under /consumers/<group>/offsets/<topic>/<partition>.
// The connection is established on first use.
type Source struct {
	cfg    Config
	logger *zap.Logger

	dial     dialFunc
	connLock sync.Mutex
	conn     conn
}

var _ offsets.OffsetSource = (*Source)(nil)

func NewSource(cfg Config, logger *zap.Logger) *Source {
	return &Source{
		cfg:    cfg,
		logger: logger.Named("zookeeper"),
		dial: func(cfg Config) (conn, error) {
			c, _, err := zk.Connect(cfg.Servers, cfg.SessionTimeout, zk.WithLogInfo(false))
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

func (s *Source) connection() (conn, error) {
	s.connLock.Lock()
	defer s.connLock.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}

	c, err := s.dial(s.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper '%v': %w", strings.Join(s.cfg.Servers, ","), err)
	}
	s.conn = c

	return c, nil
}

// Close closes the ZooKeeper connection if there is one.
func (s *Source) Close() {
	s.connLock.Lock()
	defer s.connLock.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Source) consumersPath(elems ...string) string {
	return path.Join(append([]string{"/", s.cfg.Prefix, "consumers"}, elems...)...)
}

// ListGroups returns all groups that have a node below /consumers.
func (s *Source) ListGroups(_ context.Context) ([]string, error) {
	c, err := s.connection()
	if err != nil {
		return nil, err
	}

	p := s.consumersPath()
	groups, _, err := c.Children(p)
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("[%s] %w", p, err)
	}
	sort.Strings(groups)

	return groups, nil
}

// FetchOffsets reads all offsets of the given group. Partitions whose offset node can't be read or parsed are
// reported as partition errors.
func (s *Source) FetchOffsets(ctx context.Context, group string) (offsets.GroupOffsets, error) {
	res := offsets.GroupOffsets{Group: group}

	c, err := s.connection()
	if err != nil {
		return res, err
	}

	offsetsPath := s.consumersPath(group, "offsets")
	topics, _, err := c.Children(offsetsPath)
	if err != nil {
		return res, fmt.Errorf("[%s] %w", offsetsPath, err)
	}
	sort.Strings(topics)

	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		topicPath := s.consumersPath(group, "offsets", topic)
		partitions, _, err := c.Children(topicPath)
		if err != nil {
			return res, fmt.Errorf("[%s] %w", topicPath, err)
		}

		ids := make([]int32, 0, len(partitions))
		for _, partition := range partitions {
			id, err := strconv.ParseInt(partition, 10, 32)
			if err != nil {
				s.logger.Warn("skipping offset node with invalid partition id",
					zap.String("consumer_group", group),
					zap.String("topic_name", topic),
					zap.String("node", partition))
				continue
			}
			ids = append(ids, int32(id))
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			res.Partitions = append(res.Partitions, offsets.PartitionOffset{
				Topic:           topic,
				Partition:       id,
				PartitionResult: s.readOffset(c, path.Join(topicPath, strconv.Itoa(int(id)))),
			})
		}
	}

	return res, nil
}

func (s *Source) readOffset(c conn, p string) offsets.PartitionResult {
	data, _, err := c.Get(p)
	if err != nil {
		return offsets.PartitionResult{Err: fmt.Errorf("[%s] %w", p, err)}
	}

	offset, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return offsets.PartitionResult{Err: fmt.Errorf("[%s] invalid offset: %w", p, err)}
	}
	if offset < 0 {
		return offsets.PartitionResult{Err: offsets.ErrNoCommittedOffset}
	}

	return offsets.PartitionResult{Offset: offset}
}
