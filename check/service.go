package check

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/cloudhut/kconsumer/offsets"
)

// Reporter receives the snapshot of each successful collection cycle.
type Reporter interface {
	Report(ctx context.Context, snapshot *Snapshot) error
}

// Service runs collection cycles. Cycles never overlap, the latest completed snapshot is published atomically.
type Service struct {
	Cfg    Config
	logger *zap.Logger

	collector *offsets.Collector
	reporters []Reporter

	instanceID   string
	latest       atomic.Value
	cyclesTotal  *atomic.Int64
	cyclesFailed *atomic.Int64
}

func NewService(cfg Config, logger *zap.Logger, collector *offsets.Collector, reporters ...Reporter) *Service {
	instanceID := uuid.NewString()
	return &Service{
		Cfg:          cfg,
		logger:       logger.Named("check").With(zap.String("instance_id", instanceID)),
		collector:    collector,
		reporters:    reporters,
		instanceID:   instanceID,
		cyclesTotal:  atomic.NewInt64(0),
		cyclesFailed: atomic.NewInt64(0),
	}
}

// Start runs a cycle immediately and then once per interval until the context is cancelled. Failed cycles are
// logged and retried with the next tick, except for configuration errors which can't be recovered from.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.Cfg.Interval)
	defer ticker.Stop()

	for {
		_, err := s.RunCycle(ctx)
		if err != nil {
			var cfgErr *offsets.ConfigurationError
			if errors.As(err, &cfgErr) {
				return err
			}
			if ctx.Err() == nil {
				s.logger.Error("collection cycle failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle resets the collected offsets, collects highwater and consumer offsets, computes the lags and passes
// the resulting snapshot to all reporters.
func (s *Service) RunCycle(ctx context.Context) (snapshot *Snapshot, err error) {
	cycle := s.cyclesTotal.Inc()
	span, ctx := tracer.StartSpanFromContext(ctx, "kconsumer.cycle", tracer.ResourceName("collect_offsets"))
	span.SetTag("instance_id", s.instanceID)
	span.SetTag("cycle", cycle)
	defer func() {
		if err != nil {
			s.cyclesFailed.Inc()
		}
		span.Finish(tracer.WithError(err))
	}()

	ctx, cancel := context.WithTimeout(ctx, s.Cfg.Timeout)
	defer cancel()

	startedAt := time.Now()
	s.collector.ResetOffsets()

	highwaterReport, err := s.collector.CollectHighwaterOffsets(ctx, s.collector.Cfg.GroupIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to collect highwater offsets: %w", err)
	}

	consumerReport, err := s.collector.CollectConsumerOffsets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect consumer offsets: %w", err)
	}

	highwater := s.collector.HighwaterOffsets()
	consumer := s.collector.ConsumerOffsets()
	lags := ComputeLags(highwater, consumer)
	s.logLags(lags)

	snapshot = &Snapshot{
		InstanceID:       s.instanceID,
		Cycle:            cycle,
		StartedAt:        startedAt,
		Duration:         time.Since(startedAt),
		Tags:             s.Cfg.Tags,
		HighwaterOffsets: highwater,
		ConsumerOffsets:  consumer,
		Lags:             lags,
		Highwater:        highwaterReport,
		Consumer:         consumerReport,
	}
	s.latest.Store(snapshot)

	s.logger.Info(fmt.Sprintf("collection cycle complete in %v", strings.ToLower(units.HumanDuration(snapshot.Duration))),
		zap.Int64("cycle", cycle),
		zap.Int("highwater_offsets", len(highwater)),
		zap.Int("consumer_offsets", len(consumer)),
		zap.Int("failed_partitions", len(highwaterReport.Errors)+len(consumerReport.PartitionErrors())),
		zap.Int("failed_groups", consumerReport.FailedGroups()))

	for _, reporter := range s.reporters {
		if err := reporter.Report(ctx, snapshot); err != nil {
			s.logger.Warn("failed to report collected offsets", zap.Error(err))
		}
	}

	return snapshot, nil
}

func (s *Service) logLags(lags LagReport) {
	for _, lag := range lags.NegativeLags() {
		s.logger.Warn("consumer offset is ahead of the highwater offset, lag is negative",
			zap.String("consumer_group", lag.Group),
			zap.String("topic_name", lag.Topic),
			zap.Int32("partition_id", lag.Partition),
			zap.Int64("highwater_offset", lag.HighwaterOffset),
			zap.Int64("consumer_offset", lag.ConsumerOffset))
	}
	if len(lags.Unreported) > 0 {
		s.logger.Debug("consumer groups have committed offsets on partitions we don't have highwater offsets for",
			zap.Int("unreported_partitions", len(lags.Unreported)))
	}
}

// LatestSnapshot returns the snapshot of the latest successful cycle.
func (s *Service) LatestSnapshot() (*Snapshot, bool) {
	snapshot, ok := s.latest.Load().(*Snapshot)
	return snapshot, ok
}

// InstanceID identifies this check instance in logs, traces and reported metrics.
func (s *Service) InstanceID() string {
	return s.instanceID
}

// CyclesTotal returns the number of started cycles.
func (s *Service) CyclesTotal() int64 {
	return s.cyclesTotal.Load()
}

// CyclesFailed returns the number of failed cycles.
func (s *Service) CyclesFailed() int64 {
	return s.cyclesFailed.Load()
}
