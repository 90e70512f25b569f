package report

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cloudhut/kconsumer/check"
)

// Writer sends samples to a telemetry backend.
type Writer interface {
	Name() string
	Write(ctx context.Context, samples []Sample, tags []string) error
	Close() error
}

// Observer reports each snapshot to all configured writers. A failing writer does not prevent the others from
// receiving the samples.
type Observer struct {
	logger  *zap.Logger
	writers []Writer
}

var _ check.Reporter = (*Observer)(nil)

func NewObserver(logger *zap.Logger, writers ...Writer) *Observer {
	return &Observer{
		logger:  logger.Named("report"),
		writers: writers,
	}
}

// NewObserverFromConfig creates a writer for each enabled reporter.
func NewObserverFromConfig(cfg Config, logger *zap.Logger) (*Observer, error) {
	var writers []Writer

	if cfg.StatsD.Enabled {
		w, err := NewStatsDWriter(cfg.StatsD)
		if err != nil {
			return nil, fmt.Errorf("failed to create statsd writer: %w", err)
		}
		writers = append(writers, w)
	}

	if cfg.InfluxDB.Enabled {
		w, err := NewInfluxDBWriter(cfg.InfluxDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create influxdb writer: %w", err)
		}
		writers = append(writers, w)
	}

	if cfg.Datadog.Enabled {
		writers = append(writers, NewDatadogWriter(cfg.Datadog))
	}

	return NewObserver(logger, writers...), nil
}

// Writers returns the number of configured writers.
func (o *Observer) Writers() int {
	return len(o.writers)
}

func (o *Observer) Report(ctx context.Context, snapshot *check.Snapshot) error {
	if len(o.writers) == 0 {
		return nil
	}

	samples := samplesFromSnapshot(snapshot)
	tags := append([]string{"instance_id:" + snapshot.InstanceID}, snapshot.Tags...)

	var errs []error
	for _, w := range o.writers {
		if err := w.Write(ctx, samples, tags); err != nil {
			o.logger.Warn("failed to write samples", zap.String("writer", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%v: %w", w.Name(), err))
			continue
		}
		o.logger.Debug("wrote samples", zap.String("writer", w.Name()), zap.Int("samples", len(samples)))
	}

	return errors.Join(errs...)
}

func (o *Observer) Close() {
	for _, w := range o.writers {
		if err := w.Close(); err != nil {
			o.logger.Warn("failed to close writer", zap.String("writer", w.Name()), zap.Error(err))
		}
	}
}
