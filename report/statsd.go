package report

import (
	"context"

	"github.com/PagerDuty/godspeed"
)

// gauger is the subset of *godspeed.Godspeed that is used for reporting.
type gauger interface {
	Gauge(stat string, value float64, tags []string) error
	Close() error
}

// StatsDWriter sends gauges to a DogStatsD agent.
type StatsDWriter struct {
	gsw gauger
}

func NewStatsDWriter(cfg StatsDConfig) (*StatsDWriter, error) {
	host, port, err := splitHostPort(cfg.Addr, 8125)
	if err != nil {
		return nil, err
	}

	gs, err := godspeed.New(host, port, false)
	if err != nil {
		return nil, err
	}
	gs.Namespace = cfg.Namespace

	return &StatsDWriter{gsw: gs}, nil
}

func (w *StatsDWriter) Name() string {
	return "statsd"
}

func (w *StatsDWriter) Write(ctx context.Context, samples []Sample, tags []string) error {
	for _, sample := range samples {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.gsw.Gauge(sample.Name, sample.Value, sample.TagList(tags)); err != nil {
			return err
		}
	}
	return nil
}

func (w *StatsDWriter) Close() error {
	return w.gsw.Close()
}
