package report

import (
	"context"

	dd "github.com/zorkian/go-datadog-api"
)

// metricPoster is the subset of *dd.Client that is used for reporting.
type metricPoster interface {
	PostMetrics(series []dd.Metric) error
}

// DatadogWriter posts all samples of a snapshot to the Datadog API.
type DatadogWriter struct {
	cfg    DatadogConfig
	client metricPoster
}

func NewDatadogWriter(cfg DatadogConfig) *DatadogWriter {
	return &DatadogWriter{
		cfg:    cfg,
		client: dd.NewClient(cfg.APIKey, cfg.AppKey),
	}
}

func (w *DatadogWriter) Name() string {
	return "datadog"
}

func (w *DatadogWriter) Write(_ context.Context, samples []Sample, tags []string) error {
	series := make([]dd.Metric, 0, len(samples))
	for _, sample := range samples {
		ts := float64(sample.Timestamp.Unix())
		value := sample.Value

		metric := dd.Metric{
			Points: []dd.DataPoint{{&ts, &value}},
			Tags:   sample.TagList(tags),
		}
		metric.SetMetric(sample.Name)
		metric.SetType("gauge")
		if w.cfg.Host != "" {
			metric.SetHost(w.cfg.Host)
		}
		series = append(series, metric)
	}

	return w.client.PostMetrics(series)
}

func (w *DatadogWriter) Close() error {
	return nil
}
