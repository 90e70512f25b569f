package report

import (
	"context"
	"strings"

	influxdb "github.com/influxdata/influxdb/client/v2"
)

// batchWriter is the subset of influxdb.Client that is used for reporting.
type batchWriter interface {
	Write(bp influxdb.BatchPoints) error
	Close() error
}

// InfluxDBWriter writes all samples of a snapshot as a single batch.
type InfluxDBWriter struct {
	cfg    InfluxDBConfig
	client batchWriter
}

func NewInfluxDBWriter(cfg InfluxDBConfig) (*InfluxDBWriter, error) {
	var client influxdb.Client
	var err error
	if strings.HasPrefix(cfg.Addr, "udp://") {
		client, err = influxdb.NewUDPClient(influxdb.UDPConfig{Addr: strings.TrimPrefix(cfg.Addr, "udp://")})
	} else {
		client, err = influxdb.NewHTTPClient(influxdb.HTTPConfig{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	if err != nil {
		return nil, err
	}

	return &InfluxDBWriter{cfg: cfg, client: client}, nil
}

func (w *InfluxDBWriter) Name() string {
	return "influxdb"
}

func (w *InfluxDBWriter) Write(_ context.Context, samples []Sample, tags []string) error {
	bp, err := influxdb.NewBatchPoints(influxdb.BatchPointsConfig{
		Database:        w.cfg.Database,
		Precision:       w.cfg.Precision,
		RetentionPolicy: w.cfg.RetentionPolicy,
	})
	if err != nil {
		return err
	}

	staticTags := parseTags(tags)
	for _, sample := range samples {
		pointTags := make(map[string]string, len(sample.Tags)+len(staticTags))
		for name, value := range staticTags {
			pointTags[name] = value
		}
		for name, value := range sample.Tags {
			pointTags[name] = value
		}

		point, err := influxdb.NewPoint(sample.Name, pointTags, map[string]interface{}{"value": sample.Value}, sample.Timestamp)
		if err != nil {
			return err
		}
		bp.AddPoint(point)
	}

	return w.client.Write(bp)
}

func (w *InfluxDBWriter) Close() error {
	return w.client.Close()
}

// parseTags converts "name:value" tags into a map. Tags without a value get an empty value.
func parseTags(tags []string) map[string]string {
	res := make(map[string]string, len(tags))
	for _, tag := range tags {
		name, value, _ := strings.Cut(tag, ":")
		res[name] = value
	}
	return res
}
