package prometheus

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cloudhut/kconsumer/check"
)

// snapshotProvider is implemented by check.Service.
type snapshotProvider interface {
	LatestSnapshot() (*check.Snapshot, bool)
	InstanceID() string
	CyclesTotal() int64
	CyclesFailed() int64
}

// Exporter is the Prometheus exporter that implements the prometheus.Collector interface. Scrapes never talk to
// Kafka, they expose the snapshot of the latest completed check cycle.
type Exporter struct {
	cfg      Config
	logger   *zap.Logger
	checkSvc snapshotProvider

	// Exporter metrics
	exporterUp   *prometheus.Desc
	cyclesTotal  *prometheus.Desc
	cyclesFailed *prometheus.Desc
	lastCycle    *prometheus.Desc

	// Kafka metrics
	partitionHighWaterMark *prometheus.Desc
	topicHighWaterMarkSum  *prometheus.Desc

	consumerGroupTopicPartitionOffset *prometheus.Desc
	consumerGroupTopicPartitionLag    *prometheus.Desc
	consumerGroupTopicLag             *prometheus.Desc
	consumerGroupUnreported           *prometheus.Desc

	highwaterErrors      *prometheus.Desc
	consumerGroupsFailed *prometheus.Desc
}

func NewExporter(cfg Config, logger *zap.Logger, checkSvc snapshotProvider) (*Exporter, error) {
	return &Exporter{cfg: cfg, logger: logger.Named("prometheus"), checkSvc: checkSvc}, nil
}

func (e *Exporter) InitializeMetrics() {
	e.exporterUp = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "exporter", "up"),
		"Build info about this Prometheus Exporter. Gauge value is 0 if no check cycle has completed yet or the "+
			"latest cycle had errors.",
		nil,
		map[string]string{"version": os.Getenv("EXPORTER_VERSION"), "instance_id": e.checkSvc.InstanceID()},
	)
	e.cyclesTotal = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "exporter", "cycles_total"),
		"Number of started check cycles",
		nil,
		nil,
	)
	e.cyclesFailed = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "exporter", "cycles_failed_total"),
		"Number of check cycles that have failed",
		nil,
		nil,
	)
	e.lastCycle = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "exporter", "last_cycle_duration_seconds"),
		"Duration of the latest completed check cycle",
		nil,
		nil,
	)

	// Topic / Partition metrics
	e.partitionHighWaterMark = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "topic_partition_high_water_mark"),
		"Partition High Water Mark",
		[]string{"topic_name", "partition_id"},
		nil,
	)
	e.topicHighWaterMarkSum = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "topic_high_water_mark_sum"),
		"Sum of all the topic's partition high water marks",
		[]string{"topic_name"},
		nil,
	)

	// Consumer group metrics
	e.consumerGroupTopicPartitionOffset = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "consumer_group_topic_partition_offset"),
		"Committed offset of a consumer group on a partition",
		[]string{"group_id", "topic_name", "partition_id"},
		nil,
	)
	e.consumerGroupTopicPartitionLag = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "consumer_group_topic_partition_lag"),
		"The number of messages a consumer group is lagging behind the latest offset of a partition. May be "+
			"negative if the group committed after the high water mark was fetched.",
		[]string{"group_id", "topic_name", "partition_id"},
		nil,
	)
	e.consumerGroupTopicLag = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "consumer_group_topic_lag"),
		"The number of messages a consumer group is lagging behind across all partitions in a topic",
		[]string{"group_id", "topic_name"},
		nil,
	)
	e.consumerGroupUnreported = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "consumer_group_unreported_partitions"),
		"Number of partitions a consumer group has committed offsets on but no high water mark is known for",
		[]string{"group_id"},
		nil,
	)

	// Collection errors
	e.highwaterErrors = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "high_water_mark_errors"),
		"Number of partitions whose high water mark could not be fetched in the latest cycle",
		nil,
		nil,
	)
	e.consumerGroupsFailed = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "consumer_group_offset_errors"),
		"Number of consumer groups whose committed offsets could not be fetched in the latest cycle",
		nil,
		nil,
	)
}

// Describe implements the prometheus.Collector interface. It sends the
// super-set of all possible descriptors of metrics collected by this
// Collector to the provided channel and returns once the last descriptor
// has been sent. The sent descriptors fulfill the consistency and uniqueness
// requirements described in the Desc documentation.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.exporterUp
	ch <- e.cyclesTotal
	ch <- e.cyclesFailed
	ch <- e.lastCycle
	ch <- e.partitionHighWaterMark
	ch <- e.topicHighWaterMarkSum
	ch <- e.consumerGroupTopicPartitionOffset
	ch <- e.consumerGroupTopicPartitionLag
	ch <- e.consumerGroupTopicLag
	ch <- e.consumerGroupUnreported
	ch <- e.highwaterErrors
	ch <- e.consumerGroupsFailed
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.collectExporterMetrics(ch)

	snapshot, exists := e.checkSvc.LatestSnapshot()
	if !exists {
		e.logger.Debug("no check cycle has completed yet, skipping kafka metrics")
		ch <- prometheus.MustNewConstMetric(e.exporterUp, prometheus.GaugeValue, 0.0)
		return
	}

	ok := e.collectTopicPartitionOffsets(snapshot, ch)
	ok = e.collectConsumerGroupLags(snapshot, ch) && ok

	if ok {
		ch <- prometheus.MustNewConstMetric(e.exporterUp, prometheus.GaugeValue, 1.0)
	} else {
		ch <- prometheus.MustNewConstMetric(e.exporterUp, prometheus.GaugeValue, 0.0)
	}
}
