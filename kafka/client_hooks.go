package kafka

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// clientHooks logs connects and disconnects of the franz-go client and counts them in Prometheus metrics.
type clientHooks struct {
	logger *zap.Logger

	requestsSent     prometheus.Counter
	requestsErrored  prometheus.Counter
	connectsFailed   prometheus.Counter
	brokerConnects   *prometheus.CounterVec
	brokerDisconnect *prometheus.CounterVec
}

func newClientHooks(logger *zap.Logger, metricsNamespace string, reg prometheus.Registerer) *clientHooks {
	hooks := &clientHooks{
		logger: logger,
		requestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "kafka",
			Name:      "requests_sent_total",
			Help:      "Total number of requests that have been written to Kafka brokers",
		}),
		requestsErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "kafka",
			Name:      "requests_errored_total",
			Help:      "Total number of requests or responses that failed on the wire",
		}),
		connectsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "kafka",
			Name:      "connects_failed_total",
			Help:      "Total number of failed connection attempts to Kafka brokers",
		}),
		brokerConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "kafka",
			Name:      "broker_connects_total",
			Help:      "Total number of successful connections per broker",
		}, []string{"broker_id"}),
		brokerDisconnect: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "kafka",
			Name:      "broker_disconnects_total",
			Help:      "Total number of disconnects per broker",
		}, []string{"broker_id"}),
	}

	if reg != nil {
		for _, collector := range []prometheus.Collector{
			hooks.requestsSent,
			hooks.requestsErrored,
			hooks.connectsFailed,
			hooks.brokerConnects,
			hooks.brokerDisconnect,
		} {
			if err := reg.Register(collector); err != nil {
				// Multiple handles share the same metrics
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					logger.Warn("failed to register kafka client metrics", zap.Error(err))
				}
			}
		}
	}

	return hooks
}

func (c clientHooks) OnBrokerConnect(meta kgo.BrokerMetadata, dialDur time.Duration, _ net.Conn, err error) {
	if err != nil {
		c.connectsFailed.Inc()
		c.logger.Debug("kafka connection failed", zap.String("broker_host", meta.Host), zap.Error(err))
		return
	}
	c.brokerConnects.WithLabelValues(brokerLabel(meta)).Inc()
	c.logger.Debug("kafka connection succeeded",
		zap.String("host", meta.Host),
		zap.Duration("dial_duration", dialDur))
}

func (c clientHooks) OnBrokerDisconnect(meta kgo.BrokerMetadata, _ net.Conn) {
	c.brokerDisconnect.WithLabelValues(brokerLabel(meta)).Inc()
	c.logger.Debug("kafka broker disconnected",
		zap.String("host", meta.Host))
}

// OnBrokerWrite is called after a write to a broker.
func (c clientHooks) OnBrokerWrite(_ kgo.BrokerMetadata, _ int16, _ int, _, _ time.Duration, err error) {
	c.requestsSent.Inc()
	if err != nil {
		c.requestsErrored.Inc()
	}
}

// OnBrokerRead is called after a read from a broker.
func (c clientHooks) OnBrokerRead(_ kgo.BrokerMetadata, _ int16, _ int, _, _ time.Duration, err error) {
	if err != nil {
		c.requestsErrored.Inc()
	}
}

func brokerLabel(meta kgo.BrokerMetadata) string {
	return strconv.Itoa(int(meta.NodeID))
}
