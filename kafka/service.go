package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/pkg/kversion"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Handle is an established administrative connection to a Kafka cluster.
type Handle struct {
	ConnectionString string
	Client           *kgo.Client
	Admin            *kadm.Client
}

// Service provides administrative connections to Kafka clusters. Connections are established lazily on first use
// and cached per connection string for the lifetime of the service. Cached handles are neither health checked nor
// expired, they are only dropped via Reset or Close.
type Service struct {
	cfg    Config
	logger *zap.Logger
	hooks  *clientHooks

	// requestGroup deduplicates concurrent connection attempts for the same connection string
	requestGroup *singleflight.Group
	handles      map[string]*Handle
	handlesLock  sync.RWMutex

	// testConnection verifies a freshly created handle before it is cached
	testConnection func(ctx context.Context, handle *Handle) error
}

// NewService creates the service without connecting to Kafka. Call EnsureConnected to establish the connection.
func NewService(cfg Config, logger *zap.Logger, metricsNamespace string, reg prometheus.Registerer) *Service {
	logger = logger.Named("kafka")
	hooksChildLogger := logger.With(zap.String("source", "kafka_client_hooks"))

	s := &Service{
		cfg:          cfg,
		logger:       logger,
		hooks:        newClientHooks(hooksChildLogger, metricsNamespace, reg),
		requestGroup: &singleflight.Group{},
		handles:      make(map[string]*Handle),
	}
	s.testConnection = s.TestConnection

	return s
}

// Config returns the configuration the service has been created with.
func (s *Service) Config() Config {
	return s.cfg
}

// EnsureConnected returns the handle for the configured cluster. The handle is created on the first call, all
// subsequent calls return the cached handle.
func (s *Service) EnsureConnected(ctx context.Context) (*Handle, error) {
	return s.HandleFor(ctx, s.cfg)
}

// HandleFor returns the cached handle for the cluster that is described by the given config, or creates one if
// there is none yet.
func (s *Service) HandleFor(ctx context.Context, cfg Config) (*Handle, error) {
	connStr := cfg.ConnectionString()
	if handle, exists := s.getHandle(connStr); exists {
		return handle, nil
	}

	res, err, _ := s.requestGroup.Do(connStr, func() (interface{}, error) {
		if handle, exists := s.getHandle(connStr); exists {
			return handle, nil
		}

		handle, err := s.connect(ctx, cfg)
		if err != nil {
			return nil, err
		}

		s.handlesLock.Lock()
		s.handles[connStr] = handle
		s.handlesLock.Unlock()

		return handle, nil
	})
	if err != nil {
		return nil, err
	}

	return res.(*Handle), nil
}

func (s *Service) connect(ctx context.Context, cfg Config) (*Handle, error) {
	kgoOpts, err := NewKgoConfig(cfg, s.logger, s.hooks)
	if err != nil {
		return nil, fmt.Errorf("failed to create a valid kafka Client config: %w", err)
	}

	kafkaClient, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka Client: %w", err)
	}

	handle := &Handle{
		ConnectionString: cfg.ConnectionString(),
		Client:           kafkaClient,
		Admin:            kadm.NewClient(kafkaClient),
	}
	if err := s.testConnection(ctx, handle); err != nil {
		kafkaClient.Close()
		return nil, err
	}

	return handle, nil
}

func (s *Service) getHandle(connStr string) (*Handle, bool) {
	s.handlesLock.RLock()
	defer s.handlesLock.RUnlock()

	handle, exists := s.handles[connStr]
	return handle, exists
}

// Reset closes and drops the cached handle of the given connection string. The next request creates a new one.
func (s *Service) Reset(connStr string) {
	s.handlesLock.Lock()
	handle, exists := s.handles[connStr]
	delete(s.handles, connStr)
	s.handlesLock.Unlock()

	if exists {
		handle.Client.Close()
	}
}

// Close closes all cached handles.
func (s *Service) Close() {
	s.handlesLock.Lock()
	defer s.handlesLock.Unlock()

	for connStr, handle := range s.handles {
		handle.Client.Close()
		delete(s.handles, connStr)
	}
}

// TestConnection tries to fetch Broker metadata and prints some information if connection succeeds. An error will be
// returned if connecting fails or if the cluster does not support the requests needed to collect offsets.
func (s *Service) TestConnection(ctx context.Context, handle *Handle) error {
	s.logger.Info("connecting to Kafka seed brokers, trying to fetch cluster metadata",
		zap.String("seed_brokers", strings.ReplaceAll(handle.ConnectionString, ",", ", ")))

	req := kmsg.NewMetadataRequest()
	req.Topics = nil
	res, err := req.RequestWith(ctx, handle.Client)
	if err != nil {
		return fmt.Errorf("failed to request metadata: %w", err)
	}

	// Request versions in order to guess Kafka Cluster version
	versionsRes, err := GetAPIVersions(ctx, handle.Client)
	if err != nil {
		return err
	}
	versions := kversion.FromApiVersionsResponse(versionsRes)

	if err := EnsureCompatibility(ctx, handle.Client); err != nil {
		return fmt.Errorf("failed to check feature compatibility against Kafka: %w", err)
	}

	s.logger.Info("successfully connected to kafka cluster",
		zap.Int("advertised_broker_count", len(res.Brokers)),
		zap.Int("topic_count", len(res.Topics)),
		zap.Int32("controller_id", res.ControllerID),
		zap.String("kafka_version", versions.VersionGuess()))

	return nil
}
