package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/cloudhut/kconsumer/check"
	"github.com/cloudhut/kconsumer/kafka"
	"github.com/cloudhut/kconsumer/librdkafka"
	"github.com/cloudhut/kconsumer/logging"
	"github.com/cloudhut/kconsumer/offsets"
	"github.com/cloudhut/kconsumer/prometheus"
	"github.com/cloudhut/kconsumer/report"
	"github.com/cloudhut/kconsumer/zookeeper"
)

var (
	// version is set at build time via ldflags
	version = "development"

	configFilepath string
)

var rootCmd = &cobra.Command{
	Use:   "kconsumer",
	Short: "Collects consumer group offsets and lags of a Kafka cluster",
	Long: `kconsumer periodically collects the highwater offsets of all topic partitions
and the committed offsets of consumer groups, computes the consumer lag and
exposes it via Prometheus and the configured reporters.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the check periodically and expose the results via Prometheus",
	Args:  cobra.NoArgs,
	RunE:  run,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a single check cycle and print the offsets and lags as JSON",
	Args:  cobra.NoArgs,
	RunE:  collect,
}

var partitionsCmd = &cobra.Command{
	Use:   "partitions <topic>",
	Short: "Print the partition ids of a topic",
	Args:  cobra.ExactArgs(1),
	RunE:  partitions,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFilepath, "config", "", "Path to the YAML config file (defaults to $CONFIG_FILEPATH)")
	rootCmd.AddCommand(runCmd, collectCmd, partitionsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles all services that are created from the config.
type app struct {
	cfg       Config
	logger    *zap.Logger
	registry  *promclient.Registry
	collector *offsets.Collector
	checkSvc  *check.Service
	observer  *report.Observer

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context) (*app, error) {
	startupLogger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create startup logger: %w", err)
	}

	cfg, err := newConfig(startupLogger, configFilepath)
	if err != nil {
		startupLogger.Error("failed to parse config", zap.Error(err))
		return nil, err
	}

	a := &app{cfg: cfg, registry: promclient.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.logger = logging.NewLogger(cfg.Logger, cfg.Exporter.Namespace, a.registry)
	a.logger.Info("started kconsumer", zap.String("version", version))

	admin, err := a.newClusterAdmin(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var opts []offsets.Option
	if cfg.Offsets.Source == offsets.SourceZookeeper {
		zkSource := zookeeper.NewSource(cfg.Zookeeper, a.logger)
		a.closers = append(a.closers, zkSource.Close)
		opts = append(opts, offsets.WithOffsetSource(zkSource))
	}

	a.collector, err = offsets.NewCollector(cfg.Offsets, a.logger, admin, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create offset collector: %w", err)
	}

	a.observer, err = report.NewObserverFromConfig(cfg.Reporters, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.observer.Close)

	a.checkSvc = check.NewService(cfg.Check, a.logger, a.collector, a.observer)

	return a, nil
}

// newClusterAdmin creates the cluster admin of the configured backend. The franz backend connects right away so
// that misconfigurations are reported at startup.
func (a *app) newClusterAdmin(ctx context.Context) (offsets.ClusterAdmin, error) {
	switch a.cfg.Kafka.Backend {
	case kafka.BackendLibrdkafka:
		admin := librdkafka.NewAdmin(a.cfg.Kafka, a.logger)
		a.closers = append(a.closers, admin.Close)
		return admin, nil
	default:
		kafkaSvc := kafka.NewService(a.cfg.Kafka, a.logger, a.cfg.Exporter.Namespace, a.registry)
		a.closers = append(a.closers, kafkaSvc.Close)

		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if _, err := kafkaSvc.EnsureConnected(connectCtx); err != nil {
			a.logger.Error("failed to connect to kafka cluster", zap.Error(err))
			return nil, err
		}
		return kafka.NewAdmin(kafkaSvc, a.logger), nil
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	if a.cfg.Tracing.Enabled {
		tracer.Start(
			tracer.WithService(a.cfg.Tracing.ServiceName),
			tracer.WithAgentAddr(a.cfg.Tracing.AgentAddr),
			tracer.WithServiceVersion(version),
		)
		defer tracer.Stop()
	}

	// Create prometheus exporter
	exporter, err := prometheus.NewExporter(a.cfg.Exporter, logger, a.checkSvc)
	if err != nil {
		logger.Error("failed to setup prometheus exporter", zap.Error(err))
		return err
	}
	exporter.InitializeMetrics()
	a.registry.MustRegister(exporter)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if _, exists := a.checkSvc.LatestSnapshot(); !exists {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:    net.JoinHostPort(a.cfg.Exporter.Host, strconv.Itoa(a.cfg.Exporter.Port)),
		Handler: mux,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening on address", zap.String("listen_address", srv.Addr))
		var err error
		if a.cfg.Exporter.TLSCertFile != "" {
			err = srv.ListenAndServeTLS(a.cfg.Exporter.TLSCertFile, a.cfg.Exporter.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start exporter: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.checkSvc.Start(gCtx)
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// collectOutput is printed by the collect command.
type collectOutput struct {
	InstanceID       string                                `json:"instanceId"`
	Duration         string                                `json:"duration"`
	HighwaterOffsets map[string]map[int32]int64            `json:"highwaterOffsets"`
	ConsumerOffsets  map[string]map[string]map[int32]int64 `json:"consumerOffsets"`
	Lags             []check.PartitionLag                  `json:"lags"`
	Unreported       []offsets.GroupTopicPartition         `json:"unreported,omitempty"`
}

func newCollectOutput(snapshot *check.Snapshot) collectOutput {
	highwater := make(map[string]map[int32]int64)
	for tp, offset := range snapshot.HighwaterOffsets {
		if _, exists := highwater[tp.Topic]; !exists {
			highwater[tp.Topic] = make(map[int32]int64)
		}
		highwater[tp.Topic][tp.Partition] = offset
	}

	return collectOutput{
		InstanceID:       snapshot.InstanceID,
		Duration:         snapshot.Duration.String(),
		HighwaterOffsets: highwater,
		ConsumerOffsets:  snapshot.ConsumerOffsetsByGroup(),
		Lags:             snapshot.Lags.Lags,
		Unreported:       snapshot.Lags.Unreported,
	}
}

func collect(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	snapshot, err := a.checkSvc.RunCycle(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(newCollectOutput(snapshot))
}

func partitions(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Kafka.RequestTimeout)
	defer cancel()
	partitionIDs, err := a.collector.PartitionsForTopic(ctx, args[0])
	if err != nil {
		return err
	}

	for _, id := range partitionIDs {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}
