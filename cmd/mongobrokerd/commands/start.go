package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/halvorsen-oss/mongobroker/internal/bsonutil"
	"github.com/halvorsen-oss/mongobroker/internal/dispatch"
	"github.com/halvorsen-oss/mongobroker/internal/handlers"
	"github.com/halvorsen-oss/mongobroker/internal/logger"
	"github.com/halvorsen-oss/mongobroker/internal/metricsserver"
	"github.com/halvorsen-oss/mongobroker/internal/server"
	"github.com/halvorsen-oss/mongobroker/internal/store"
	"github.com/halvorsen-oss/mongobroker/internal/telemetry"
	"github.com/halvorsen-oss/mongobroker/internal/telemetrypipe"
	"github.com/halvorsen-oss/mongobroker/internal/telemetrypipe/ilp"
	"github.com/halvorsen-oss/mongobroker/internal/telemetrypipe/mongosink"
	"github.com/halvorsen-oss/mongobroker/internal/txn"
	"github.com/halvorsen-oss/mongobroker/internal/version"
	"github.com/halvorsen-oss/mongobroker/pkg/config"
	"github.com/halvorsen-oss/mongobroker/pkg/metrics"

	// Import prometheus metrics to register init() functions
	_ "github.com/halvorsen-oss/mongobroker/pkg/metrics/prometheus"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the mongobroker server",
	Long: `Start the mongobroker server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/mongobroker/config.yaml.

Examples:
  # Start in background (default)
  mongobrokerd start

  # Start in foreground
  mongobrokerd start --foreground

  # Start with custom config file
  mongobrokerd start --config /etc/mongobroker/config.yaml

  # Start with environment variable overrides
  MONGOBROKER_LOGGING_LEVEL=DEBUG mongobrokerd start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/mongobroker/mongobrokerd.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/mongobroker/mongobrokerd.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "mongobroker",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "mongobroker",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("mongobroker - a length-prefixed BSON request broker for MongoDB")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	pool, err := store.New(ctx, store.Config{
		URI:            cfg.Mongo.URI,
		InitialSize:    cfg.Mongo.InitialSize,
		MaxConnections: cfg.Mongo.MaxConnections,
		MaxIdleTime:    cfg.Mongo.MaxIdleTime,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage session pool: %w", err)
	}
	defer func() {
		if err := pool.Close(context.Background()); err != nil {
			logger.Error("storage pool shutdown error", "error", err)
		}
	}()
	logger.Info("Storage session pool ready", "initial_size", cfg.Mongo.InitialSize, "max_connections", cfg.Mongo.MaxConnections)

	versionWriter := version.New(pool.Client(), version.Location{
		Database:   cfg.VersionHistory.Database,
		Collection: cfg.VersionHistory.Collection,
	})
	if err := versionWriter.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure version-history indexes: %w", err)
	}
	logger.Info("Version history ready", "database", cfg.VersionHistory.Database, "collection", cfg.VersionHistory.Collection)

	var pipeline *telemetrypipe.Pipeline
	if cfg.Metrics.Enabled {
		sink, err := newTelemetrySink(cfg, pool)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry sink: %w", err)
		}
		pipeline = telemetrypipe.New(telemetrypipe.Config{
			QueueSize:     cfg.Metrics.QueueCapacity,
			BatchSize:     cfg.Metrics.BatchSize,
			FlushInterval: cfg.Metrics.FlushInterval,
		}, sink, logger.With("component", "telemetrypipe"))
		go pipeline.Run(ctx)
		defer func() {
			if err := pipeline.Close(); err != nil {
				logger.Error("telemetry pipeline shutdown error", "error", err)
			}
		}()
		logger.Info("Telemetry pipeline ready", "sink", cfg.Metrics.Sink)
	}

	deps := &handlers.Deps{Pool: pool, Version: versionWriter, Log: logger.With("component", "handlers")}
	txnExecutor := &txn.Executor{Pool: pool, Version: versionWriter}

	actionHandlers := map[string]dispatch.Handler{
		"retrieve":         deps.Retrieve,
		"create":           deps.Create,
		"createTimeseries": deps.CreateCollection,
		"update":           deps.Update,
		"delete":           deps.Delete,
		"count":            deps.Count,
		"distinct":         deps.Distinct,
		"pipeline":         deps.Pipeline,
		"bulk":             deps.Bulk,
		"createCollection": deps.CreateCollection,
		"renameCollection": deps.RenameCollection,
		"dropCollection":   deps.DropCollection,
		"index":            deps.Index,
		"dropIndex":        deps.DropIndex,
		"transaction":      txnExecutor.Execute,
	}

	var capture dispatch.Capture
	if pipeline != nil {
		capture = func(m dispatch.CapturedMetric) {
			pipeline.Capture(telemetrypipe.Metric{
				Action:        m.Action,
				Database:      m.Database,
				Collection:    m.Collection,
				Size:          m.Size,
				Duration:      m.Duration,
				Timestamp:     m.Timestamp,
				Application:   m.Application,
				CorrelationID: m.CorrelationID,
			})
		}
	}

	dispatcher := dispatch.New(actionHandlers, versionWriter.Location(), capture)

	sessionServer := server.New(server.Config{
		Listen:          cfg.Server.Listen,
		Workers:         cfg.Server.Workers,
		MaxFrameBytes:   uint32(cfg.Server.MaxFrameSize),
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, server.WrapDispatcher(func(ctx context.Context, req *bsonutil.Request) []byte {
		return dispatcher.Dispatch(ctx, req)
	}))

	var metricsHTTP *metricsserver.Server
	if cfg.Metrics.Enabled {
		metricsHTTP = metricsserver.New(metricsserver.Config{
			Port: cfg.Metrics.Port,
			Stats: func() map[string]any {
				stats := pool.Stats()
				snapshot := map[string]any{
					"pool": map[string]any{
						"active":       stats.Active,
						"idle":         stats.Idle,
						"totalCreated": stats.TotalCreated,
						"maxPoolSize":  stats.MaxPoolSize,
					},
				}
				if pipeline != nil {
					snapshot["telemetryQueueDepth"] = pipeline.QueueDepth()
				}
				return snapshot
			},
		}, metrics.GetRegistry())
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- sessionServer.Serve(ctx) }()

	metricsDone := make(chan error, 1)
	if metricsHTTP != nil {
		go func() { metricsDone <- metricsHTTP.Start(ctx) }()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.", "listen", cfg.Server.Listen)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		sessionServer.Stop()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		if metricsHTTP != nil {
			if err := <-metricsDone; err != nil {
				logger.Error("Metrics server shutdown error", "error", err)
			}
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")

	case err := <-metricsDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Metrics server error", "error", err)
			return err
		}
	}

	return nil
}

// newTelemetrySink selects the telemetry-pipeline sink named by
// cfg.Metrics.Sink ("mongo" or "lineprotocol").
func newTelemetrySink(cfg *config.Config, pool *store.Pool) (telemetrypipe.Sink, error) {
	switch cfg.Metrics.Sink {
	case "lineprotocol":
		return ilp.NewSink(cfg.Metrics.LineProtocolAddr, 5*time.Second), nil
	case "mongo", "":
		return mongosink.New(pool.Client(), cfg.Metrics.Database, cfg.Metrics.Collection), nil
	default:
		return nil, fmt.Errorf("unknown metrics sink %q", cfg.Metrics.Sink)
	}
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
