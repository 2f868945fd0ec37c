package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oriys/halo/internal/api"
	"github.com/oriys/halo/internal/api/dataplane"
	"github.com/oriys/halo/internal/calltracker"
	"github.com/oriys/halo/internal/config"
	"github.com/oriys/halo/internal/diag"
	"github.com/oriys/halo/internal/dispatch"
	grpcapi "github.com/oriys/halo/internal/grpc"
	"github.com/oriys/halo/internal/logging"
	"github.com/oriys/halo/internal/metrics"
	"github.com/oriys/halo/internal/notify"
	"github.com/oriys/halo/internal/observability"
	"github.com/oriys/halo/internal/store"
	"github.com/oriys/halo/internal/telemetry"
	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	var (
		logLevel   string
		httpAddr   string
		grpcListen string
		pgDSN      string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the Halo invocation daemon",
		Long:  "Serve the bound operations over HTTP and gRPC until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if cmd.Flags().Changed("http") {
				cfg.Server.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.Server.GRPCAddr = grpcListen
			}
			if cmd.Flags().Changed("pg-dsn") {
				cfg.Postgres.DSN = pgDSN
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logging.SetLevelFromString(cfg.Logging.Level)
			logging.InitStructured(cfg.Logging.Format, cfg.Logging.Level)

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Telemetry.Tracing.Enabled,
				Exporter:    cfg.Telemetry.Tracing.Exporter,
				Endpoint:    cfg.Telemetry.Tracing.Endpoint,
				ServiceName: cfg.Telemetry.Tracing.ServiceName,
				SampleRate:  cfg.Telemetry.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Telemetry.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Telemetry.Metrics.Namespace, cfg.Telemetry.Metrics.HistogramBuckets)
			}

			var collectors telemetry.Multi
			if cfg.Telemetry.Log {
				collectors = append(collectors, telemetry.NewLogCollector(nil))
			}
			if cfg.Telemetry.Metrics.Enabled {
				collectors = append(collectors, metrics.Collector{})
			}

			var records dataplane.RecordStore
			if cfg.Records.Enabled {
				pgStore, err := store.NewPostgresStore(context.Background(), cfg.Postgres.DSN)
				if err != nil {
					return fmt.Errorf("open record store: %w", err)
				}
				defer pgStore.Close()

				batcher := store.NewBatcher(pgStore, store.BatcherConfig{
					BatchSize:     cfg.Records.BatchSize,
					BufferSize:    cfg.Records.BufferSize,
					FlushInterval: time.Duration(cfg.Records.FlushIntervalMs) * time.Millisecond,
				})
				defer batcher.Shutdown(5 * time.Second)

				collectors = append(collectors, store.NewRecordCollector(batcher))
				records = pgStore
			}

			var notifier notify.Notifier
			switch cfg.Notifier {
			case "redis":
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				if err := client.Ping(context.Background()).Err(); err != nil {
					return fmt.Errorf("redis ping: %w", err)
				}
				notifier = notify.NewRedisNotifier(client)
			case "none":
				notifier = notify.NewNoopNotifier()
			default:
				notifier = notify.NewChannelNotifier()
			}
			defer notifier.Close()

			tracker := calltracker.New(
				time.Duration(cfg.Calls.TTLSeconds)*time.Second,
				time.Duration(cfg.Calls.CleanupIntervalSeconds)*time.Second,
			)
			defer tracker.Close()

			settings := make(map[string]dispatch.Settings, len(cfg.Operations))
			for name, pol := range cfg.Operations {
				settings[name] = dispatch.Settings{
					Disabled:      pol.Disabled,
					EmitCancelled: pol.EmitCancelled,
				}
			}

			d := dispatch.New(
				dispatch.WithCollector(collectors),
				dispatch.WithPolicy(telemetry.Policy{EmitCancelled: cfg.Telemetry.EmitCancelled}),
				dispatch.WithTracker(tracker),
				dispatch.WithNotifier(notifier),
				dispatch.WithSettings(settings),
			)
			if err := diag.Register(d); err != nil {
				return fmt.Errorf("register diagnostics: %w", err)
			}

			if cfg.Server.GRPCAddr != "" {
				srv := grpcapi.NewServer(d)
				if err := srv.Start(cfg.Server.GRPCListener, cfg.Server.GRPCAddr); err != nil {
					return fmt.Errorf("start gRPC server: %w", err)
				}
				defer srv.Stop()
			}

			var httpSrv *http.Server
			if cfg.Server.HTTPAddr != "" {
				httpSrv = api.StartHTTPServer(cfg.Server.HTTPAddr, api.ServerConfig{
					Dispatcher: d,
					Records:    records,
				})
			}

			logging.Op().Info("halo daemon started",
				"http", cfg.Server.HTTPAddr,
				"grpc", cfg.Server.GRPCAddr,
				"operations", len(d.Operations()))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logging.Op().Info("shutdown signal received")

			if httpSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				httpSrv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.Flags().StringVar(&httpAddr, "http", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&grpcListen, "grpc-addr", ":9090", "gRPC listen address")
	cmd.Flags().StringVar(&pgDSN, "pg-dsn", "", "Postgres DSN for invocation records")

	return cmd
}
