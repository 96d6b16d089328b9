package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/indexerhq/controlplane/internal/api"
	"github.com/indexerhq/controlplane/internal/artifact"
	"github.com/indexerhq/controlplane/internal/config"
	"github.com/indexerhq/controlplane/internal/coordinator"
	"github.com/indexerhq/controlplane/internal/launcher"
	"github.com/indexerhq/controlplane/internal/logging"
	"github.com/indexerhq/controlplane/internal/prober"
	"github.com/indexerhq/controlplane/internal/queue"
	"github.com/indexerhq/controlplane/internal/store"
	"github.com/indexerhq/controlplane/internal/supervisor"
)

func daemonCmd() *cobra.Command {
	var (
		httpAddr string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the indexer control plane daemon",
		Long:  "Run the HTTP API, queue consumers, and startup recovery for the indexer fleet",
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

			if cmd.Flags().Changed("http") {
				cfg.Daemon.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}

			logging.Configure(cfg.Daemon.LogLevel, cfg.Daemon.LogFormat)

			ctx := context.Background()

			pgStore, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer pgStore.Close()

			artifactStore, err := artifact.NewS3Store(ctx, cfg.ObjectStore)
			if err != nil {
				return fmt.Errorf("build object store client: %w", err)
			}

			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}

			q := queue.NewRedisQueue(redisClient)

			l := launcher.New(launcher.Config{
				BinaryBasePath: cfg.Sink.BinaryBasePath,
				AuthToken:      cfg.Sink.AuthToken,
				RedisURL:       cfg.Sink.RedisURL,
				DefaultPGConn:  cfg.Sink.DefaultPGConnString,
			})
			p := prober.New(5 * time.Second)

			retryPolicy := supervisor.RetryPolicy{
				MaxStartRetries:  cfg.Retry.MaxStartRetries,
				WorkingThreshold: cfg.Retry.WorkingThreshold,
				BaseDelay:        cfg.Retry.BaseDelay,
				MaxDelay:         cfg.Retry.MaxDelay,
			}
			sup := supervisor.New(q, retryPolicy)

			coord := coordinator.New(pgStore, artifactStore, l, p, sup, coordinator.Config{
				StagingDir:        cfg.Sink.StagingDir,
				ProbeDeadline:     cfg.Probe.Deadline,
				ProbePollInterval: cfg.Probe.PollInterval,
			})

			consumerCtx, cancelConsumers := context.WithCancel(ctx)
			defer cancelConsumers()
			coord.RunConsumers(consumerCtx, q, time.Second)

			if err := coord.RecoverAtStartup(ctx, func(ctx context.Context, id string, attempt int) error {
				return q.Publish(ctx, queue.QueueStart, queue.StartPayload{IndexerID: id, Attempt: attempt}, 0)
			}); err != nil {
				logging.Op().Error("startup recovery failed", "error", err)
			}

			var httpServer *http.Server
			if cfg.Daemon.HTTPAddr != "" {
				httpServer = api.StartHTTPServer(cfg.Daemon.HTTPAddr, api.ServerConfig{Coordinator: coord})
				logging.Op().Info("HTTP API started", "addr", cfg.Daemon.HTTPAddr)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logging.Op().Info("shutdown signal received")
			cancelConsumers()
			if httpServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				httpServer.Shutdown(shutdownCtx)
				cancel()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP API address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")

	return cmd
}
