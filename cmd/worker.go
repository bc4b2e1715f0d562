package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/config"
	"github.com/parleyhq/parley/pkg/buildinfo"
	"github.com/parleyhq/parley/pkg/db"
	"github.com/parleyhq/parley/pkg/events"
	"github.com/parleyhq/parley/pkg/jobs"
	"github.com/parleyhq/parley/pkg/logging"
	"github.com/parleyhq/parley/pkg/store"
)

const workerServiceName = "parley-worker"

// NewWorkerCommand creates the summarization worker command.
func NewWorkerCommand() *cobra.Command {
	var (
		cfgFile     string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the summarization worker",
		Long: `Run the background worker that consumes summarization jobs from the
queue, fetches transcripts, generates meeting summaries, and completes
meetings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			return runWorker(cmd.Context(), cfg, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":8085", "listen address for metrics and health endpoints")
	return cmd
}

func runWorker(ctx context.Context, cfg *config.Config, metricsAddr string) error {
	logger := newLogger(cfg, workerServiceName)
	logger.Info("Starting worker",
		logging.F("version", buildinfo.String()),
		logging.F("queue", cfg.Queue.Name),
		logging.F("workers", cfg.Worker.Count))

	pool, err := db.ConnectWithRetry(ctx, cfg.Database, 5, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()
	prometheus.MustRegister(db.NewPoolStatsCollector(pool, "parley", workerServiceName))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	queue := jobs.NewRedisQueue(rdb, cfg.Queue)
	summarizer := jobs.NewSummarizer(
		store.NewPostgresStore(pool, logger),
		newProvider(cfg),
		events.NewPublisher(rdb, logger),
		logger,
	)

	workers := jobs.NewPool(cfg.Worker, queue, summarizer.Handle, logger)
	workers.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/version", buildinfo.Handler(workerServiceName))
	mux.HandleFunc("/healthz", workerHealthzHandler(rdb, queue))

	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			workers.Stop()
			return fmt.Errorf("metrics server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down worker",
		logging.F("processed", workers.Processed()),
		logging.F("failed", workers.Failed()))
	workers.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// workerHealthzHandler reports Redis reachability and queue depth.
func workerHealthzHandler(rdb *redis.Client, queue *jobs.RedisQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
			return
		}
		depth, _ := queue.Depth(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"queue_depth": depth,
		})
	}
}
