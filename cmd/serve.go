// Package cmd provides the parley service commands.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/config"
	"github.com/parleyhq/parley/pkg/ai"
	"github.com/parleyhq/parley/pkg/buildinfo"
	"github.com/parleyhq/parley/pkg/db"
	"github.com/parleyhq/parley/pkg/events"
	"github.com/parleyhq/parley/pkg/jobs"
	"github.com/parleyhq/parley/pkg/logging"
	"github.com/parleyhq/parley/pkg/rtc"
	"github.com/parleyhq/parley/pkg/store"
	"github.com/parleyhq/parley/pkg/webhook"
)

const serverServiceName = "parley-server"

// NewServeCommand creates the webhook server command.
func NewServeCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook HTTP server",
		Long: `Run the HTTP server that receives webhook deliveries from the realtime
communication platform and routes them to meeting state transitions, call
control, chat replies, and summarization jobs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "path to YAML config file")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg, serverServiceName)
	logger.Info("Starting server",
		logging.F("version", buildinfo.String()),
		logging.F("address", cfg.Server.Address))

	pool, err := db.ConnectWithRetry(ctx, cfg.Database, 5, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()
	prometheus.MustRegister(db.NewPoolStatsCollector(pool, "parley", serverServiceName))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	rtcClient := rtc.NewClient(cfg.RTC)
	metrics := webhook.NewMetrics(prometheus.DefaultRegisterer)

	service := webhook.NewService(cfg.Webhook, webhook.Deps{
		Store:     store.NewPostgresStore(pool, logger),
		Calls:     rtcClient,
		Chat:      rtcClient,
		Provider:  newProvider(cfg),
		Queue:     jobs.NewRedisQueue(rdb, cfg.Queue),
		Publisher: events.NewPublisher(rdb, logger),
		Metrics:   metrics,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/webhook", webhook.NewHandler(service, cfg.RTC.APISecret, metrics, logger))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/version", buildinfo.Handler(serverServiceName))
	mux.HandleFunc("/healthz", healthzHandler(pool))

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// healthzHandler reports database reachability and pool stats.
func healthzHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := db.Check(r.Context(), pool)
		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"db_latency_ms":  status.Latency.Milliseconds(),
			"db_total_conns": status.TotalConns,
			"db_idle_conns":  status.IdleConns,
		})
	}
}

func newLogger(cfg *config.Config, serviceName string) logging.Logger {
	return logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		ServiceName: serviceName,
		Environment: cfg.Logging.Environment,
		JSONFormat:  cfg.Logging.JSONFormat,
	})
}

func newProvider(cfg *config.Config) ai.Provider {
	return ai.NewOpenAIProvider(ai.OpenAIConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})
}
