// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"valuation-workers/internal/common/camunda"
	"valuation-workers/internal/common/config"
	"valuation-workers/internal/common/database"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/common/observability"
	"valuation-workers/internal/repository"
	"valuation-workers/internal/valuation"
	"valuation-workers/pkg/registry"

	bvr "valuation-workers/internal/workers/valuation/build-valuation-report"
	cv "valuation-workers/internal/workers/valuation/calculate-valuation"
	sc "valuation-workers/internal/workers/valuation/select-comparables"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	log, zapLog := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	if err := cfg.ValidateServices(); err != nil {
		zapLog.Fatal("service configuration invalid", zap.Error(err))
	}

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	serviceName := cfg.App.Name
	if serviceName == "" {
		serviceName = "worker-manager"
	}
	obs := observability.New(serviceName)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Zeebe ---
	zeebe, err := camunda.NewClientWithConfig(&camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		RetryConfig: &camunda.RetryConfig{
			MaxRetries: 10,
			BaseDelay:  2 * time.Second,
			MaxDelay:   30 * time.Second,
		},
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	if dir := cfg.Camunda.ProcessDir; dir != "" {
		deployed, err := zeebe.DeployProcesses(ctx, dir)
		if err != nil {
			zapLog.Fatal("process deployment failed", zap.String("dir", dir), zap.Error(err))
		}
		zapLog.Info("processes deployed", zap.Strings("files", deployed))
	}

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	checks := []readinessCheck{
		{name: "zeebe", check: zeebe.HealthCheck},
		{name: "postgres", check: pg.Ping},
	}

	var repo valuation.PropertyRepository = repository.NewPostgresRepository(pg, log)

	// --- Elasticsearch (optional comparables source) ---
	if cfg.Database.Elasticsearch.Enabled() {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully",
			zap.String("index", cfg.Database.Elasticsearch.ComparablesIndex))

		repo = repository.NewSearchRepository(repo, es, cfg.Database.Elasticsearch.ComparablesIndex, log)
		checks = append(checks, readinessCheck{name: "elasticsearch", check: func(context.Context) error { return es.Ping() }})
	} else {
		zapLog.Info("Elasticsearch not configured, comparables served from PostgreSQL")
	}

	// --- Redis ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	repo = repository.NewCachedRepository(repo, redis, cfg.Database.Redis.TTL(), log)
	checks = append(checks, readinessCheck{name: "redis", check: redis.Ping})

	engine := valuation.NewEngine(cfg.Valuation, log)

	// --- Workers ---
	handlers := map[string]worker.JobHandler{
		cv.TaskType:  cv.NewHandler(cv.LoadConfig(config.GetWorkerConfig(cfg, cv.TaskType)), engine, repo, obs, log).Handle,
		sc.TaskType:  sc.NewHandler(sc.LoadConfig(config.GetWorkerConfig(cfg, sc.TaskType)), engine, repo, log).Handle,
		bvr.TaskType: bvr.NewHandler(bvr.LoadConfig(cfg), log).Handle,
	}

	taskTypes := []string{sc.TaskType, cv.TaskType, bvr.TaskType}

	// --- Activity registry ---
	reg, err := registry.LoadRegistry(cfg.App.RegistryPath)
	if err != nil {
		zapLog.Warn("activity registry unavailable", zap.String("path", cfg.App.RegistryPath), zap.Error(err))
		reg = &registry.ActivityRegistry{}
	} else if missing := reg.Unregistered(taskTypes...); len(missing) > 0 {
		zapLog.Warn("workers missing from activity registry", zap.Strings("taskTypes", missing))
	}

	var jobWorkers []worker.JobWorker
	for _, taskType := range taskTypes {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		if !wcfg.Enabled {
			zapLog.Info("worker disabled", zap.String("taskType", taskType))
			continue
		}
		jobWorkers = append(jobWorkers, camunda.StartWorker(zeebe.Zeebe(), camunda.WorkerOptions{
			TaskType:      taskType,
			MaxJobsActive: wcfg.MaxJobsActive,
			Timeout:       config.GetDuration(wcfg.Timeout),
		}, handlers[taskType], zapLog))
	}
	zapLog.Info("workers registered", zap.Int("count", len(jobWorkers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status, code := "ready", http.StatusOK
		failures := map[string]string{}
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				failures[c.name] = err.Error()
			}
		}
		if len(failures) > 0 {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status":   status,
			"failures": failures,
			"time":     time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/activities", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reg)
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, jw := range jobWorkers {
		jw.Close()
	}
	for _, jw := range jobWorkers {
		jw.AwaitClose()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
