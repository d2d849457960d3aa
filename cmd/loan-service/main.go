// cmd/loan-service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"loan-origination/internal/api"
	"loan-origination/internal/applications"
	awsclients "loan-origination/internal/common/aws"
	"loan-origination/internal/common/camunda"
	"loan-origination/internal/common/config"
	"loan-origination/internal/common/database"
	"loan-origination/internal/common/logger"
	"loan-origination/internal/common/observability"
	"loan-origination/internal/common/validation"
	"loan-origination/internal/notify"
	"loan-origination/internal/search"
	"loan-origination/internal/sessions"
	"loan-origination/internal/wizard"
	"loan-origination/internal/workflow"
	"loan-origination/pkg/registry"

	nsc "loan-origination/internal/workers/lifecycle/notify-status-change"
	rst "loan-origination/internal/workers/lifecycle/record-status-transition"
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

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	zapLog.Info("Starting loan service...", zap.String("environment", cfg.App.Environment))

	obs, err := observability.New(cfg.App.Name, cfg.Tracing)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(ctx)
	}()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
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

	if cfg.Database.Postgres.AutoMigrate {
		if err := database.RunMigrations(pg.DB); err != nil {
			zapLog.Fatal("migrations failed", zap.Error(err))
		}
		zapLog.Info("Migrations applied")
	}

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	var serviceOpts []applications.Option
	var apiOpts []api.Option
	apiOpts = append(apiOpts,
		api.WithTimeout(config.GetDuration(cfg.Server.RequestTimeout)),
		api.WithReadiness("postgres", pg),
		api.WithReadiness("redis", rdb),
	)

	// --- Init Elasticsearch (optional) ---
	if cfg.Database.Elasticsearch.Enabled() {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")

		queue := search.NewQueue(esClient.Client, esClient.Index)
		serviceOpts = append(serviceOpts, applications.WithIndexer(queue))
		apiOpts = append(apiOpts, api.WithQueue(queue), api.WithReadiness("elasticsearch", esClient))
	} else {
		zapLog.Info("Elasticsearch not configured, work queue served from PostgreSQL")
	}

	// --- Init Zeebe client (optional) ---
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(cfg.Camunda.BrokerAddress, config.GetDuration(cfg.Camunda.RequestTimeout))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		starter := workflow.NewStarter(zeebe, cfg.Camunda.ProcessID, log)
		serviceOpts = append(serviceOpts, applications.WithProcessStarter(starter))
		apiOpts = append(apiOpts, api.WithReadiness("zeebe", api.PingFunc(zeebe.HealthCheck)))
	} else {
		zapLog.Info("Camunda not configured, lifecycle processes and workers disabled")
	}

	service := applications.NewService(applications.NewStore(pg.DB), log, serviceOpts...)

	// --- Lifecycle workers ---
	var workers []*camunda.Worker
	if zeebe != nil {
		workers = startWorkers(ctx, cfg, zeebe, service, obs, log, zapLog)
	}

	// --- HTTP API ---
	schema, err := validation.NewFormDataValidator()
	if err != nil {
		zapLog.Fatal("form schema failed to compile", zap.Error(err))
	}
	handler := api.NewHandler(
		wizard.NewController(service, log),
		sessions.NewStore(rdb.Client, cfg.Sessions, log),
		service,
		schema,
		log,
		apiOpts...,
	)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP API listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP API failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP API", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Loan service stopped gracefully")
}

// startWorkers opens a job worker for each enabled lifecycle task type.
func startWorkers(ctx context.Context, cfg *config.Config, zeebe *camunda.Client, service *applications.Service, obs *observability.Observability, log logger.Logger, zapLog *zap.Logger) []*camunda.Worker {
	var workers []*camunda.Worker

	reg, err := registry.Default()
	if err != nil {
		zapLog.Fatal("activity registry load failed", zap.Error(err))
	}

	if config.IsWorkerEnabled(cfg, rst.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, rst.TaskType)
		hcfg := rst.LoadConfig(wcfg)
		hcfg.InputSchema = inputSchema(reg, rst.TaskType, zapLog)
		handler := rst.NewHandler(hcfg, service, obs, log)
		workers = append(workers, startWorker(zeebe, rst.TaskType, wcfg, handler, log))
	}

	if config.IsWorkerEnabled(cfg, nsc.TaskType) {
		awsCfg, err := awsclients.LoadConfig(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config load failed", zap.Error(err))
		}
		notifier := notify.NewNotifier(
			cfg.Notifications,
			awsclients.NewSESClient(awsCfg),
			awsclients.NewSNSClient(awsCfg),
			log,
		)
		wcfg := config.GetWorkerConfig(cfg, nsc.TaskType)
		hcfg := nsc.LoadConfig(wcfg)
		hcfg.InputSchema = inputSchema(reg, nsc.TaskType, zapLog)
		handler := nsc.NewHandler(hcfg, notifier, service, obs, log)
		workers = append(workers, startWorker(zeebe, nsc.TaskType, wcfg, handler, log))
	}

	zapLog.Info("Lifecycle workers registered", zap.Int("count", len(workers)))
	return workers
}

func startWorker(zeebe *camunda.Client, taskType string, wcfg config.WorkerConfig, handler camunda.JobHandler, log logger.Logger) *camunda.Worker {
	return camunda.NewWorker(zeebe.GetClient(), taskType, camunda.WorkerOptions{
		MaxJobsActive: wcfg.MaxJobsActive,
		Timeout:       config.GetDuration(wcfg.Timeout),
	}, handler, log)
}

// inputSchema compiles the registered input schema for a task type. Workers
// without a registry entry run unchecked.
func inputSchema(reg *registry.ActivityRegistry, taskType string, zapLog *zap.Logger) *validation.SchemaValidator {
	act, ok := reg.Find(taskType)
	if !ok {
		zapLog.Warn("no registry entry for worker", zap.String("taskType", taskType))
		return nil
	}
	raw, err := act.InputSchemaJSON()
	if err != nil || raw == "" {
		return nil
	}
	v, err := validation.NewSchemaValidator(raw)
	if err != nil {
		zapLog.Fatal("worker input schema failed to compile", zap.String("taskType", taskType), zap.Error(err))
	}
	return v
}
