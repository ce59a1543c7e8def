// Nodeflow Server: HTTP API и планировщик schedules.
//
// Server:
//   - Принимает CRUD workflows и schedules
//   - Ставит executions в очередь (202) и отдаёт их статус
//   - Раз в SCHEDULER_INTERVAL превращает наступившие schedules в executions
//     (лидер выбирается advisory lock, поэтому реплик может быть несколько)
//
// С STORE=memory процессор executions встроен в server: отдельный
// worker не увидит in-memory хранилище.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Nodeflow/internal/api"
	"github.com/shaiso/Nodeflow/internal/app"
	"github.com/shaiso/Nodeflow/internal/config"
	"github.com/shaiso/Nodeflow/internal/orchestrator"
	"github.com/shaiso/Nodeflow/internal/scheduler"
	"github.com/shaiso/Nodeflow/internal/steps"
	"github.com/shaiso/Nodeflow/internal/telemetry"
	"github.com/shaiso/Nodeflow/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "nodeflow-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat).With("service", "nodeflow-server")
	logger.Info("starting nodeflow-server", "store", cfg.Store)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "nodeflow-server")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer flushTracing(shutdownTracing, logger)

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	registry := steps.DefaultRegistry()

	handler := api.NewHandler(api.Config{
		Stores:   rt.Stores,
		Registry: registry,
		Notifier: rt.Notifier(),
		Logger:   logger,
	})

	if cfg.SchedulerEnabled {
		sched := scheduler.New(scheduler.Config{
			Stores:   rt.Stores,
			Notifier: rt.Notifier(),
			Lock:     rt.Lock(),
			Interval: cfg.SchedulerInterval,
			Logger:   logger,
		})
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	if cfg.Store == config.StoreMemory {
		wcfg := worker.Config{
			Stores: rt.Stores,
			Scheduler: orchestrator.New(orchestrator.Config{
				Registry: registry,
				Logger:   logger.With("component", "orchestrator"),
			}),
			PollInterval:     cfg.PollInterval,
			ExecutionTimeout: cfg.ExecutionTimeout,
			StaleAfter:       cfg.StaleAfter,
			ShutdownGrace:    cfg.ShutdownGrace,
			Logger:           logger,
		}
		if rt.Publisher != nil {
			wcfg.Events = rt.Publisher
			wcfg.Conn = rt.Conn
		}
		processor := worker.New(wcfg)
		if err := processor.Start(ctx); err != nil {
			return fmt.Errorf("start processor: %w", err)
		}
		defer processor.Stop()
	}

	mux := http.NewServeMux()
	rt.OpsMux(mux)
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := app.Serve(ctx, srv, logger, 10*time.Second); err != nil {
		return err
	}

	logger.Info("shutting down")
	return nil
}

func flushTracing(shutdown telemetry.ShutdownFunc, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("flush traces", "error", err)
	}
}
