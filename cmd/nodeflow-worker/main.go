// Nodeflow Worker: исполняет pending executions.
//
// Worker:
//   - Атомарно забирает pending execution (claim) и проходит граф
//   - Сохраняет каждый шаг сразу, публикует execution.step / execution.finished
//   - Просыпается по сигналу executions.pending или по таймеру опроса
//   - Возвращает в failed executions, брошенные упавшими workers
//
// Workers масштабируются горизонтально; нужен STORE=postgres.
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

	"github.com/shaiso/Nodeflow/internal/app"
	"github.com/shaiso/Nodeflow/internal/config"
	"github.com/shaiso/Nodeflow/internal/orchestrator"
	"github.com/shaiso/Nodeflow/internal/steps"
	"github.com/shaiso/Nodeflow/internal/telemetry"
	"github.com/shaiso/Nodeflow/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "nodeflow-worker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Store == config.StoreMemory {
		return errors.New("STORE=memory is not shared between processes, run nodeflow-server instead")
	}

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.LogFormat).With("service", "nodeflow-worker")
	logger.Info("starting nodeflow-worker")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "nodeflow-worker")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", "error", err)
		}
	}()

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	wcfg := worker.Config{
		Stores: rt.Stores,
		Scheduler: orchestrator.New(orchestrator.Config{
			Registry: steps.DefaultRegistry(),
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

	mux := http.NewServeMux()
	rt.OpsMux(mux)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := app.Serve(ctx, srv, logger, 5*time.Second)

	// Stop ждёт текущий execution до SHUTDOWN_GRACE
	processor.Stop()
	logger.Info("nodeflow-worker stopped")
	return serveErr
}
