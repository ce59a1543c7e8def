// Package app собирает общие зависимости процессов nodeflow:
// хранилище, RabbitMQ и служебный HTTP (/healthz, /metrics).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Nodeflow/internal/config"
	"github.com/shaiso/Nodeflow/internal/mq"
	"github.com/shaiso/Nodeflow/internal/repo"
	"github.com/shaiso/Nodeflow/internal/scheduler"
)

// Runtime: открытые ресурсы процесса. Close освобождает их в обратном порядке.
type Runtime struct {
	Stores *repo.Stores

	// Pool: nil для in-memory хранилища.
	Pool *pgxpool.Pool

	// Conn и Publisher: nil, если RABBITMQ_URL не задан или брокер недоступен.
	Conn      *mq.Connection
	Publisher *mq.Publisher

	logger    *slog.Logger
	startedAt time.Time
}

// Open поднимает хранилище и, если настроено, соединение с RabbitMQ.
//
// Недоступный брокер не фатален: процессор работает опросом.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{logger: logger, startedAt: time.Now()}

	switch cfg.Store {
	case config.StoreMemory:
		rt.Stores = repo.NewMemory()
		logger.Warn("using in-memory store, state is lost on restart")
	default:
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := repo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		rt.Pool = pool
		rt.Stores = repo.NewPostgres(pool)
		logger.Info("database connected")
	}

	if cfg.RabbitMQURL == "" {
		logger.Info("RABBITMQ_URL not set, running in polling-only mode")
		return rt, nil
	}

	conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		return rt, nil
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}
	rt.Conn = conn
	rt.Publisher = mq.NewPublisher(conn, logger)
	logger.Info("RabbitMQ connected")

	return rt, nil
}

// Notifier возвращает publisher как scheduler.Notifier или nil без брокера.
// Типизированный nil внутри интерфейса здесь недопустим.
func (rt *Runtime) Notifier() scheduler.Notifier {
	if rt.Publisher == nil {
		return nil
	}
	return rt.Publisher
}

// Lock возвращает блокировку лидера планировщика для выбранного хранилища.
func (rt *Runtime) Lock() scheduler.Locker {
	if rt.Pool == nil {
		return repo.LocalLock{}
	}
	return repo.NewAdvisoryLock(rt.Pool, repo.SchedulerLockKey)
}

// Health проверяет зависимости. Брокер не проверяется: без него процессы работают.
func (rt *Runtime) Health(ctx context.Context) error {
	if rt.Pool == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rt.Pool.Ping(ctx)
}

// OpsMux регистрирует /healthz и /metrics.
func (rt *Runtime) OpsMux(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rt.Health(r.Context()); err != nil {
			http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "ok %s", time.Since(rt.startedAt).Round(time.Second))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Close закрывает брокер и пул.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Conn != nil {
		errs = append(errs, rt.Conn.Close())
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
	return errors.Join(errs...)
}

// Serve запускает HTTP сервер и останавливает его по отмене ctx.
// Возвращает ошибку ListenAndServe, если сервер упал сам.
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
