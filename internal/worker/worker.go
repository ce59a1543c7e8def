package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Nodeflow/internal/mq"
	"github.com/shaiso/Nodeflow/internal/orchestrator"
	"github.com/shaiso/Nodeflow/internal/repo"
)

// Default configuration values.
const (
	defaultPollInterval     = 2 * time.Second
	defaultBatchSize        = 10
	defaultExecutionTimeout = 5 * time.Minute
	defaultShutdownGrace    = 30 * time.Second
	defaultPrefetch         = 5
	finalizeTimeout         = 10 * time.Second
)

// EventPublisher публикует события исполнения. Реализуется mq.Publisher.
type EventPublisher interface {
	PublishStep(ctx context.Context, payload mq.StepEventPayload) error
	PublishFinished(ctx context.Context, payload mq.ExecutionFinishedPayload) error
}

// Processor забирает pending executions и доводит их до терминального статуса.
//
// Источник работы: таблица executions: процессор периодически опрашивает её,
// а сообщения из executions.pending лишь будят цикл раньше срока.
// Несколько процессоров могут работать над одной БД: claim атомарен.
type Processor struct {
	workflows  repo.WorkflowStore
	executions repo.ExecutionStore
	steps      repo.StepStore

	scheduler *orchestrator.Scheduler
	events    EventPublisher
	conn      *mq.Connection

	pollInterval     time.Duration
	batchSize        int
	executionTimeout time.Duration
	staleAfter       time.Duration
	shutdownGrace    time.Duration
	abandonWait      time.Duration

	logger *slog.Logger
	now    func() time.Time

	wake chan struct{}

	mu        sync.Mutex
	started   bool
	stopped   bool
	abandoned bool
	cancel    context.CancelFunc
	consumer  *mq.Consumer
	inflight  map[uuid.UUID]context.CancelCauseFunc

	loops sync.WaitGroup
	runs  sync.WaitGroup
}

// Config: конфигурация Processor.
type Config struct {
	// Stores: хранилища (обязательно).
	Stores *repo.Stores

	// Scheduler: исполнитель графа (default: orchestrator.New с пустым Config).
	Scheduler *orchestrator.Scheduler

	// Events: публикация execution.step / execution.finished (опционально).
	Events EventPublisher

	// Conn: соединение RabbitMQ для сигналов пробуждения (опционально).
	Conn *mq.Connection

	PollInterval time.Duration // интервал опроса (default: 2s)
	BatchSize    int           // кандидатов на claim за tick (default: 10)

	// ExecutionTimeout: мягкий таймаут одного execution (default: 5m).
	ExecutionTimeout time.Duration

	// StaleAfter: через сколько running execution считается потерянным.
	// Не меньше ExecutionTimeout + ShutdownGrace (default: 3 * ExecutionTimeout).
	StaleAfter time.Duration

	// ShutdownGrace: сколько Stop ждёт текущий execution (default: 30s).
	ShutdownGrace time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// New создаёт новый Processor.
func New(cfg Config) *Processor {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	executionTimeout := cfg.ExecutionTimeout
	if executionTimeout <= 0 {
		executionTimeout = defaultExecutionTimeout
	}

	shutdownGrace := cfg.ShutdownGrace
	if shutdownGrace <= 0 {
		shutdownGrace = defaultShutdownGrace
	}

	// Свой же живой execution не должен попасть под sweep
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 3 * executionTimeout
	}
	staleAfter = max(staleAfter, executionTimeout+shutdownGrace)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = orchestrator.New(orchestrator.Config{Logger: logger})
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Processor{
		workflows:        cfg.Stores.Workflows,
		executions:       cfg.Stores.Executions,
		steps:            cfg.Stores.Steps,
		scheduler:        scheduler,
		events:           cfg.Events,
		conn:             cfg.Conn,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		executionTimeout: executionTimeout,
		staleAfter:       staleAfter,
		shutdownGrace:    shutdownGrace,
		abandonWait:      finalizeTimeout,
		logger:           logger.With("component", "processor"),
		now:              now,
		wake:             make(chan struct{}, 1),
		inflight:         make(map[uuid.UUID]context.CancelCauseFunc),
	}
}

// Start запускает цикл опроса и, если задан Conn, consumer сигналов.
//
// Повторный вызов ничего не делает. После Stop возвращает ErrProcessorStopped.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrProcessorStopped
	}
	if p.started {
		return nil
	}
	p.started = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("starting processor",
		"poll_interval", p.pollInterval,
		"batch_size", p.batchSize,
		"execution_timeout", p.executionTimeout,
		"stale_after", p.staleAfter,
	)

	if p.conn != nil {
		p.consumer = mq.NewConsumer(p.conn, p.logger, mq.ConsumerConfig{
			Queue:    mq.QueueExecutionsPending,
			Handler:  p.handleWakeUp,
			Prefetch: defaultPrefetch,
		})

		p.loops.Add(1)
		go func() {
			defer p.loops.Done()
			if err := p.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("wake-up consumer error", "error", err)
			}
		}()
	}

	p.loops.Add(1)
	go func() {
		defer p.loops.Done()
		p.pollLoop(ctx)
	}()

	return nil
}

// Stop прекращает новые ticks и ждёт текущий execution.
//
// Если execution не уложился в ShutdownGrace, его контекст отменяется
// с причиной "abandoned during shutdown"; execution финализируется failed.
// Интеграцию, не реагирующую на отмену, Stop ждёт не дольше abandonWait.
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel, consumer := p.cancel, p.consumer
	p.mu.Unlock()

	p.logger.Info("stopping processor...")

	if cancel != nil {
		cancel()
	}
	if consumer != nil {
		consumer.Stop()
	}

	done := make(chan struct{})
	go func() {
		p.loops.Wait()
		p.runs.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.shutdownGrace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		p.abandonInFlight()

		// Интеграция может игнорировать ctx: не ждём её бесконечно.
		// Строка running останется и будет закрыта sweep'ом по StaleAfter.
		wait := time.NewTimer(p.abandonWait)
		defer wait.Stop()
		select {
		case <-done:
		case <-wait.C:
			p.logStuck()
		}
	}

	p.logger.Info("processor stopped")
}

// IsStopped проверяет, остановлен ли Processor.
func (p *Processor) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Wake просит цикл опроса выполнить tick без ожидания интервала.
func (p *Processor) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Processor) logStuck() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.inflight {
		p.logger.Error("execution did not stop after abandon, leaving it to stale sweep",
			"execution_id", id,
			"waited", p.abandonWait,
		)
	}
}

func (p *Processor) abandonInFlight() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.abandoned = true
	for id, cancel := range p.inflight {
		p.logger.Warn("abandoning execution", "execution_id", id)
		cancel(errors.New(reasonAbandoned))
	}
}

// track регистрирует контекст execution, чтобы Stop мог его отменить.
func (p *Processor) track(id uuid.UUID, cancel context.CancelCauseFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inflight[id] = cancel
	if p.abandoned {
		cancel(errors.New(reasonAbandoned))
	}
}

func (p *Processor) untrack(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}

// pollLoop выполняет ticks по таймеру и по сигналам пробуждения.
func (p *Processor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		// Первый проход сразу: подхватываем накопившееся, пока были выключены
		p.drain(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
	}
}

// drain повторяет tick, пока очередь не опустеет.
func (p *Processor) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := p.Tick(ctx)
		if err != nil {
			if !errors.Is(err, ErrProcessorStopped) && ctx.Err() == nil {
				p.logger.Error("tick failed", "error", err)
			}
			return
		}
		if !processed {
			return
		}
	}
}

// handleWakeUp: обработчик executions.pending.
func (p *Processor) handleWakeUp(_ context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.ExecutionPendingPayload](msg)
	if err != nil {
		return err
	}
	p.logger.Debug("wake-up received", "execution_id", payload.ExecutionID)
	p.Wake()
	return nil
}
