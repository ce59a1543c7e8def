// Package worker содержит процессор очереди executions.
//
// # Обзор
//
// Processor: долгоживущий цикл, который:
//
//   - Помечает failed executions, чей процессор пропал (stale sweep)
//   - Берёт pending executions в порядке создания и атомарно делает claim
//   - Исполняет граф через orchestrator.Scheduler с мягким таймаутом
//   - Сохраняет каждый шаг сразу, как только он появился
//   - Финализирует execution и публикует события в RabbitMQ
//
// Очередь в БД: источник истины. Сообщения executions.pending только
// будят цикл раньше очередного интервала опроса.
//
// # Использование
//
//	p := worker.New(worker.Config{
//	    Stores:    stores,
//	    Scheduler: orchestrator.New(orchestrator.Config{Logger: logger}),
//	    Events:    mq.NewPublisher(conn, logger),
//	    Conn:      conn,
//	    Logger:    logger,
//	})
//
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Stop()
//
// # Остановка
//
// Stop прекращает новые ticks. Текущему execution даётся ShutdownGrace,
// затем его контекст отменяется и execution завершается failed с причиной
// "abandoned during shutdown".
package worker
