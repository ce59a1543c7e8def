package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange: тип для имени обменника.
type Exchange string

// Queue: тип для имени очереди.
type Queue string

// RoutingKey: тип для ключа маршрутизации.
type RoutingKey string

// Exchanges: имена обменников.
const (
	ExchangeExecutions Exchange = "nodeflow.executions"
	ExchangeDLQ        Exchange = "nodeflow.dlq"
)

// Queues: имена очередей.
const (
	// QueueExecutionsPending: сигналы пробуждения процессора.
	QueueExecutionsPending Queue = "executions.pending"

	// QueueExecutionsEvents: события шагов и завершения для внешних подписчиков.
	QueueExecutionsEvents Queue = "executions.events"

	QueueDLQExecutions Queue = "dlq.executions"
)

// Routing keys.
const (
	RoutingKeyPending  RoutingKey = "pending"
	RoutingKeyStep     RoutingKey = "step"
	RoutingKeyFinished RoutingKey = "finished"
	RoutingKeyDLQ      RoutingKey = "executions"
)

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeExecutions, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// Битые сигналы пробуждения уходят в DLQ
		{QueueExecutionsPending, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQ),
		}},

		// События ограничены по длине: подписчиков может не быть
		{QueueExecutionsEvents, amqp.Table{
			"x-max-length": int32(10000),
			"x-overflow":   "drop-head",
		}},

		{QueueDLQExecutions, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueExecutionsPending, RoutingKeyPending, ExchangeExecutions},
		{QueueExecutionsEvents, RoutingKeyStep, ExchangeExecutions},
		{QueueExecutionsEvents, RoutingKeyFinished, ExchangeExecutions},
		{QueueDLQExecutions, RoutingKeyDLQ, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s/%s: %w", b.queue, b.exchange, b.routingKey, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Nodeflow RabbitMQ topology:

    nodeflow.executions (direct)
    ├── executions.pending [routing: pending]
    │       Consumer: queue processor (wake-up)
    │       DLQ: dlq.executions
    └── executions.events [routing: step, finished]
            Consumer: external subscribers

    nodeflow.dlq (direct)
    └── dlq.executions [routing: executions]
  `
}
