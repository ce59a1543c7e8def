package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType: тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeExecutionPending  MessageType = "execution.pending"
	MessageTypeExecutionStep     MessageType = "execution.step"
	MessageTypeExecutionFinished MessageType = "execution.finished"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message: конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// ExecutionPendingPayload: сигнал о новом pending execution.
// Процессор не доверяет payload и сам читает очередь из БД.
type ExecutionPendingPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	WorkflowID  uuid.UUID `json:"workflow_id"`
}

// StepEventPayload: событие о записанном шаге.
type StepEventPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	Position    int       `json:"position"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// ExecutionFinishedPayload: событие о завершении execution.
type ExecutionFinishedPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
	WorkflowID  uuid.UUID `json:"workflow_id"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Steps       int       `json:"steps"`
	DurationMs  int64     `json:"duration_ms"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// publishTyped оборачивает payload в Message и публикует его.
func (p *Publisher) publishTyped(ctx context.Context, routingKey RoutingKey, msgType MessageType, payload any) error {
	return p.Publish(ctx, ExchangeExecutions, routingKey, &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

// PublishExecutionPending будит процессор. Потребитель: worker.
func (p *Publisher) PublishExecutionPending(ctx context.Context, executionID, workflowID uuid.UUID) error {
	return p.publishTyped(ctx, RoutingKeyPending, MessageTypeExecutionPending, ExecutionPendingPayload{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
	})
}

// PublishStep публикует событие шага.
func (p *Publisher) PublishStep(ctx context.Context, payload StepEventPayload) error {
	return p.publishTyped(ctx, RoutingKeyStep, MessageTypeExecutionStep, payload)
}

// PublishFinished публикует событие завершения execution.
func (p *Publisher) PublishFinished(ctx context.Context, payload ExecutionFinishedPayload) error {
	return p.publishTyped(ctx, RoutingKeyFinished, MessageTypeExecutionFinished, payload)
}
