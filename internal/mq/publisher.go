package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/mocapd/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

// Типы сообщений.
const (
	MessageTypeSubmit        MessageType = "task.submit"
	MessageTypeTaskQueued    MessageType = "task.queued"
	MessageTypeTaskStarted   MessageType = "task.started"
	MessageTypeTaskCompleted MessageType = "task.completed"
	MessageTypeTaskFailed    MessageType = "task.failed"
	MessageTypeTaskRejected  MessageType = "task.rejected"
)

// Publisher публикует сообщения в брокер.
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

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// SubmitPayload — заявка на обработку видео.
// TaskID задаётся, если идентификатор назначил отправитель.
type SubmitPayload struct {
	TaskID    *uuid.UUID      `json:"task_id,omitempty"`
	VideoPath string          `json:"video_path"`
	Options   *domain.Options `json:"options,omitempty"`
}

// TaskEventPayload — событие жизненного цикла task.
type TaskEventPayload struct {
	TaskID        uuid.UUID        `json:"task_id"`
	State         domain.TaskState `json:"state,omitempty"`
	VideoPath     string           `json:"video_path,omitempty"`
	Position      int              `json:"position,omitempty"`
	FinalArtifact string           `json:"final_artifact,omitempty"`
	RemoteURI     string           `json:"remote_uri,omitempty"`
	ErrorKind     domain.ErrorKind `json:"error_kind,omitempty"`
	ErrorCode     domain.ErrorCode `json:"error_code,omitempty"`
	Error         string           `json:"error,omitempty"`
	DurationMs    int64            `json:"duration_ms,omitempty"`
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
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
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

// PublishTaskEvent публикует событие task. Routing key совпадает с типом события.
func (p *Publisher) PublishTaskEvent(ctx context.Context, eventType MessageType, payload TaskEventPayload) error {
	return p.Publish(ctx, ExchangeEvents, RoutingKey(eventType), NewMessage(eventType, payload))
}

// PublishSubmit публикует заявку в очередь приёма.
func (p *Publisher) PublishSubmit(ctx context.Context, payload SubmitPayload) error {
	return p.Publish(ctx, ExchangeIntake, RoutingKeySubmit, NewMessage(MessageTypeSubmit, payload))
}

// NewMessage создаёт конверт с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
