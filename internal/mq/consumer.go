package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/shaiso/mocapd/internal/telemetry"
)

// Handler — функция обработки сообщения.
// Ошибка, обёрнутая Permanent, отправляет сообщение в DLQ,
// любая другая возвращает его в очередь.
type Handler func(ctx context.Context, msg *Delivery) error

// ErrPermanent — сообщение нельзя обработать повторно.
var ErrPermanent = errors.New("permanent failure")

// Permanent помечает ошибку обработчика как неустранимую.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Delivery — доставленное сообщение с методами ack/nack.
type Delivery struct {
	// Message — распарсенное сообщение.
	Message Message

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отправить в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// Consumer потребляет сообщения из очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки.
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start потребляет сообщения до отмены ctx. После разрыва соединения
// потребление возобновляется по сигналу ReconnectNotify.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
		} else {
			c.logger.Info("consumer started", "queue", c.queue, "prefetch", c.prefetch)
			c.drain(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer interrupted, waiting for reconnect", "queue", c.queue)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

// setupConsume выставляет prefetch и подписывается на очередь с ручным ack.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}
	return deliveries, nil
}

// drain обрабатывает доставки, пока канал открыт и ctx жив.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				return
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// Результаты обработки (метка метрики).
const (
	resultAccepted  = "accepted"
	resultRejected  = "rejected"
	resultRequeued  = "requeued"
	resultMalformed = "malformed"
)

// handleDelivery разбирает сообщение, вызывает handler и подтверждает доставку:
// ack при успехе, DLQ при неразборчивом сообщении или Permanent ошибке,
// возврат в очередь при любой другой ошибке.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("malformed message, sending to DLQ",
			"queue", c.queue,
			"error", err,
			"body_bytes", len(raw.Body),
		)
		telemetry.IntakeMessages.WithLabelValues(resultMalformed).Inc()
		raw.Nack(false, false)
		return
	}

	ctx, span := telemetry.StartSpan(ctx, "mq.handle",
		attribute.String("messaging.destination", c.queue),
		attribute.String("messaging.message_id", msg.ID),
		attribute.String("message_type", string(msg.Type)),
	)
	defer span.End()

	logger := c.logger.With("queue", c.queue, "message_id", msg.ID, "type", msg.Type)
	logger.Debug("received message", "redelivered", raw.Redelivered)

	err := c.handler(ctx, &Delivery{Message: msg, Raw: raw})
	switch {
	case err == nil:
		telemetry.IntakeMessages.WithLabelValues(resultAccepted).Inc()
		raw.Ack(false)
	case errors.Is(err, ErrPermanent):
		span.SetStatus(codes.Error, err.Error())
		telemetry.IntakeMessages.WithLabelValues(resultRejected).Inc()
		logger.Warn("message rejected", "error", err)
		raw.Nack(false, false)
	default:
		span.SetStatus(codes.Error, err.Error())
		telemetry.IntakeMessages.WithLabelValues(resultRequeued).Inc()
		logger.Error("handler failed, requeueing", "error", err)
		raw.Nack(false, true)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// Payload может быть уже распарсен как map или быть raw json
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}
