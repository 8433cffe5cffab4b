package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeEvents — события жизненного цикла tasks (topic, routing key = тип события).
	ExchangeEvents Exchange = "mocap.events"

	// ExchangeIntake — приём заявок на обработку.
	ExchangeIntake Exchange = "mocap.intake"

	// ExchangeDLQ — сообщения, которые нельзя обработать.
	ExchangeDLQ Exchange = "mocap.dlq"
)

// Queues — имена очередей.
const (
	QueueSubmissions    Queue = "mocap.submissions"
	QueueDLQSubmissions Queue = "mocap.dlq.submissions"
)

// Routing keys.
const (
	RoutingKeySubmit         RoutingKey = "submit"
	RoutingKeyDLQSubmissions RoutingKey = "submissions"
)

// SetupTopology объявляет exchanges, queues и bindings. Идемпотентна.
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

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeIntake, amqp.ExchangeDirect},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди.
// Очередь событий не объявляется: подписчики привязывают свои очереди сами.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQSubmissions),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// невалидные заявки уходят в DLQ
		{QueueSubmissions, dlqArgs},
		{QueueDLQSubmissions, nil},
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

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueSubmissions, RoutingKeySubmit, ExchangeIntake},
		{QueueDLQSubmissions, RoutingKeyDLQSubmissions, ExchangeDLQ},
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
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  mocapd broker topology:

    mocap.events (topic)
    └── task.queued | task.started | task.completed | task.failed | task.rejected
            Consumers: bind own queues

    mocap.intake (direct)
    └── mocap.submissions [routing: submit]
            Consumer: mocapd
            DLQ: mocap.dlq.submissions

    mocap.dlq (direct)
    └── mocap.dlq.submissions [routing: submissions]
            Manual processing
  `
}
