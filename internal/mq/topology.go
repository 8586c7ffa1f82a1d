package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange: имя обменника.
type Exchange string

// RoutingKey: ключ маршрутизации.
type RoutingKey string

// ExchangeProgress принимает события прогресса всех сессий.
const ExchangeProgress Exchange = "tollgate.progress"

// RoutingKeyAllProgress совпадает с событиями любого варианта.
const RoutingKeyAllProgress RoutingKey = "progress.#"

// ProgressKey возвращает ключ маршрутизации для варианта.
func ProgressKey(variant string) RoutingKey {
	if variant == "" {
		variant = "unknown"
	}
	return RoutingKey("progress." + variant)
}

// SetupTopology объявляет обменник прогресса.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, declareExchange)
}

func declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeProgress), // name
		"topic",                  // type
		true,                     // durable
		false,                    // auto-deleted
		false,                    // internal
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeProgress, err)
	}
	return nil
}

// DeclareListener объявляет эксклюзивную очередь экземпляра API,
// привязанную к обменнику прогресса. Очередь удаляется вместе
// с соединением, поэтому её нужно объявлять заново после reconnect.
func DeclareListener(ch *amqp.Channel) (string, error) {
	if err := declareExchange(ch); err != nil {
		return "", err
	}

	q, err := ch.QueueDeclare(
		"",    // name (server-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		amqp.Table{"x-message-ttl": int32(60_000)},
	)
	if err != nil {
		return "", fmt.Errorf("declare listener queue: %w", err)
	}

	if err := ch.QueueBind(
		q.Name,
		string(RoutingKeyAllProgress),
		string(ExchangeProgress),
		false,
		nil,
	); err != nil {
		return "", fmt.Errorf("bind listener queue %s: %w", q.Name, err)
	}
	return q.Name, nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Tollgate RabbitMQ Topology:

    tollgate.progress (topic)
    └── amq.gen-* [routing: progress.#, exclusive, auto-delete]
            Consumer: tollgate-api (one queue per instance, feeds websocket hub)
  `
}
