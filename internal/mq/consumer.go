package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает сообщение. Ошибка приводит к nack без requeue.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery: доставленное сообщение.
type Delivery struct {
	Message Message
	Raw     amqp.Delivery
}

// SetupFunc объявляет очередь на свежем канале и возвращает её имя.
// Вызывается при старте и после каждого переподключения.
type SetupFunc func(ch *amqp.Channel) (string, error)

// ConsumerConfig: конфигурация Consumer.
type ConsumerConfig struct {
	// Queue: имя готовой очереди. Игнорируется, если задан Setup.
	Queue string

	// Setup объявляет очередь сам, например эксклюзивную.
	Setup SetupFunc

	Handler Handler

	// Prefetch по умолчанию 16.
	Prefetch int

	Logger *slog.Logger
}

// Consumer потребляет сообщения из очереди.
type Consumer struct {
	conn   *Connection
	cfg    ConsumerConfig
	logger *slog.Logger
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Setup == nil {
		queue := cfg.Queue
		cfg.Setup = func(*amqp.Channel) (string, error) { return queue, nil }
	}
	return &Consumer{
		conn:   conn,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "consumer"),
	}
}

// Run потребляет сообщения до отмены ctx, переживая переподключения.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		queue, deliveries, err := c.subscribe(ctx)
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started", "queue", queue)
			c.drain(ctx, queue, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, restarting consumer")
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context) (string, <-chan amqp.Delivery, error) {
	var (
		queue      string
		deliveries <-chan amqp.Delivery
	)
	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}

		q, err := c.cfg.Setup(ch)
		if err != nil {
			return err
		}

		d, err := ch.ConsumeWithContext(ctx,
			q,     // queue
			"",    // consumer tag
			false, // auto-ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("consume %s: %w", q, err)
		}
		queue, deliveries = q, d
		return nil
	})
	return queue, deliveries, err
}

func (c *Consumer) drain(ctx context.Context, queue string, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed", "queue", queue)
				return
			}
			c.handle(ctx, queue, raw)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, queue string, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message", "queue", queue, "error", err)
		raw.Nack(false, false)
		return
	}

	if err := c.cfg.Handler(ctx, &Delivery{Message: msg, Raw: raw}); err != nil {
		c.logger.Error("handler failed",
			"queue", queue,
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
		)
		raw.Nack(false, false)
		return
	}
	raw.Ack(false)
}

// ParsePayload декодирует payload сообщения в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
