package progress

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Tollgate/internal/mq"
)

// Publisher публикует событие прогресса в брокер.
// Реализуется *mq.Publisher.
type Publisher interface {
	PublishProgress(ctx context.Context, variant string, payload any) error
}

// MQSink отправляет события в обменник tollgate.progress.
type MQSink struct {
	pub Publisher
}

// NewMQSink создаёт MQSink.
func NewMQSink(pub Publisher) *MQSink {
	return &MQSink{pub: pub}
}

// Publish реализует Sink.
func (s *MQSink) Publish(ctx context.Context, ev Event) error {
	if err := s.pub.PublishProgress(ctx, string(ev.Variant), ev); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

// Relay возвращает mq.Handler, который передаёт события из брокера в sink.
// Сообщения другого типа подтверждаются и пропускаются.
func Relay(sink Sink, logger *slog.Logger) mq.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, d *mq.Delivery) error {
		if d.Message.Type != mq.MessageTypeProgress {
			logger.Debug("skipping message", "type", d.Message.Type)
			return nil
		}

		ev, err := mq.ParsePayload[Event](&d.Message)
		if err != nil {
			return err
		}
		return sink.Publish(ctx, ev)
	}
}
