// Package analytics publishes conversation and cart events for offline
// funnel analysis. Emission is fire-and-forget and never fails a request.
package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventChatMessage = "chat_message"
	EventSearch      = "search"
	EventCartAdd     = "cart_add"
	EventCartUpdate  = "cart_update"
	EventCartRemove  = "cart_remove"
)

type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Intent    string    `json:"intent,omitempty"`
	Query     string    `json:"query,omitempty"`
	ProductID string    `json:"product_id,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Emitter writes events to Kafka when brokers are configured and is a no-op
// otherwise, so local setups need no broker.
type Emitter struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewEmitter(brokers []string, topic string, logger *zap.Logger) *Emitter {
	if len(brokers) == 0 {
		return &Emitter{logger: logger}
	}
	return &Emitter{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			Async:                  true,
		},
		logger: logger,
	}
}

// Enabled reports whether events actually go anywhere. Used by the health
// probe.
func (e *Emitter) Enabled() bool {
	return e.writer != nil
}

// Emit publishes one event. Errors are logged and swallowed; the async
// writer makes this non-blocking.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if e.writer == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		e.logger.Warn("analytics event marshal failed", zap.Error(err))
		return
	}
	if err := e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: data,
	}); err != nil {
		e.logger.Warn("analytics event write failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (e *Emitter) Close() error {
	if e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
