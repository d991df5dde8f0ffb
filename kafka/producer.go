package kafka

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/shubhambandhovar/medszop-backend/models"
)

// EventPublisher publishes order lifecycle events. Callers treat publishing
// as best-effort: failures are logged by the caller, never surfaced.
type EventPublisher interface {
	SendOrderEvent(event models.OrderEvent) error
	Close()
}

type Producer struct {
	writer *kafkago.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafkago.Writer{
		Addr:     kafkago.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafkago.LeastBytes{},
	}
	return &Producer{writer: writer, topic: topic}
}

func (p *Producer) SendOrderEvent(event models.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafkago.Message{
		Key:   []byte(event.OrderID),
		Value: data,
	}
	return p.writer.WriteMessages(context.Background(), msg)
}

func (p *Producer) Close() {
	_ = p.writer.Close()
}
