/**
 * @description
 * Kafka implementation of the event publisher. The exchange argument of Publish
 * is used as the topic and the routing key travels as the message key and as a
 * header, so consumers can filter the same way a RabbitMQ topic binding would.
 *
 * @dependencies
 * - github.com/segmentio/kafka-go: Kafka writer.
 */
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventProducer publishes JSON events to Kafka.
type EventProducer struct {
	writer       messageWriter
	defaultTopic string
}

// NewEventProducer builds a producer for the given brokers. The writer connects
// lazily, so construction never blocks on the cluster.
func NewEventProducer(brokers []string, defaultTopic string) (*EventProducer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker address is required")
	}
	return &EventProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		defaultTopic: defaultTopic,
	}, nil
}

// Publish writes body to the topic named by exchange, or the default topic when empty.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	topic := exchange
	if topic == "" {
		topic = p.defaultTopic
	}
	if topic == "" {
		return errors.New("kafka: no topic for event")
	}

	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=kafka_producer msg=\"json marshal failed\" topic=%s routing_key=%s err=%v", topic, routingKey, err)
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(routingKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: "routing_key", Value: []byte(routingKey)},
			{Key: "content_type", Value: []byte("application/json")},
		},
		Time: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("level=warn component=kafka_producer msg=\"publish failed\" topic=%s routing_key=%s err=%v", topic, routingKey, err)
		return err
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *EventProducer) Close() {
	if p.writer == nil {
		return
	}
	if err := p.writer.Close(); err != nil {
		log.Printf("level=warn component=kafka_producer msg=\"writer close failed\" err=%v", err)
	}
}
