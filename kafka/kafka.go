// Package kafka connects discovery to Kafka: events go out through a
// Producer and probe requests come in through a Consumer.
package kafka

import (
	"context"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// PartitionAny lets the producer partitioner choose
const PartitionAny = kafka.PartitionAny

// Message is a Kafka record independent of the client library
type Message struct {
	Topic     string
	// Partition of a consumed record. Produced records are partitioned by Key.
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []Header
	Timestamp time.Time
}

// Header is a record header
type Header struct {
	Key   string
	Value []byte
}

// GetHeader returns the value of the first header named k
func (m *Message) GetHeader(k string) []byte {
	for _, h := range m.Headers {
		if h.Key == k {
			return h.Value
		}
	}
	return nil
}

// ConsumerMsgHandler handles one consumed message. A non-nil error makes
// the consumer retry the message.
type ConsumerMsgHandler func(ctx context.Context, msg *Message) error

// Consumer reads messages from the configured topics
type Consumer interface {
	Start(ctx context.Context, handler ConsumerMsgHandler) error
	Close() error
}

// Producer writes messages asynchronously. Delivery failures are reported
// by Errors.
type Producer interface {
	Produce(ctx context.Context, msg *Message) error
	// Errors returns the number of failed deliveries so far
	Errors() uint64
	Close() error
}

func toKafkaMessage(msg *Message) *kafka.Message {
	topic := msg.Topic
	km := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: PartitionAny},
		Key:            msg.Key,
		Value:          msg.Value,
		Timestamp:      msg.Timestamp,
	}
	for _, h := range msg.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: h.Key, Value: h.Value})
	}
	return km
}

func fromKafkaMessage(km *kafka.Message) *Message {
	msg := &Message{
		Partition: km.TopicPartition.Partition,
		Offset:    int64(km.TopicPartition.Offset),
		Key:       km.Key,
		Value:     km.Value,
		Timestamp: km.Timestamp,
		Headers:   make([]Header, len(km.Headers)),
	}
	if km.TopicPartition.Topic != nil {
		msg.Topic = *km.TopicPartition.Topic
	}
	for i, h := range km.Headers {
		msg.Headers[i] = Header{Key: h.Key, Value: h.Value}
	}
	return msg
}
