package kafka

import (
	"context"
	"encoding/json"

	"github.com/dailyyoga/netdisco/discovery"
	"github.com/hashicorp/go-multierror"
)

// Header names set on every event record
const (
	HeaderKind   = "netdisco-kind"
	HeaderSource = "netdisco-source"
)

// EventSink publishes discovery events as JSON records keyed by
// "source/key", so all changes of one device land on one partition.
type EventSink struct {
	producer Producer
	topic    string
}

// NewEventSink creates a sink on producer. An empty topic uses the
// producer's configured topic.
func NewEventSink(producer Producer, topic string) *EventSink {
	return &EventSink{producer: producer, topic: topic}
}

func (s *EventSink) Name() string { return "kafka" }

func (s *EventSink) Publish(ctx context.Context, events []discovery.Event) error {
	var result error
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		msg := &Message{
			Topic: s.topic,
			Key:   []byte(e.Source + "/" + e.Key),
			Value: value,
			Headers: []Header{
				{Key: HeaderKind, Value: []byte(e.Kind)},
				{Key: HeaderSource, Value: []byte(e.Source)},
			},
			Timestamp: e.ObservedAt,
		}
		if err := s.producer.Produce(ctx, msg); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func (s *EventSink) Close() error {
	return s.producer.Close()
}
