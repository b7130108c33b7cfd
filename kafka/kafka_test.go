package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/dailyyoga/netdisco/discovery"
	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/taskcache"
	"github.com/stretchr/testify/require"
)

type memoryProducer struct {
	mu     sync.Mutex
	msgs   []*Message
	err    error
	closed bool
}

func (p *memoryProducer) Produce(_ context.Context, msg *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *memoryProducer) Errors() uint64 { return 0 }

func (p *memoryProducer) Close() error {
	p.closed = true
	return nil
}

type proberFunc func(ctx context.Context, source, key string) (discovery.ProbeResult, error)

func (f proberFunc) Probe(ctx context.Context, source, key string) (discovery.ProbeResult, error) {
	return f(ctx, source, key)
}

func TestConsumerConfig_Validate(t *testing.T) {
	cfg := &ConsumerConfig{Brokers: []string{"localhost:9092"}, GroupID: "netdisco"}
	cfg.MergeDefaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, []string{"netdisco.probe-requests"}, cfg.Topics)
	require.Equal(t, 100*time.Millisecond, cfg.PollTimeout)

	bad := *cfg
	bad.AutoOffsetReset = "newest"
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.GroupID = ""
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.EnableAutoCommit = true
	bad.AutoCommitInterval = -time.Second
	require.Error(t, bad.Validate())
}

func TestConsumerConfig_BuildConfigMap(t *testing.T) {
	cfg := &ConsumerConfig{
		Brokers:          []string{"a:9092", "b:9092"},
		GroupID:          "netdisco",
		EnableAutoCommit: true,
		Debug:            true,
	}
	cfg.MergeDefaults()
	m := cfg.BuildConfigMap()

	get := func(key string) kafka.ConfigValue {
		v, err := m.Get(key, nil)
		require.NoError(t, err)
		return v
	}
	require.Equal(t, "a:9092,b:9092", get("bootstrap.servers"))
	require.Equal(t, "latest", get("auto.offset.reset"))
	require.Equal(t, 5000, get("auto.commit.interval.ms"))
	require.Equal(t, 30000, get("session.timeout.ms"))
	require.NotNil(t, get("debug"))
}

func TestProducerConfig(t *testing.T) {
	cfg := &ProducerConfig{Brokers: []string{"localhost:9092"}, ClientID: "netdisco-1"}
	cfg.MergeDefaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "netdisco.events", cfg.Topic)

	m := cfg.BuildConfigMap()
	v, err := m.Get("client.id", nil)
	require.NoError(t, err)
	require.Equal(t, "netdisco-1", v)

	cfg.Acks = "most"
	require.Error(t, cfg.Validate())
	require.Error(t, (&ProducerConfig{Topic: "x"}).Validate())
}

func TestMessageConversion(t *testing.T) {
	msg := &Message{
		Topic:   "events",
		Key:     []byte("arp/10.0.0.1"),
		Value:   []byte("{}"),
		Headers: []Header{{Key: HeaderKind, Value: []byte("added")}},
	}
	km := toKafkaMessage(msg)
	require.Equal(t, PartitionAny, km.TopicPartition.Partition)
	km.TopicPartition.Offset = 42

	back := fromKafkaMessage(km)
	require.Equal(t, "events", back.Topic)
	require.Equal(t, int64(42), back.Offset)
	require.Equal(t, []byte("added"), back.GetHeader(HeaderKind))
	require.Nil(t, back.GetHeader("missing"))
}

func TestEventSink_Publish(t *testing.T) {
	p := &memoryProducer{}
	sink := NewEventSink(p, "")
	now := time.Now()
	events := []discovery.Event{
		{ID: "1", Kind: discovery.KindAdded, Source: "arp", Key: "10.0.0.1", Entity: map[string]string{"mac": "aa"}, Version: 3, ObservedAt: now},
		{ID: "2", Kind: discovery.KindRemoved, Source: "mdns", Key: "printer", Version: 7, ObservedAt: now},
	}
	require.NoError(t, sink.Publish(context.Background(), events))
	require.Len(t, p.msgs, 2)

	require.Equal(t, "arp/10.0.0.1", string(p.msgs[0].Key))
	require.Equal(t, []byte("added"), p.msgs[0].GetHeader(HeaderKind))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(p.msgs[0].Value, &decoded))
	require.Equal(t, "arp", decoded["source"])
	require.Equal(t, float64(3), decoded["version"])

	p.err = errors.New("queue full")
	err := sink.Publish(context.Background(), events)
	require.Error(t, err)
	require.Contains(t, err.Error(), "queue full")

	require.NoError(t, sink.Close())
	require.True(t, p.closed)
}

func TestProbeRequestHandler(t *testing.T) {
	var gotSource, gotKey string
	prober := proberFunc(func(_ context.Context, source, key string) (discovery.ProbeResult, error) {
		gotSource, gotKey = source, key
		return discovery.ProbeResult{Source: source, Key: key, Found: true, Entity: "aa:bb", State: "current", Version: 2}, nil
	})
	replies := &memoryProducer{}
	handler := ProbeRequestHandler(logger.NewNop(), prober, replies)

	err := handler(context.Background(), &Message{Value: []byte(`{"id":"r1","source":"arp","key":"10.0.0.7","reply_to":"replies"}`)})
	require.NoError(t, err)
	require.Equal(t, "arp", gotSource)
	require.Equal(t, "10.0.0.7", gotKey)

	require.Len(t, replies.msgs, 1)
	require.Equal(t, "replies", replies.msgs[0].Topic)
	var reply map[string]any
	require.NoError(t, json.Unmarshal(replies.msgs[0].Value, &reply))
	require.Equal(t, "r1", reply["request_id"])
	require.Equal(t, true, reply["found"])
	require.Equal(t, "aa:bb", reply["entity"])
}

func TestProbeRequestHandler_Errors(t *testing.T) {
	var fail error
	calls := 0
	prober := proberFunc(func(_ context.Context, source, key string) (discovery.ProbeResult, error) {
		calls++
		return discovery.ProbeResult{Source: source, Key: key}, fail
	})
	replies := &memoryProducer{}
	handler := ProbeRequestHandler(logger.NewNop(), prober, replies)

	// malformed requests are acknowledged without probing
	require.NoError(t, handler(context.Background(), &Message{Value: []byte(`not json`)}))
	require.NoError(t, handler(context.Background(), &Message{Value: []byte(`{"source":"arp"}`)}))
	require.Zero(t, calls)

	fail = fmt.Errorf("%w: nope", discovery.ErrUnknownSource)
	require.NoError(t, handler(context.Background(), &Message{Value: []byte(`{"source":"nope","key":"x","reply_to":"r"}`)}))
	require.Len(t, replies.msgs, 1)
	var reply map[string]any
	require.NoError(t, json.Unmarshal(replies.msgs[0].Value, &reply))
	require.Contains(t, reply["error"], "unknown source")

	fail = fmt.Errorf("%w: no route to host", taskcache.ErrProbeFailure)
	require.ErrorIs(t, handler(context.Background(), &Message{Value: []byte(`{"source":"arp","key":"10.0.0.9"}`)}), taskcache.ErrProbeFailure)
}

func TestDecodeProbeRequest(t *testing.T) {
	_, err := decodeProbeRequest([]byte(`{"key":"x"}`))
	require.ErrorIs(t, err, ErrInvalidRequest)

	req, err := decodeProbeRequest([]byte(`{"source":"upnp","key":"uuid:1"}`))
	require.NoError(t, err)
	require.Equal(t, "upnp", req.Source)
	require.Empty(t, req.ReplyTo)
}
