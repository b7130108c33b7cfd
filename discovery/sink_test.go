package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memorySink struct {
	name string
	err  error

	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *memorySink) Name() string { return s.name }

func (s *memorySink) Publish(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, events)
	return s.err
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.err
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestForwarder_BatchBySize(t *testing.T) {
	hub := NewHub(0)
	sink := &memorySink{name: "mem"}
	f := NewForwarder(logger.NewNop(), &ForwarderConfig{BatchSize: 2, FlushInterval: time.Hour}, nil, sink)
	sub := hub.Subscribe()
	f.Start(sub)

	hub.Publish(Event{Key: "a"}, Event{Key: "b"}, Event{Key: "c"})
	require.Eventually(t, func() bool { return sink.count() == 2 && sub.Len() == 0 }, time.Second, 5*time.Millisecond)

	// the pending third event is flushed on stop
	f.Stop()
	require.Equal(t, 3, sink.count())
	require.Len(t, sink.batches, 2)
}

func TestForwarder_BatchByInterval(t *testing.T) {
	hub := NewHub(0)
	sink := &memorySink{name: "mem"}
	f := NewForwarder(logger.NewNop(), &ForwarderConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, nil, sink)
	f.Start(hub.Subscribe())
	defer f.Stop()

	hub.Publish(Event{Key: "a"})
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestForwarder_FailingSinkDoesNotBlockOthers(t *testing.T) {
	obs := &recordingObserver{}
	bad := &memorySink{name: "bad", err: errors.New("unavailable")}
	good := &memorySink{name: "good"}
	f := NewForwarder(logger.NewNop(), nil, obs, bad, good)

	err := f.Flush([]Event{{Key: "a"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unavailable")
	require.Equal(t, 1, good.count())
	require.Equal(t, []string{"bad"}, obs.sinks)

	require.Error(t, f.Close())
	require.True(t, good.closed)
}

type panickingSink struct{ memorySink }

func (s *panickingSink) Publish(context.Context, []Event) error { panic("sink bug") }

func TestForwarder_SinkPanic(t *testing.T) {
	good := &memorySink{name: "good"}
	f := NewForwarder(logger.NewNop(), nil, nil, &panickingSink{memorySink{name: "panics"}}, good)
	require.Error(t, f.Flush([]Event{{Key: "a"}}))
	require.Equal(t, 1, good.count())
}

func TestForwarder_StopsWhenSubscriptionCloses(t *testing.T) {
	hub := NewHub(0)
	sink := &memorySink{name: "mem"}
	f := NewForwarder(logger.NewNop(), &ForwarderConfig{BatchSize: 10, FlushInterval: time.Hour}, nil, sink)

	done := make(chan struct{})
	sub := hub.Subscribe()
	go func() {
		f.Run(context.Background(), sub)
		close(done)
	}()
	hub.Publish(Event{Key: "a"})
	hub.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not return after the hub closed")
	}
	require.Equal(t, 1, sink.count())
}

func TestLogSink(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	s := NewLogSink(logger.Wrap(zap.New(core)))
	require.NoError(t, s.Publish(context.Background(), []Event{{Kind: KindAdded, Source: "arp", Key: "10.0.0.1"}}))
	require.Equal(t, 1, recorded.FilterMessage("discovery event").Len())
	require.Equal(t, "arp", recorded.All()[0].ContextMap()["source"])
	require.NoError(t, s.Close())
}
