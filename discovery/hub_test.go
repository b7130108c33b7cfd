package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHub_FanOut(t *testing.T) {
	h := NewHub(1)
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(Event{Key: "1"}, Event{Key: "2"}, Event{Key: "3"})

	for _, sub := range []*Subscription{a, b} {
		for _, want := range []string{"1", "2", "3"} {
			select {
			case e := <-sub.Events():
				require.Equal(t, want, e.Key)
			case <-time.After(time.Second):
				t.Fatalf("missing event %s", want)
			}
		}
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(1)
	slow := h.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish(Event{Version: uint64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a subscriber that never reads")
	}
	require.Eventually(t, func() bool { return slow.Len() == 1000 }, time.Second, 10*time.Millisecond)
}

func TestHub_Close(t *testing.T) {
	h := NewHub(0)
	sub := h.Subscribe()
	h.Publish(Event{Key: "pending"})
	h.Close()
	h.Close()

	e, ok := <-sub.Events()
	require.True(t, ok, "buffered events are drained before the channel closes")
	require.Equal(t, "pending", e.Key)
	_, ok = <-sub.Events()
	require.False(t, ok)

	late := h.Subscribe()
	_, ok = <-late.Events()
	require.False(t, ok)

	// publishing after close is a no-op
	h.Publish(Event{Key: "dropped"})
}

func TestSubscription_Close(t *testing.T) {
	h := NewHub(0)
	sub := h.Subscribe()
	sub.Close()
	sub.Close()

	h.Publish(Event{Key: "x"})
	_, ok := <-sub.Events()
	require.False(t, ok)
}
