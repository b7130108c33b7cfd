package discovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/taskcache"
	"github.com/stretchr/testify/require"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout sentinel", fmt.Errorf("%w: slow", taskcache.ErrProbeTimeout), true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", fmt.Errorf("%w: gone", taskcache.ErrProbeCancelled), false},
		{"context cancelled", context.Canceled, false},
		{"connection refused", errors.New("dial udp: connection refused"), true},
		{"no route", errors.New("sendto: no route to host"), true},
		{"permission", errors.New("operation not permitted"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), logger.NewNop(), "test", 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("i/o timeout")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithRetry_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, logger.NewNop(), "test", 5, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("connection reset")
	})
	require.EqualError(t, err, "connection reset")
	require.Equal(t, 1, calls)
}
