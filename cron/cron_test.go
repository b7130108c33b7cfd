package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEvery(t *testing.T) {
	require.Equal(t, "@every 30s", Every(30*time.Second))
}

func TestAddTasks_Validation(t *testing.T) {
	c := New(logger.NewNop(), 0)
	defer c.Close()

	require.ErrorIs(t, c.AddTasks("empty", "@every 1s"), ErrNoTasks)

	task := TaskFunc{TaskName: "noop", Fn: func(context.Context) error { return nil }}
	require.ErrorIs(t, c.AddTasks("bad", "not a spec", task), ErrInvalidSpec)
	require.NoError(t, c.AddTasks("five-field", "*/5 * * * *", task))
	require.NoError(t, c.AddTasks("six-field", "*/5 * * * * *", task))
}

func TestChainRunsSequentiallyAndAbortsOnFailure(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	c := New(logger.Wrap(zap.New(core)), time.Second)

	var first, third atomic.Int32
	ran := make(chan struct{}, 10)
	require.NoError(t, c.AddChain(Chain{
		Name: "sweep",
		Spec: "@every 1s",
		Tasks: []Task{
			TaskFunc{TaskName: "first", Fn: func(context.Context) error { first.Add(1); return nil }},
			TaskFunc{TaskName: "second", Fn: func(context.Context) error {
				ran <- struct{}{}
				return errors.New("boom")
			}},
			TaskFunc{TaskName: "third", Fn: func(context.Context) error { third.Add(1); return nil }},
		},
	}))
	c.Start()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("chain did not run")
	}
	c.Close()

	require.GreaterOrEqual(t, first.Load(), int32(1))
	require.Zero(t, third.Load())
	require.NotZero(t, recorded.FilterMessage("chain job aborted due to task failure").Len())
}

func TestRecoveryMiddleware(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	log := logger.Wrap(zap.New(core))

	task := applyMiddlewares(
		&wrappedTask{name: "panicky", exec: func(context.Context) error { panic("kaboom") }},
		recoveryMiddleware(log),
		loggingMiddleware(log),
	)
	err := task.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, recorded.FilterMessage("goroutine panicked").Len())
	require.Equal(t, 1, recorded.FilterMessage("task failed").Len())
}

func TestTimeoutMiddleware(t *testing.T) {
	task := applyMiddlewares(
		&wrappedTask{name: "slow", exec: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
		timeoutMiddleware(10*time.Millisecond),
	)
	require.ErrorIs(t, task.Run(context.Background()), context.DeadlineExceeded)
}

func TestCloseCancelsRunningChain(t *testing.T) {
	c := New(logger.NewNop(), 0)
	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, c.AddTasks("long", "@every 1s", TaskFunc{TaskName: "wait", Fn: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}}))
	c.Start()

	<-started
	c.Close()
	select {
	case <-cancelled:
	default:
		t.Fatal("Close returned before the running chain observed cancellation")
	}
}
