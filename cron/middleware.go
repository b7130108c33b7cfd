package cron

import (
	"context"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/routine"
	"go.uber.org/zap"
)

// Middleware wraps a Task with additional behavior
type Middleware func(Task) Task

// applyMiddlewares applies mws so that mws[0] is the outermost wrapper
func applyMiddlewares(t Task, mws ...Middleware) Task {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i](t)
	}
	return t
}

// recoveryMiddleware converts a panicking task into an error
func recoveryMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) error {
				return routine.Call(log, next.Name(), func() error {
					return next.Run(ctx)
				})
			},
		}
	}
}

// loggingMiddleware logs duration and errors of every run
func loggingMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) error {
				start := time.Now()
				err := next.Run(ctx)
				duration := time.Since(start)
				if err != nil {
					log.Error("task failed",
						zap.String("task", next.Name()),
						zap.Duration("duration", duration),
						zap.Error(err),
					)
				} else {
					log.Debug("task completed",
						zap.String("task", next.Name()),
						zap.Duration("duration", duration),
					)
				}
				return err
			},
		}
	}
}

func timeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return next.Run(ctx)
			},
		}
	}
}

type wrappedTask struct {
	name string
	exec func(ctx context.Context) error
}

func (w *wrappedTask) Name() string {
	return w.name
}

func (w *wrappedTask) Run(ctx context.Context) error {
	return w.exec(ctx)
}
