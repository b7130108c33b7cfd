// Package routine runs goroutines that cannot take the process down.
//
// Every goroutine started here recovers panics and logs them with the
// goroutine's name and stack. A Runner additionally owns a context so that
// a whole group of background loops can be cancelled and awaited together.
package routine

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/dailyyoga/netdisco/logger"
	"go.uber.org/zap"
)

// Runner starts named background goroutines bound to a shared context
type Runner interface {
	// Go runs fn in a new goroutine. fn receives the runner context, which is
	// cancelled by Stop.
	Go(name string, fn func(ctx context.Context))

	// Wait blocks until every goroutine started by this runner returned
	Wait()

	// Stop cancels the runner context and waits for all goroutines
	Stop()
}

type defaultRunner struct {
	log    logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Runner whose goroutines observe a context derived from parent
func New(parent context.Context, log logger.Logger) Runner {
	ctx, cancel := context.WithCancel(parent)
	return &defaultRunner{
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *defaultRunner) Go(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer recoverWithLog(r.log, name)
		fn(r.ctx)
	}()
}

func (r *defaultRunner) Wait() {
	r.wg.Wait()
}

func (r *defaultRunner) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Go executes fn in a new unmanaged goroutine with panic recovery
func Go(log logger.Logger, name string, fn func()) {
	go func() {
		defer recoverWithLog(log, name)
		fn()
	}()
}

// Call runs fn on the calling goroutine and turns a panic into an error
// matching ErrPanicRecovered.
func Call(log logger.Logger, name string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logPanic(log, name, rec)
			err = ErrPanic(rec)
		}
	}()
	return fn()
}

func recoverWithLog(log logger.Logger, name string) {
	if rec := recover(); rec != nil {
		logPanic(log, name, rec)
	}
}

func logPanic(log logger.Logger, name string, rec any) {
	fields := []zap.Field{
		zap.Any("panic", rec),
		zap.String("stack", string(debug.Stack())),
	}
	if name != "" {
		fields = append([]zap.Field{zap.String("routine", name)}, fields...)
	}
	log.Error("goroutine panicked", fields...)
}
