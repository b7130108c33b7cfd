// Package cron schedules named task chains on cron specs.
//
// Specs accept an optional seconds field ("*/30 * * * * *") as well as the
// robfig descriptors ("@every 30s", "@hourly"). A chain never overlaps with
// itself: a tick that fires while the previous run is still going is skipped.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/dailyyoga/netdisco/logger"
)

// Task is one unit of scheduled work
type Task interface {
	// Name returns the unique identifier for this task
	Name() string
	// Run executes the task. ctx is cancelled when the scheduler closes or
	// the per-run timeout elapses.
	Run(ctx context.Context) error
}

// TaskFunc adapts a function into a Task
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

func (f TaskFunc) Name() string                  { return f.TaskName }
func (f TaskFunc) Run(ctx context.Context) error { return f.Fn(ctx) }

// Chain represents a chain of tasks that execute sequentially
type Chain struct {
	Name  string
	Spec  string
	Tasks []Task
}

// Cron manages scheduled chains
type Cron interface {
	// Start begins the scheduler in the background
	Start()
	// Close stops the scheduler, cancels running chains and waits for them
	Close()
	// AddTasks schedules tasks to run sequentially on spec. A failing task
	// aborts the rest of the chain for that tick.
	AddTasks(name string, spec string, tasks ...Task) error
	// AddChain is alias for AddTasks
	AddChain(chain Chain) error
}

// Every returns the spec for a fixed interval
func Every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// New creates a scheduler. Every task is wrapped with recovery, logging and,
// when timeout > 0, a per-run deadline, followed by mws.
func New(log logger.Logger, timeout time.Duration, mws ...Middleware) Cron {
	defaults := []Middleware{
		recoveryMiddleware(log),
		loggingMiddleware(log),
	}
	if timeout > 0 {
		defaults = append(defaults, timeoutMiddleware(timeout))
	}
	return newCronManager(log, append(defaults, mws...)...)
}
