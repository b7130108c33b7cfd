package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/routine"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Sink receives batches of events, e.g. a Kafka topic or a ClickHouse table
type Sink interface {
	Name() string
	Publish(ctx context.Context, events []Event) error
	Close() error
}

// ForwarderConfig controls batching of a Forwarder
type ForwarderConfig struct {
	// BatchSize flushes as soon as this many events are pending
	// default: 100
	BatchSize int `mapstructure:"batch_size"`
	// FlushInterval flushes pending events at least this often
	// default: 5 * time.Second
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// FlushTimeout bounds one flush across all sinks
	// default: 10 * time.Second
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// DefaultForwarderConfig returns the default batching configuration
func DefaultForwarderConfig() *ForwarderConfig {
	return &ForwarderConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		FlushTimeout:  10 * time.Second,
	}
}

// MergeDefaults fills zero values with defaults
func (c *ForwarderConfig) MergeDefaults() {
	d := DefaultForwarderConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = d.FlushTimeout
	}
}

// Forwarder drains a subscription into sinks in batches. A failing sink
// does not keep the others from receiving the batch, and a failed batch is
// not retried.
type Forwarder struct {
	cfg      *ForwarderConfig
	log      logger.Logger
	sinks    []Sink
	observer Observer

	mu     sync.Mutex
	runner routine.Runner
}

// NewForwarder creates a forwarder for sinks
func NewForwarder(log logger.Logger, cfg *ForwarderConfig, obs Observer, sinks ...Sink) *Forwarder {
	if cfg == nil {
		cfg = DefaultForwarderConfig()
	} else {
		cfg.MergeDefaults()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Forwarder{
		cfg:      cfg,
		log:      log.Named("forwarder"),
		sinks:    sinks,
		observer: obs,
	}
}

// Start runs the forwarder in the background until sub closes or Stop is
// called.
func (f *Forwarder) Start(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runner != nil {
		return
	}
	f.runner = routine.New(context.Background(), f.log)
	f.runner.Go("forwarder", func(ctx context.Context) {
		f.Run(ctx, sub)
	})
}

// Stop stops the background loop after a final flush
func (f *Forwarder) Stop() {
	f.mu.Lock()
	runner := f.runner
	f.runner = nil
	f.mu.Unlock()
	if runner != nil {
		runner.Stop()
	}
}

// Run forwards events until the subscription closes or ctx is done, then
// flushes what is pending.
func (f *Forwarder) Run(ctx context.Context, sub *Subscription) {
	ticker := time.NewTicker(f.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, f.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := f.Flush(batch); err != nil {
			f.log.Warn("flush failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = make([]Event, 0, f.cfg.BatchSize)
	}
	defer flush()

	for {
		select {
		case <-ctx.Done():
			// take what is already delivered before the final flush
			for {
				select {
				case e, ok := <-sub.Events():
					if !ok {
						return
					}
					batch = append(batch, e)
				default:
					return
				}
			}
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			batch = append(batch, e)
			if len(batch) >= f.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Flush publishes events to every sink and returns the combined error
func (f *Forwarder) Flush(events []Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.FlushTimeout)
	defer cancel()

	var result error
	for _, s := range f.sinks {
		err := routine.Call(f.log, s.Name(), func() error {
			return s.Publish(ctx, events)
		})
		if err != nil {
			f.observer.ObserveSinkFailure(s.Name())
			f.log.Error("sink publish failed", zap.String("sink", s.Name()), zap.Error(err))
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Close closes every sink
func (f *Forwarder) Close() error {
	var result error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// LogSink writes events to a logger
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a sink logging at info level
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log.Named("events")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, events []Event) error {
	for _, e := range events {
		s.log.Info("discovery event",
			zap.String("kind", string(e.Kind)),
			zap.String("source", e.Source),
			zap.String("key", e.Key),
			zap.Uint64("version", e.Version),
			zap.Any("entity", e.Entity),
		)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
