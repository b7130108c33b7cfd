package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dailyyoga/netdisco/api"
	"github.com/dailyyoga/netdisco/ch"
	"github.com/dailyyoga/netdisco/db"
	"github.com/dailyyoga/netdisco/discovery"
	"github.com/dailyyoga/netdisco/kafka"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run background discovery with sinks and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(f, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

// closer is a shutdown step run in reverse registration order
type closer struct {
	name string
	fn   func() error
}

func (a *app) serve(ctx context.Context) (err error) {
	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].fn(); cerr != nil {
				a.log.Error("shutdown step failed", zap.String("step", closers[i].name), zap.Error(cerr))
			}
		}
	}()

	m := discovery.NewManager(a.log, a.metrics)
	if err := a.registerSources(m); err != nil {
		return err
	}

	sinks, producer, sinkClosers, err := a.buildSinks(ctx)
	closers = append(closers, sinkClosers...)
	if err != nil {
		return err
	}

	fwd := discovery.NewForwarder(a.log, &a.cfg.Forwarder, a.metrics, sinks...)
	fwd.Start(m.Subscribe())
	closers = append(closers, closer{"forwarder", func() error {
		fwd.Stop()
		return fwd.Close()
	}})

	if err := m.Start(ctx); err != nil {
		return err
	}
	closers = append(closers, closer{"discovery", func() error {
		m.Stop()
		return nil
	}})

	if a.cfg.Kafka != nil && a.cfg.Kafka.Consumer != nil {
		consumer, err := kafka.NewConsumer(a.log, a.cfg.Kafka.Consumer)
		if err != nil {
			return err
		}
		closers = append(closers, closer{"kafka.consumer", consumer.Close})
		if err := consumer.Start(ctx, kafka.ProbeRequestHandler(a.log, m, producer)); err != nil {
			return err
		}
	}

	srv, err := api.Listen(a.log, a.cfg.HTTP.Listen, api.NewRouter(a.log, m, a.metrics.Handler()),
		a.cfg.HTTP.ReadTimeout, a.cfg.HTTP.WriteTimeout)
	if err != nil {
		return err
	}
	srv.Start()
	closers = append(closers, closer{"http", func() error {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	}})

	a.log.Info("netdisco started",
		zap.Strings("sources", m.Sources()),
		zap.Stringer("http", srv.Addr()),
	)
	<-ctx.Done()
	a.log.Info("shutting down")
	return nil
}

// buildSinks creates every configured event sink. The returned producer is
// nil unless kafka.producer is configured; probe replies go through it.
func (a *app) buildSinks(ctx context.Context) ([]discovery.Sink, kafka.Producer, []closer, error) {
	sinks := []discovery.Sink{discovery.NewLogSink(a.log)}
	var closers []closer
	var producer kafka.Producer

	if a.cfg.Kafka != nil && a.cfg.Kafka.Producer != nil {
		p, err := kafka.NewProducer(a.log, a.cfg.Kafka.Producer)
		if err != nil {
			return nil, nil, closers, err
		}
		producer = p
		// the sink owns the producer and closes it with the forwarder
		sinks = append(sinks, kafka.NewEventSink(p, a.cfg.Kafka.Producer.Topic))
	}

	if a.cfg.ClickHouse != nil {
		client, err := ch.NewClient(&a.cfg.ClickHouse.Config, a.log)
		if err != nil {
			return nil, nil, closers, err
		}
		closers = append(closers, closer{"clickhouse", client.Close})
		if a.cfg.ClickHouse.CreateTable {
			if err := ch.EnsureSightingsTable(ctx, client, a.cfg.ClickHouse.TTLDays); err != nil {
				return nil, nil, closers, err
			}
		}
		w, err := client.Writer()
		if err != nil {
			return nil, nil, closers, err
		}
		if err := w.Start(); err != nil {
			return nil, nil, closers, err
		}
		sinks = append(sinks, ch.NewSightingSink(w))
	}

	if a.cfg.MySQL != nil {
		database, err := db.NewMySQL(a.log, a.cfg.MySQL)
		if err != nil {
			return nil, nil, closers, err
		}
		closers = append(closers, closer{"mysql", database.Close})
		gdb, err := database.DB()
		if err != nil {
			return nil, nil, closers, err
		}
		sinks = append(sinks, db.NewInventorySink(db.NewInventory(a.log, gdb)))
	}
	return sinks, producer, closers, nil
}
