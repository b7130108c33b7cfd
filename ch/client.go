package ch

import (
	"context"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dailyyoga/netdisco/logger"
	"go.uber.org/zap"
)

type defaultClient struct {
	config *Config
	logger logger.Logger

	// shared by the writer and queries
	conn driver.Conn

	writer     *defaultWriter
	writerOnce sync.Once

	closed bool
	mu     sync.RWMutex
}

// NewClient opens and pings a connection
func NewClient(config *Config, log logger.Logger) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.MergeDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: config.Hosts,
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		DialTimeout: config.DialTimeout,
		Debug:       config.Debug,
		Settings:    config.Settings,
	})
	if err != nil {
		return nil, ErrConnection(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, ErrConnection(err)
	}

	log = log.Named("ch")
	log.Info("clickhouse client initialized",
		zap.Strings("hosts", config.Hosts),
		zap.String("database", config.Database),
	)
	return &defaultClient{config: config, logger: log, conn: conn}, nil
}

// Writer returns ErrWriterDisabled if WriterConfig is not set
func (c *defaultClient) Writer() (Writer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.config.WriterConfig == nil {
		return nil, ErrWriterDisabled
	}
	c.writerOnce.Do(func() {
		c.writer = newWriter(connInserter{conn: c.conn}, c.config.WriterConfig, c.logger)
	})
	return c.writer, nil
}

func (c *defaultClient) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		c.logger.Error("query failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}
	return rows, nil
}

// QueryRow returns nil on a closed client
func (c *defaultClient) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.logger.Error("connection is closed", zap.String("query", query))
		return nil
	}
	return c.conn.QueryRow(ctx, query, args...)
}

func (c *defaultClient) Exec(ctx context.Context, query string, args ...any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	return c.conn.Exec(ctx, query, args...)
}

// Close flushes the writer, if any, and closes the connection
func (c *defaultClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			c.logger.Error("failed to close writer", zap.Error(err))
		}
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Error("failed to close clickhouse connection", zap.Error(err))
		return err
	}
	c.logger.Info("clickhouse client shutdown complete")
	return nil
}
