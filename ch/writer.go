package ch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dailyyoga/netdisco/logger"
	"github.com/dailyyoga/netdisco/routine"
	"github.com/smallnest/chanx"
	"go.uber.org/zap"
)

type defaultWriter struct {
	config *WriterConfig
	logger logger.Logger
	ins    inserter

	dataChan *chanx.UnboundedChan[Row]

	// guards closing dataChan.In against concurrent writes
	mu      sync.RWMutex
	done    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

func newWriter(ins inserter, config *WriterConfig, log logger.Logger) *defaultWriter {
	if config == nil {
		config = DefaultWriterConfig()
	}
	w := &defaultWriter{
		config:   config,
		logger:   log.Named("ch.writer"),
		ins:      ins,
		dataChan: chanx.NewUnboundedChan[Row](context.Background(), config.FlushSize),
		done:     make(chan struct{}),
	}
	w.logger.Info("clickhouse writer initialized",
		zap.Duration("flush_interval", config.FlushInterval),
		zap.Int("flush_size", config.FlushSize),
		zap.Int("min_flush_size", config.MinFlushSize),
		zap.Duration("max_wait_time", config.MaxWaitTime),
	)
	return w
}

func (w *defaultWriter) Start() error {
	if w.closed.Load() {
		return ErrWriterClosed
	}
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	w.wg.Add(1)
	routine.Go(w.logger, "ch-writer", func() {
		defer w.wg.Done()
		w.processLoop()
	})
	w.logger.Info("clickhouse writer started")
	return nil
}

func (w *defaultWriter) Write(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed.Load() {
		return ErrWriterClosed
	}
	if limit := w.config.MaxBufferedRows; limit > 0 && w.dataChan.Len()+len(rows) > limit {
		w.logger.Error("buffer is full, rejecting rows",
			zap.Int("buffered", w.dataChan.Len()),
			zap.Int("rows", len(rows)),
		)
		return ErrBufferFull
	}

	for _, row := range rows {
		select {
		case w.dataChan.In <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close flushes everything written before it and stops the writer
func (w *defaultWriter) Close() error {
	w.mu.Lock()
	if !w.closed.CompareAndSwap(false, true) {
		w.mu.Unlock()
		return nil
	}
	close(w.done)
	close(w.dataChan.In)
	w.mu.Unlock()
	w.logger.Info("clickhouse writer shutting down")

	if !w.started.Load() {
		// nobody consumes, flush what was written synchronously
		w.wg.Add(1)
		w.processLoop()
	}
	w.wg.Wait()

	w.logger.Info("clickhouse writer shutdown complete")
	return nil
}

// batch groups buffered rows by table
type batch struct {
	tables map[TableName][]Row
	rows   int
	first  time.Time
}

func newBatch() *batch {
	return &batch{tables: make(map[TableName][]Row)}
}

func (b *batch) add(row Row, now time.Time) {
	if b.rows == 0 {
		b.first = now
	}
	b.tables[row.TableName()] = append(b.tables[row.TableName()], row)
	b.rows++
}

func (w *defaultWriter) processLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	buf := newBatch()
	for {
		select {
		case row, ok := <-w.dataChan.Out:
			if !ok {
				w.flush(buf)
				return
			}
			if row == nil {
				continue
			}
			buf.add(row, time.Now())
			if buf.rows >= w.config.FlushSize {
				w.flush(buf)
				buf = newBatch()
			}

		case <-ticker.C:
			if buf.rows == 0 {
				continue
			}
			if w.shouldFlush(buf.rows, buf.first, time.Now()) {
				w.flush(buf)
				buf = newBatch()
			} else {
				w.logger.Debug("skipping flush, waiting for more data",
					zap.Int("current_rows", buf.rows),
					zap.Duration("waited", time.Since(buf.first)),
				)
			}

		case <-w.done:
			// Out is closed once the rows still in flight were delivered
			for row := range w.dataChan.Out {
				if row != nil {
					buf.add(row, time.Now())
				}
			}
			w.flush(buf)
			return
		}
	}
}

// shouldFlush applies the MinFlushSize and MaxWaitTime policy to an
// interval tick
func (w *defaultWriter) shouldFlush(rows int, first, now time.Time) bool {
	if w.config.MinFlushSize == 0 || rows >= w.config.MinFlushSize {
		return true
	}
	return w.config.MaxWaitTime > 0 && now.Sub(first) >= w.config.MaxWaitTime
}

func (w *defaultWriter) flush(buf *batch) {
	if buf.rows == 0 {
		return
	}
	success, failed := 0, 0
	for table, rows := range buf.tables {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.InsertTimeout)
		err := w.ins.insert(ctx, table, rows[0].Columns(), rows)
		cancel()
		if err != nil {
			w.logger.Error("failed to batch insert", zap.String("table", string(table)), zap.Error(err))
			failed += len(rows)
			continue
		}
		success += len(rows)
	}
	w.logger.Info("flush completed",
		zap.Int("total_rows", buf.rows),
		zap.Int("success_rows", success),
		zap.Int("failed_rows", failed),
	)
}

// connInserter inserts through a native protocol batch
type connInserter struct {
	conn driver.Conn
}

func (c connInserter) insert(ctx context.Context, table TableName, columns []string, rows []Row) error {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = "`" + col + "`"
	}
	query := fmt.Sprintf("INSERT INTO `%s` (%s)", table, strings.Join(quoted, ", "))

	b, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return ErrInsert(table, err)
	}
	for _, row := range rows {
		values := row.Values()
		if len(values) != len(columns) {
			_ = b.Abort()
			return ErrInsert(table, ErrColumnMismatch(table, len(columns), len(values)))
		}
		if err := b.Append(values...); err != nil {
			_ = b.Abort()
			return ErrInsert(table, err)
		}
	}
	if err := b.Send(); err != nil {
		return ErrInsert(table, err)
	}
	return nil
}
