package ch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dailyyoga/netdisco/discovery"
	"github.com/dailyyoga/netdisco/logger"
	"github.com/stretchr/testify/require"
)

type memoryInserter struct {
	mu      sync.Mutex
	batches map[TableName][][]Row
	err     error
}

func (m *memoryInserter) insert(_ context.Context, table TableName, columns []string, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.batches == nil {
		m.batches = map[TableName][][]Row{}
	}
	m.batches[table] = append(m.batches[table], rows)
	return nil
}

func (m *memoryInserter) count(table TableName) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches[table] {
		n += len(b)
	}
	return n
}

type testRow struct {
	table TableName
	id    int
}

func (r testRow) TableName() TableName { return r.table }
func (r testRow) Columns() []string    { return []string{"id"} }
func (r testRow) Values() []any        { return []any{r.id} }

func rows(table TableName, n int) []Row {
	out := make([]Row, n)
	for i := range out {
		out[i] = testRow{table: table, id: i}
	}
	return out
}

func newTestWriter(ins inserter, cfg *WriterConfig) *defaultWriter {
	cfg.MergeDefaults()
	return newWriter(ins, cfg, logger.NewNop())
}

func TestWriter_FlushBySize(t *testing.T) {
	ins := &memoryInserter{}
	w := newTestWriter(ins, &WriterConfig{FlushSize: 3, FlushInterval: time.Hour})
	require.NoError(t, w.Start())
	defer w.Close()

	require.NoError(t, w.Write(context.Background(), rows("a", 4)))
	require.Eventually(t, func() bool { return ins.count("a") == 3 }, time.Second, 5*time.Millisecond)
}

func TestWriter_FlushByInterval(t *testing.T) {
	ins := &memoryInserter{}
	w := newTestWriter(ins, &WriterConfig{FlushSize: 100, FlushInterval: 10 * time.Millisecond})
	require.NoError(t, w.Start())
	defer w.Close()

	require.NoError(t, w.Write(context.Background(), append(rows("a", 2), rows("b", 1)...)))
	require.Eventually(t, func() bool {
		return ins.count("a") == 2 && ins.count("b") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWriter_CloseDrains(t *testing.T) {
	ins := &memoryInserter{}
	w := newTestWriter(ins, &WriterConfig{FlushSize: 100, FlushInterval: time.Hour})
	require.NoError(t, w.Start())

	require.NoError(t, w.Write(context.Background(), rows("a", 10)))
	require.NoError(t, w.Close())
	require.Equal(t, 10, ins.count("a"))

	require.ErrorIs(t, w.Write(context.Background(), rows("a", 1)), ErrWriterClosed)
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.Start(), ErrWriterClosed)
}

func TestWriter_CloseWithoutStart(t *testing.T) {
	ins := &memoryInserter{}
	w := newTestWriter(ins, &WriterConfig{FlushSize: 100, FlushInterval: time.Hour})
	require.NoError(t, w.Write(context.Background(), rows("a", 2)))
	require.NoError(t, w.Close())
	require.Equal(t, 2, ins.count("a"))
}

func TestWriter_BufferFull(t *testing.T) {
	w := newTestWriter(&memoryInserter{}, &WriterConfig{FlushSize: 10, FlushInterval: time.Hour, MaxBufferedRows: 5})
	defer w.Close()

	require.NoError(t, w.Write(context.Background(), rows("a", 5)))
	require.ErrorIs(t, w.Write(context.Background(), rows("a", 1)), ErrBufferFull)
}

func TestWriter_InsertFailureKeepsRunning(t *testing.T) {
	ins := &memoryInserter{err: errors.New("table missing")}
	w := newTestWriter(ins, &WriterConfig{FlushSize: 1, FlushInterval: time.Hour})
	require.NoError(t, w.Start())
	defer w.Close()

	require.NoError(t, w.Write(context.Background(), rows("a", 1)))
	time.Sleep(20 * time.Millisecond)

	ins.mu.Lock()
	ins.err = nil
	ins.mu.Unlock()
	require.NoError(t, w.Write(context.Background(), rows("a", 1)))
	require.Eventually(t, func() bool { return ins.count("a") >= 1 }, time.Second, 5*time.Millisecond)
}

func TestWriter_ShouldFlush(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		min     int
		maxWait time.Duration
		rows    int
		waited  time.Duration
		want    bool
	}{
		{"min disabled", 0, 0, 1, 0, true},
		{"enough rows", 10, time.Minute, 10, 0, true},
		{"too few rows", 10, time.Minute, 3, time.Second, false},
		{"waited too long", 10, time.Minute, 3, time.Minute, true},
		{"wait disabled", 10, 0, 3, time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &defaultWriter{config: &WriterConfig{MinFlushSize: tt.min, MaxWaitTime: tt.maxWait}}
			require.Equal(t, tt.want, w.shouldFlush(tt.rows, now.Add(-tt.waited), now))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{Hosts: []string{"localhost:9000"}, Username: "default", WriterConfig: &WriterConfig{}}
	cfg.MergeDefaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "default", cfg.Database)
	require.Equal(t, 5000, cfg.WriterConfig.FlushSize)

	cfg.WriterConfig.MinFlushSize = 6000
	require.Error(t, cfg.Validate())
	require.Error(t, (&Config{Username: "x"}).Validate())
}

func TestSightingSink(t *testing.T) {
	ins := &memoryInserter{}
	w := newTestWriter(ins, &WriterConfig{FlushSize: 100, FlushInterval: time.Hour})
	sink := NewSightingSink(w)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := sink.Publish(context.Background(), []discovery.Event{
		{ID: "e1", Kind: discovery.KindAdded, Source: "arp", Key: "10.0.0.1", Entity: map[string]string{"mac": "aa"}, Version: 4, ObservedAt: at},
		{ID: "e2", Kind: discovery.KindAdded, Source: "arp", Key: "bad", Entity: func() {}, Version: 4, ObservedAt: at},
	})
	require.Error(t, err, "unencodable entity is reported")
	require.NoError(t, sink.Close())

	require.Equal(t, 1, ins.count(SightingsTable))
	row := ins.batches[SightingsTable][0][0]
	require.Len(t, row.Values(), len(row.Columns()))
	s := row.(*Sighting)
	require.Equal(t, "e1", s.EventID)
	require.Equal(t, "added", s.Kind)
	var entity map[string]string
	require.NoError(t, json.Unmarshal([]byte(s.Entity), &entity))
	require.Equal(t, "aa", entity["mac"])
}

func TestSightingsDDL(t *testing.T) {
	ddl := SightingsDDL(30)
	require.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS `device_sightings`")
	require.Contains(t, ddl, "INTERVAL 30 DAY")
}
