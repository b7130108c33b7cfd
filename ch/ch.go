// Package ch writes discovery sightings to ClickHouse in batches.
package ch

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

type TableName string

// Row is one record of a table. Columns and Values must line up.
type Row interface {
	TableName() TableName
	Columns() []string
	Values() []any
}

// Writer buffers rows and inserts them per table in batches
type Writer interface {
	Start() error
	Close() error
	Write(ctx context.Context, rows []Row) error
}

// Client is the unified ClickHouse client for queries and batch writes
type Client interface {
	// Writer returns the lazily created batch writer. The caller starts it.
	Writer() (Writer, error)
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
	Exec(ctx context.Context, query string, args ...any) error
	Close() error
}

// inserter sends one batch of rows of a single table
type inserter interface {
	insert(ctx context.Context, table TableName, columns []string, rows []Row) error
}
