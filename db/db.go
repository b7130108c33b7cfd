// Package db keeps the device inventory in MySQL through gorm.
package db

import (
	"context"

	"gorm.io/gorm"
)

// Database is an open connection pool
type Database interface {
	DB() (*gorm.DB, error)
	Ping(ctx context.Context) error
	Close() error
}
