package db

import (
	"context"

	"github.com/dailyyoga/netdisco/logger"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type defaultMySQLDatabase struct {
	logger logger.Logger
	db     *gorm.DB
}

// NewMySQL connects and pings. With AutoMigrate set the inventory table is
// migrated as well.
func NewMySQL(log logger.Logger, cfg *Config) (Database, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	log = log.Named("db")
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                                   newGormLogger(log, cfg.LogLevel, cfg.SlowThreshold),
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, ErrConnection(err)
	}
	sqldb, err := gdb.DB()
	if err != nil {
		return nil, ErrConnection(err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqldb.Ping(); err != nil {
		_ = sqldb.Close()
		return nil, ErrConnection(err)
	}

	if cfg.AutoMigrate {
		if err := gdb.AutoMigrate(&Device{}); err != nil {
			_ = sqldb.Close()
			return nil, ErrConnection(err)
		}
	}

	log.Info("database connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Bool("auto_migrate", cfg.AutoMigrate),
	)
	return &defaultMySQLDatabase{logger: log, db: gdb}, nil
}

func (dd *defaultMySQLDatabase) DB() (*gorm.DB, error) {
	if dd.db == nil {
		return nil, ErrConnectionNotEstablished
	}
	return dd.db, nil
}

func (dd *defaultMySQLDatabase) Ping(ctx context.Context) error {
	sqldb, err := dd.db.DB()
	if err != nil {
		return ErrConnection(err)
	}
	return sqldb.PingContext(ctx)
}

func (dd *defaultMySQLDatabase) Close() error {
	sqldb, err := dd.db.DB()
	if err != nil {
		return ErrConnection(err)
	}
	return sqldb.Close()
}
