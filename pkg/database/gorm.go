package database

import (
	"errors"
	"time"

	"daw-agent-be/internal/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var ErrEmptyDSN = errors.New("database connection string is empty")

type Options struct {
	DSN     string
	Verbose bool // log every statement, not only slow ones and errors
	Logger  logger.ILogger

	MaxIdleConns int
	MaxOpenConns int
}

func (o *Options) applyDefaults() {
	// Snapshot writes are small and infrequent.
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 2
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	if o.Logger == nil {
		o.Logger = logger.NewNopLogger()
	}
}

// NewGormDB opens a postgres connection pool.
func NewGormDB(opts Options) (*gorm.DB, error) {
	if opts.DSN == "" {
		return nil, ErrEmptyDSN
	}
	opts.applyDefaults()

	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		Logger: NewGormLogger(opts.Logger, opts.Verbose),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}
