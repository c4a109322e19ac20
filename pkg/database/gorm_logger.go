package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"daw-agent-be/internal/pkg/logger"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	module        = "DATABASE"
	slowThreshold = time.Second
)

// GormLogger routes gorm's log output into the service logger.
type GormLogger struct {
	log   logger.ILogger
	level gormlogger.LogLevel
}

func NewGormLogger(log logger.ILogger, verbose bool) *GormLogger {
	level := gormlogger.Warn
	if verbose {
		level = gormlogger.Info
	}
	return &GormLogger{log: log, level: level}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Info(module, fmt.Sprintf(msg, args...), nil)
	}
}

func (l *GormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(module, fmt.Sprintf(msg, args...), nil)
	}
}

func (l *GormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Error(module, fmt.Sprintf(msg, args...), nil)
	}
}

// Trace logs failed statements as errors and slow ones as warnings. Record
// misses are expected by the blob store and are not logged.
func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.log.Error(module, "Query failed", map[string]interface{}{
			"sql":     sql,
			"rows":    rows,
			"elapsed": elapsed.String(),
			"error":   err.Error(),
		})
	case elapsed > slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.Warn(module, "Slow query", map[string]interface{}{
			"sql":     sql,
			"rows":    rows,
			"elapsed": elapsed.String(),
		})
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.Debug(module, "Query", map[string]interface{}{
			"sql":     sql,
			"rows":    rows,
			"elapsed": elapsed.String(),
		})
	}
}
