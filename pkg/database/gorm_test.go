package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type entry struct {
	level   string
	message string
	details map[string]interface{}
}

type recordingLogger struct {
	entries []entry
}

func (r *recordingLogger) add(level, msg string, d map[string]interface{}) {
	r.entries = append(r.entries, entry{level: level, message: msg, details: d})
}

func (r *recordingLogger) Debug(_, msg string, d map[string]interface{}) { r.add("debug", msg, d) }
func (r *recordingLogger) Info(_, msg string, d map[string]interface{})  { r.add("info", msg, d) }
func (r *recordingLogger) Warn(_, msg string, d map[string]interface{})  { r.add("warn", msg, d) }
func (r *recordingLogger) Error(_, msg string, d map[string]interface{}) { r.add("error", msg, d) }
func (r *recordingLogger) Sync() error                                   { return nil }

func statement() (string, int64) { return "SELECT 1", 1 }

func TestNewGormDBRequiresDSN(t *testing.T) {
	_, err := NewGormDB(Options{})
	assert.ErrorIs(t, err, ErrEmptyDSN)
}

func TestGormLoggerTrace(t *testing.T) {
	ctx := context.Background()

	t.Run("errors are logged, record misses are not", func(t *testing.T) {
		rec := &recordingLogger{}
		l := NewGormLogger(rec, false)

		l.Trace(ctx, time.Now(), statement, gorm.ErrRecordNotFound)
		assert.Empty(t, rec.entries)

		l.Trace(ctx, time.Now(), statement, errors.New("relation missing"))
		require.Len(t, rec.entries, 1)
		assert.Equal(t, "error", rec.entries[0].level)
		assert.Equal(t, "relation missing", rec.entries[0].details["error"])
	})

	t.Run("slow queries warn", func(t *testing.T) {
		rec := &recordingLogger{}
		NewGormLogger(rec, false).Trace(ctx, time.Now().Add(-2*time.Second), statement, nil)
		require.Len(t, rec.entries, 1)
		assert.Equal(t, "Slow query", rec.entries[0].message)
	})

	t.Run("fast queries only in verbose mode", func(t *testing.T) {
		rec := &recordingLogger{}
		NewGormLogger(rec, false).Trace(ctx, time.Now(), statement, nil)
		assert.Empty(t, rec.entries)

		NewGormLogger(rec, true).Trace(ctx, time.Now(), statement, nil)
		require.Len(t, rec.entries, 1)
		assert.Equal(t, "SELECT 1", rec.entries[0].details["sql"])
	})

	t.Run("silent mode drops everything", func(t *testing.T) {
		rec := &recordingLogger{}
		NewGormLogger(rec, true).LogMode(gormlogger.Silent).Trace(ctx, time.Now(), statement, errors.New("x"))
		assert.Empty(t, rec.entries)
	})
}
