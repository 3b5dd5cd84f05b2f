package gormrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/trezcool/rollcall/core"
)

// Open wraps an opened postgres pool; gorm shares the pool and never migrates the schema itself.
func Open(db *sql.DB, logger core.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 NewLogger(logger),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening gorm")
	}
	return gdb, nil
}

// Logger forwards gorm logs to core.Logger.
type Logger struct {
	SlowThreshold time.Duration
	LogLevel      gormlogger.LogLevel
	log           core.Logger
}

var _ gormlogger.Interface = (*Logger)(nil)

func NewLogger(logger core.Logger) *Logger {
	return &Logger{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      gormlogger.Warn,
		log:           logger,
	}
}

func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	nl := *l
	nl.LogLevel = level
	return &nl
}

func (l *Logger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		l.log.Info(fmt.Sprintf("gorm: "+msg, data...))
	}
}

func (l *Logger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf("gorm: "+msg, data...))
	}
}

func (l *Logger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		l.log.Error(fmt.Sprintf("gorm: "+msg, data...))
	}
}

// Trace logs failed queries at debug level: constraint violations are expected inside
// savepoints and are reported by the repositories themselves.
func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		query, rows := fc()
		l.log.Debug(fmt.Sprintf("gorm: %v | %s | %d rows | %s", err, elapsed, rows, query))
	case elapsed > l.SlowThreshold && l.LogLevel >= gormlogger.Warn:
		query, rows := fc()
		l.log.Warn(fmt.Sprintf("gorm: slow query | %s | %d rows | %s", elapsed, rows, query))
	case l.LogLevel >= gormlogger.Info:
		query, rows := fc()
		l.log.Debug(fmt.Sprintf("gorm: %s | %d rows | %s", elapsed, rows, query))
	}
}
