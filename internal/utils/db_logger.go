package utils

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormLogger writes GORM's SQL trace through zerolog and filters out specific queries
type GormLogger struct {
	log                  zerolog.Logger
	level                logger.LogLevel
	slowThreshold        time.Duration
	ignoredQueryPatterns []string
}

// NewGormLogger creates a logger with the given ignored query patterns
func NewGormLogger(log zerolog.Logger, level logger.LogLevel, slowThreshold time.Duration, ignoredPatterns ...string) *GormLogger {
	return &GormLogger{
		log:                  log,
		level:                level,
		slowThreshold:        slowThreshold,
		ignoredQueryPatterns: ignoredPatterns,
	}
}

// LogMode implements logger.Interface
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		l.log.Info().Msgf(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		l.log.Warn().Msgf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		l.log.Error().Msgf(msg, data...)
	}
}

// Trace implements logger.Interface
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.level <= logger.Silent {
		return
	}

	sql, rows := fc()
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)

	// The periodic scans are too chatty to log unless they fail
	if !failed {
		for _, pattern := range l.ignoredQueryPatterns {
			if strings.Contains(sql, pattern) {
				return
			}
		}
	}

	elapsed := time.Since(begin)
	var ev *zerolog.Event
	switch {
	case failed && l.level >= logger.Error:
		ev = l.log.Error().Err(err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		ev = l.log.Warn().Dur("slow_threshold", l.slowThreshold)
	case l.level >= logger.Info:
		ev = l.log.Debug()
	default:
		return
	}

	if caller := findCaller(); caller != "" {
		ev = ev.Str("caller", caller)
	}
	ev.Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("sql query")
}

// findCaller looks through the call stack to find the first non-GORM caller
func findCaller() string {
	for i := 2; i < 15; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		if strings.Contains(file, "gorm.io") ||
			strings.Contains(file, "internal/utils/db_logger.go") {
			continue
		}

		funcName := ""
		if fn := runtime.FuncForPC(pc); fn != nil {
			funcName = fn.Name()
			if idx := strings.LastIndexByte(funcName, '.'); idx != -1 {
				funcName = funcName[idx+1:]
			}
		}

		if funcName != "" {
			return fmt.Sprintf("%s() at %s:%d", funcName, file, line)
		}
		return fmt.Sprintf("%s:%d", file, line)
	}

	return ""
}
