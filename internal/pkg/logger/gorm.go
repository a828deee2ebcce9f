package logger

import (
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

type gormWriter struct {
	log *zap.SugaredLogger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Warnf(format, args...)
}

// Gorm routes gorm's slow query and error output through zap. Missing
// rows are an expected outcome for lookups and are not logged.
func Gorm(l *zap.Logger) gormlogger.Interface {
	return gormlogger.New(gormWriter{log: l.Named("gorm").Sugar()}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
