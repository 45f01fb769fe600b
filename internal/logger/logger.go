package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey struct{}

// Config controls the process-wide logger
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

var base = newBaseLogger()

func newBaseLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return l
}

// Init applies the logging configuration to the process-wide logger
func Init(cfg Config) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	}

	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		base.SetOutput(io.MultiWriter(os.Stdout, rotating))
	}
}

// GetLogger returns the entry stored in ctx, or a fresh entry on the base logger
func GetLogger(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(contextKey{}).(*logrus.Entry); ok && entry != nil {
			return entry
		}
	}
	return logrus.NewEntry(base)
}

// WithFields returns a context whose logger carries the given fields
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return context.WithValue(ctx, contextKey{}, GetLogger(ctx).WithFields(fields))
}

// WithField is WithFields for a single key
func WithField(ctx context.Context, key string, value any) context.Context {
	return WithFields(ctx, logrus.Fields{key: value})
}

func Debug(ctx context.Context, args ...any) { GetLogger(ctx).Debug(args...) }

func Debugf(ctx context.Context, format string, args ...any) { GetLogger(ctx).Debugf(format, args...) }

func Info(ctx context.Context, args ...any) { GetLogger(ctx).Info(args...) }

func Infof(ctx context.Context, format string, args ...any) { GetLogger(ctx).Infof(format, args...) }

func Warn(ctx context.Context, args ...any) { GetLogger(ctx).Warn(args...) }

func Warnf(ctx context.Context, format string, args ...any) { GetLogger(ctx).Warnf(format, args...) }

func Error(ctx context.Context, args ...any) { GetLogger(ctx).Error(args...) }

func Errorf(ctx context.Context, format string, args ...any) { GetLogger(ctx).Errorf(format, args...) }

func Fatalf(ctx context.Context, format string, args ...any) { GetLogger(ctx).Fatalf(format, args...) }
