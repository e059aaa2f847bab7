// Package logging builds the zap logger used by every tracefood component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, encoding and an optional rotated log file.
type Config struct {
	Level      string // debug|info|warn|error
	Format     string // json|console
	File       string // empty disables the file sink
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger adapts a zap SugaredLogger to the key/value logging surface used by
// the service, settlement and transport layers.
type Logger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

// New builds a logger writing to console (stderr when nil) and, when
// cfg.File is set, to a lumberjack-rotated file.
func New(cfg Config, console io.Writer) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("log format %q: must be json or console", cfg.Format)
	}

	if console == nil {
		console = os.Stderr
	}
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(console), level)}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays, // days
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), file, level))
	}
	return Wrap(zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))), nil
}

// Wrap adapts an existing zap logger.
func Wrap(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{base: l, sugar: l.Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger { return Wrap(zap.NewNop()) }

func (l *Logger) Debug(msg string, kv ...any) { l.sugar.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.sugar.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.sugar.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.sugar.Errorw(msg, kv...) }

// Named returns a child logger with a component name.
func (l *Logger) Named(name string) *Logger { return Wrap(l.base.Named(name)) }

// Zap exposes the underlying logger.
func (l *Logger) Zap() *zap.Logger { return l.base }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.base.Sync() }

// Badger returns an adapter for badger's Logger interface. Badger's info
// chatter is demoted to debug.
func (l *Logger) Badger() *BadgerLogger {
	return &BadgerLogger{sugar: l.base.Named("badger").WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// BadgerLogger implements badger.Logger.
type BadgerLogger struct {
	sugar *zap.SugaredLogger
}

func (b *BadgerLogger) Errorf(format string, args ...interface{}) {
	b.sugar.Errorf(strings.TrimSpace(format), args...)
}

func (b *BadgerLogger) Warningf(format string, args ...interface{}) {
	b.sugar.Warnf(strings.TrimSpace(format), args...)
}

func (b *BadgerLogger) Infof(format string, args ...interface{}) {
	b.sugar.Debugf(strings.TrimSpace(format), args...)
}

func (b *BadgerLogger) Debugf(format string, args ...interface{}) {
	b.sugar.Debugf(strings.TrimSpace(format), args...)
}
