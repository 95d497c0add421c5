// Package logger provides leveled structured logging.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var defaultLogger = zap.NewNop().Sugar()

// Init initializes the default logger with the specified level and format.
// When file is non-empty, JSON logs are also written there with rotation.
func Init(level string, format string, file string) error {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	if strings.ToLower(format) == "text" {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl),
	}

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     7, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			writer,
			lvl,
		))
	}

	l := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	defaultLogger = l.Sugar()
	return nil
}

// Sync flushes any buffered log entries.
func Sync() error {
	return defaultLogger.Sync()
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.Errorf(format, args...)
}

func Fatal(format string, args ...interface{}) {
	defaultLogger.Fatalf(format, args...)
	os.Exit(1)
}
