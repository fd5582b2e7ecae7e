package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level, destination and encoding of a zap logger.
type Config struct {
	// Level is debug, info, warn or error. Anything else means info.
	Level string
	// Output defaults to stdout.
	Output io.Writer
	// JSON switches from the console encoder to one JSON object per line.
	JSON bool
	// Fields are attached to every line.
	Fields []Field
}

type zapLogger struct {
	logger *zap.Logger
}

func NewZapLogger(cfg Config) Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), parseLevel(cfg.Level))
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &zapLogger{logger: logger.With(toZap(cfg.Fields)...)}
}

// InitGlobalLogger installs a zap logger writing to file, or stdout when file
// is empty. The returned func flushes it and closes the file.
func InitGlobalLogger(level, file string, json bool, fields ...Field) (func(), error) {
	cfg := Config{Level: level, JSON: json, Fields: fields}

	closeFile := func() error { return nil }
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", file, err)
		}
		cfg.Output = f
		closeFile = f.Close
	}

	logger := NewZapLogger(cfg)
	SetGlobalLogger(logger)
	logger.Info("Logger initialized",
		String("level", parseLevel(level).String()),
		String("log_file", file),
	)

	return func() {
		_ = logger.(*zapLogger).logger.Sync()
		_ = closeFile()
	}, nil
}

func parseLevel(level string) zapcore.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil || l > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return l
}

func (z *zapLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug(msg, toZap(fields)...)
}

func (z *zapLogger) Info(msg string, fields ...Field) {
	z.logger.Info(msg, toZap(fields)...)
}

func (z *zapLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn(msg, toZap(fields)...)
}

func (z *zapLogger) Error(msg string, err error, fields ...Field) {
	zf := toZap(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	z.logger.Error(msg, zf...)
}

func (z *zapLogger) WithFields(fields ...Field) Logger {
	if len(fields) == 0 {
		return z
	}
	return &zapLogger{logger: z.logger.With(toZap(fields)...)}
}

func (z *zapLogger) WithContext(ctx context.Context) Logger {
	var fields []Field
	if requestID, ok := RequestIDFromContext(ctx); ok {
		fields = append(fields, String("request_id", requestID))
	}
	if tenantID, ok := TenantFromContext(ctx); ok {
		fields = append(fields, String("tenant_id", tenantID))
	}
	return z.WithFields(fields...)
}

func toZap(fields []Field) []zap.Field {
	zf := make([]zap.Field, len(fields))
	for i, f := range fields {
		if err, ok := f.Value.(error); ok {
			zf[i] = zap.NamedError(f.Key, err)
			continue
		}
		zf[i] = zap.Any(f.Key, f.Value)
	}
	return zf
}
