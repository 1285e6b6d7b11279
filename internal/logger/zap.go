package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger implements Logger on top of zap's sugared logger
type zapLogger struct {
	sugar *zap.SugaredLogger
	level Level
}

// NewZapLogger creates a new Logger backed by zap. The "text" format uses
// zap's development console encoder; anything else uses production JSON.
func NewZapLogger(cfg Config) (Logger, error) {
	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	switch cfg.Format {
	case "text":
		encCfg = zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	if cfg.Output != nil {
		sink = zapcore.AddSync(cfg.Output)
	}

	core := zapcore.NewCore(enc, sink, zap.NewAtomicLevelAt(toZapLevel(cfg.Level)))

	var opts []zap.Option
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	return &zapLogger{
		sugar: zap.New(core, opts...).Sugar(),
		level: cfg.Level,
	}, nil
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fieldsToKVs(fields []Field) []any {
	kvs := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		kvs = append(kvs, f.Key, f.Value)
	}
	return kvs
}

func (l *zapLogger) Debug(msg string, fields ...Field) {
	l.sugar.Debugw(msg, fieldsToKVs(fields)...)
}

func (l *zapLogger) Info(msg string, fields ...Field) {
	l.sugar.Infow(msg, fieldsToKVs(fields)...)
}

func (l *zapLogger) Warn(msg string, fields ...Field) {
	l.sugar.Warnw(msg, fieldsToKVs(fields)...)
}

func (l *zapLogger) Error(msg string, fields ...Field) {
	l.sugar.Errorw(msg, fieldsToKVs(fields)...)
}

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{
		sugar: l.sugar.With(fieldsToKVs(fields)...),
		level: l.level,
	}
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	fields := extractContextFields(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

func (l *zapLogger) Level() Level {
	return l.level
}

// Sync flushes buffered entries
func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}
