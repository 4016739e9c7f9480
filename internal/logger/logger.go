package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the service.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Fatal(msg string, keysAndValues ...any)
	With(keysAndValues ...any) Logger
	Sync() error
}

// ZapLogger implements Logger on a zap sugared logger.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

// New builds a JSON production logger at the given level ("debug", "info", ...).
func New(level string) *ZapLogger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	config := zap.NewProductionConfig()
	config.EncoderConfig = encoderConfig
	if lvl, err := zapcore.ParseLevel(strings.TrimSpace(level)); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := config.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Sugar()}
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *ZapLogger {
	return &ZapLogger{logger: zap.NewNop().Sugar()}
}

func (l *ZapLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *ZapLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l *ZapLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warnw(msg, keysAndValues...)
}

func (l *ZapLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l *ZapLogger) Fatal(msg string, keysAndValues ...any) {
	l.logger.Fatalw(msg, keysAndValues...)
}

// With returns a logger carrying extra structured context.
func (l *ZapLogger) With(keysAndValues ...any) Logger {
	return &ZapLogger{logger: l.logger.With(keysAndValues...)}
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

// Event logs a module/action line the same way across services.
func Event(l Logger, requestID, module, action, message string, keysAndValues ...any) {
	if l == nil {
		return
	}
	kv := append([]any{"module", module, "action", action, "request_id", strings.TrimSpace(requestID)}, keysAndValues...)
	l.Info(message, kv...)
}
