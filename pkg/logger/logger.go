package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger обертка над zap.SugaredLogger для структурированного логирования.
// Все компоненты сервиса получают именно этот тип, а не zap напрямую.
type Logger struct {
	*zap.SugaredLogger
}

// New создает новый Logger с указанным уровнем ("debug", "info", "warn", "error").
// Неизвестный уровень трактуется как info.
func New(level string) *Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Логгер не должен ронять приложение при инициализации
		core = zap.NewNop()
	}

	return &Logger{SugaredLogger: core.Sugar()}
}

// NewNop возвращает логгер, который ничего не пишет. Используется в тестах.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Named возвращает логгер с именем подсистемы (например, "kafka", "repository").
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name)}
}
