package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines severity for logger output.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// ParseLevel maps a level name to a LogLevel. Unknown names map to info.
func ParseLevel(name string) LogLevel {
	switch name {
	case "error":
		return LogLevelError
	case "warn", "warning":
		return LogLevelWarn
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger provides leveled logging on top of a zap sugared logger.
type Logger struct {
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

// NewLogger creates a console logger with desired level and name.
func NewLogger(level LogLevel, name string) *Logger {
	atom := zap.NewAtomicLevelAt(level.zapLevel())
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), atom)
	base := zap.New(core)
	if name != "" {
		base = base.Named(name)
	}
	return &Logger{level: atom, sugar: base.Sugar()}
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	if z == nil {
		return NewNop()
	}
	return &Logger{level: zap.NewAtomicLevelAt(zapcore.DebugLevel), sugar: z.Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{level: zap.NewAtomicLevelAt(zapcore.ErrorLevel), sugar: zap.NewNop().Sugar()}
}

// SetLevel adjusts current logging level.
func (l *Logger) SetLevel(level LogLevel) {
	if l == nil {
		return
	}
	l.level.SetLevel(level.zapLevel())
}

// Named returns a child logger sharing the level of its parent.
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{level: l.level, sugar: l.sugar.Named(name)}
}

// With returns a child logger carrying structured key/value pairs.
func (l *Logger) With(keysAndValues ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{level: l.level, sugar: l.sugar.With(keysAndValues...)}
}

// Debugf prints debug messages.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Infof prints info messages.
func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warnf prints warning messages.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Errorf prints error messages.
func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.sugar.Sync()
}

var defaultLogger = NewLogger(LogLevelInfo, "replica_sim")

// GetLogger returns the global logger.
func GetLogger() *Logger {
	return defaultLogger
}

// SetLogger replaces the global logger (primarily for tests).
func SetLogger(l *Logger) {
	if l == nil {
		return
	}
	defaultLogger = l
}
