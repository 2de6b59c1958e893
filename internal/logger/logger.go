// Package logger provides the process-wide structured logger. Every
// component logs through a named child of one shared zap instance, so
// protocol, control and physics output interleave with consistent framing.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level names accepted in configuration.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Logger wraps zap's SugaredLogger; the key-value Infow/Errorw style is
// used everywhere.
type Logger struct {
	*zap.SugaredLogger
}

var (
	global *Logger
	once   sync.Once
)

// Get returns the singleton logger. The level only takes effect on the
// first call; later callers get the already built instance.
func Get(level string) *Logger {
	once.Do(func() {
		global = build(level)
	})
	return global
}

// Named returns a child logger tagged with a component name, so the three
// servers and the tick loop are distinguishable in output.
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name)}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		// Unknown strings fall back to info rather than failing startup.
		return zapcore.InfoLevel
	}
}

func build(level string) *Logger {
	cfg := zap.NewProductionEncoderConfig()
	// Wall-clock timestamps matter here: the message log stores wire
	// traffic with timestamps, and operators line the two up.
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(zapcore.Lock(os.Stdout)),
		zap.NewAtomicLevelAt(parseLevel(level)),
	)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}
}
