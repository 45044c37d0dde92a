// Package logger provides the shared structured logger for the test
// framework. Suites write human-readable progress to GinkgoWriter; the
// framework packages log through logger.Log so output carries key/value
// context and survives parallel runs.
package logger

import (
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the package-level logger used across the framework.
var Log = New(os.Getenv("ODH_E2E_LOG_LEVEL"))

// Logger wraps a zap sugared logger with the calling conventions used
// throughout the framework: variadic key/value pairs and an explicit
// error argument on Error.
type Logger struct {
	s *zap.SugaredLogger
}

// New builds a Logger at the given level ("debug", "info", "warn",
// "error"). An empty or unknown level means info.
func New(level string) *Logger {
	lvl := zapcore.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return &Logger{s: zap.New(core).Sugar()}
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.s.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.s.Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(err error, msg string, keysAndValues ...any) {
	if err != nil {
		keysAndValues = append(keysAndValues, "error", err)
	}
	l.s.Errorw(msg, keysAndValues...)
}

// Logr exposes the logger as a logr.Logger for libraries that expect
// one, such as controller-runtime clients.
func (l *Logger) Logr() logr.Logger {
	return zapr.NewLogger(l.s.Desugar())
}
