package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	atomicLevel zap.AtomicLevel
	logger      *zap.Logger
	sink        *switchableSink
}

var (
	instance *Logger   //nolint:gochecknoglobals // Singleton pattern for logger
	once     sync.Once //nolint:gochecknoglobals // Singleton pattern for logger
)

// switchableSink lets SetOutput redirect loggers that were already handed out.
type switchableSink struct {
	mu sync.RWMutex
	w  zapcore.WriteSyncer
}

func (s *switchableSink) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *switchableSink) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Sync()
}

func (s *switchableSink) set(w zapcore.WriteSyncer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func initialize() {
	once.Do(func() {
		instance = &Logger{
			atomicLevel: zap.NewAtomicLevelAt(zap.InfoLevel),
			// stderr keeps stdout free for command output
			sink: &switchableSink{w: zapcore.Lock(os.Stderr)},
		}

		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.TimeKey = "timestamp"
		encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000") // HH:MM:SS.mmm format
		encoderCfg.CallerKey = ""                                           // remove caller
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			instance.sink,
			instance.atomicLevel,
		)

		instance.logger = zap.New(core)
	})
}

func GetLogger() *zap.Logger {
	initialize()
	return instance.logger
}

func SetLevel(level zapcore.Level) {
	initialize()
	instance.atomicLevel.SetLevel(level)
}

// Level returns the current minimum level.
func Level() zapcore.Level {
	initialize()
	return instance.atomicLevel.Level()
}

// SetOutput redirects every logger returned by GetLogger.
func SetOutput(w io.Writer) {
	initialize()
	instance.sink.set(zapcore.AddSync(w))
}

// ParseLevel maps a config value such as "debug" or "WARN" to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}
