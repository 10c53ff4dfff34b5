package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// LoggerOptions controls where the global logger writes
type LoggerOptions struct {
	Debug            bool
	Encoding         string // json or console
	OutputPaths      []string
	ErrorOutputPaths []string
}

// InitLogger initializes the global logger instance
func InitLogger(debug bool) *zap.Logger {
	return InitLoggerWithOptions(LoggerOptions{Debug: debug})
}

// InitLoggerWithOptions initializes the global logger once with opts
func InitLoggerWithOptions(opts LoggerOptions) *zap.Logger {
	once.Do(func() {
		logger, err := NewLogger(opts)
		if err != nil {
			panic(err)
		}
		log = logger
	})

	return log
}

// NewLogger builds a production style logger without touching the global
func NewLogger(opts LoggerOptions) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if opts.Debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if opts.Encoding != "" {
		config.Encoding = opts.Encoding
	}

	config.OutputPaths = []string{"stderr"}
	if len(opts.OutputPaths) > 0 {
		config.OutputPaths = opts.OutputPaths
	}
	config.ErrorOutputPaths = []string{"stderr"}
	if len(opts.ErrorOutputPaths) > 0 {
		config.ErrorOutputPaths = opts.ErrorOutputPaths
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false)
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
