package common

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   *zap.SugaredLogger
	loggerMu sync.Mutex
)

// InitLogger builds the process-wide logger from config. Safe to call more
// than once; the last call wins.
func InitLogger(cfg *Config) *zap.SugaredLogger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.LogFormat == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	l, err := zc.Build()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l.Sugar()
	return logger
}

// Log returns the shared logger, initializing a default one if needed.
func Log() *zap.SugaredLogger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l.Sugar()
	}
	return logger
}
