// Package logging provides the shared zap logger for Lumen subsystems.
// Log output goes to a file under the data directory, never to the
// conversation stream the user is reading.
package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.Mutex
	root *zap.SugaredLogger
)

// Init configures the process-wide logger. Logs are appended to
// <dataDir>/lumen.log. When debug is true, debug-level entries are kept.
func Init(dataDir string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{filepath.Join(dataDir, "lumen.log")}
	cfg.ErrorOutputPaths = cfg.OutputPaths
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	root = logger.Sugar()
	return nil
}

// For returns a logger tagged with the given subsystem name.
// Before Init is called it returns a no-op logger, which keeps tests quiet.
func For(subsystem string) *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		return zap.NewNop().Sugar()
	}
	return root.Named(subsystem)
}

// Sync flushes buffered log entries. Safe to call on exit.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	if root != nil {
		_ = root.Sync()
	}
}
