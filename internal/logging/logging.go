// Package logging builds the application's zap logger.
//
// The terminal belongs to the UI while gb runs, so log output goes to a file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logDir  = "gb"
	logFile = "gb.log"
)

// Options selects the destination and verbosity of the logger.
type Options struct {
	// File is the log destination. Empty selects DefaultFile.
	File string
	// Debug enables debug-level output, which includes every git invocation.
	Debug bool
}

// DefaultFile returns $(UserCacheDir)/gb/gb.log.
func DefaultFile() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user cache directory: %w", err)
	}
	return filepath.Join(cacheDir, logDir, logFile), nil
}

// New produces a JSON zap.Logger appending to the configured file.
func New(opts Options) (*zap.Logger, error) {
	path := opts.File
	if path == "" {
		p, err := DefaultFile()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	configuration := zap.NewProductionConfig()
	configuration.Level = zap.NewAtomicLevelAt(level)
	configuration.Encoding = "json"
	configuration.OutputPaths = []string{path}
	configuration.ErrorOutputPaths = []string{path}
	configuration.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	configuration.Sampling = nil

	logger, err := configuration.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build logger: %w", err)
	}
	return logger, nil
}
