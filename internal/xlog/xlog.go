// Package xlog builds the zap logger the diff algorithms log through,
// wired to the CLI's -d/--debug and -v/--verbose flags.
package xlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a SugaredLogger writing to stderr. debug enables debug-level
// output (the algorithms log one line per clean/dirty segment decision at
// this level); verbose additionally switches to zap's development
// encoder for readable, non-JSON lines.
func New(debug, verbose bool) (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
