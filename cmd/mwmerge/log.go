// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/mwmerge/builder"
	"github.com/btcsuite/mwmerge/coordinator"
	"github.com/btcsuite/mwmerge/cutthrough"
	"github.com/btcsuite/mwmerge/utxo"
	"github.com/btcsuite/mwmerge/validate"
	"github.com/jrick/logrotate/rotator"
)

// logWriter implements an io.Writer that outputs to a console stream and
// the write-end pipe of an initialized log rotator.
type logWriter struct {
	console io.Writer
}

func (w logWriter) Write(p []byte) (n int, err error) {
	w.console.Write(p)
	if logRotatorPipe != nil {
		logRotatorPipe.Write(p)
	}

	return len(p), nil
}

var (
	// consoleLog sends log lines to standard error, keeping standard
	// output for command results.
	consoleLog = logWriter{console: os.Stderr}

	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = btclog.NewBackend(consoleLog)

	// logRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	// logRotatorPipe is the write-end pipe for writing to the log
	// rotator.
	logRotatorPipe *io.PipeWriter

	log     = backendLog.Logger("MWMG")
	cutLog  = backendLog.Logger("CUTT")
	valdLog = backendLog.Logger("VALD")
	utxoLog = backendLog.Logger("UTXO")
	cordLog = backendLog.Logger("CORD")
	bldrLog = backendLog.Logger("BLDR")
)

// Initialize package-global logger variables.
func init() {
	cutthrough.UseLogger(cutLog)
	validate.UseLogger(valdLog)
	utxo.UseLogger(utxoLog)
	coordinator.UseLogger(cordLog)
	builder.UseLogger(bldrLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"MWMG": log,
	"CUTT": cutLog,
	"VALD": valdLog,
	"UTXO": utxoLog,
	"CORD": cordLog,
	"BLDR": bldrLog,
}

// initLogRotator initializes the logging rotator to write logs to logFile and
// create roll files in the same directory. It must be called before the
// package-global log rotator variables are used.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		_ = r.Run(pr)
	}()

	logRotator = r
	logRotatorPipe = pw

	return nil
}

// closeLogRotator flushes and closes the log file.
func closeLogRotator() {
	if logRotatorPipe != nil {
		_ = logRotatorPipe.Close()
		logRotatorPipe = nil
	}
	if logRotator != nil {
		_ = logRotator.Close()
		logRotator = nil
	}
}

// setLogLevel sets the logging level for provided subsystem. Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}
