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
	"github.com/btcsuite/hwsigner/device/emulator"
	"github.com/btcsuite/hwsigner/signer"
	"github.com/jrick/logrotate/rotator"
)

const (
	// maxLogFileSize is the size in KB at which the log file is rolled.
	maxLogFileSize = 10 * 1024

	// maxLogFiles is the number of rolled files kept.
	maxLogFiles = 3

	logDirPerm = 0o700
)

// logWriter writes log output to stderr and, once initialized, to the log
// rotator.
type logWriter struct {
	rotator *rotator.Rotator
}

// Write implements io.Writer.
func (w *logWriter) Write(p []byte) (int, error) {
	_, _ = os.Stderr.Write(p)
	if w.rotator != nil {
		_, _ = w.rotator.Write(p)
	}

	return len(p), nil
}

var (
	logOutput  = &logWriter{}
	backendLog = btclog.NewBackend(logOutput)

	log     = backendLog.Logger("MAIN")
	hwsgLog = backendLog.Logger("HWSG")
	emulLog = backendLog.Logger("EMUL")
)

// subsystemLoggers maps each subsystem identifier to its logger.
var subsystemLoggers = map[string]btclog.Logger{
	"MAIN": log,
	"HWSG": hwsgLog,
	"EMUL": emulLog,
}

func init() {
	signer.UseLogger(hwsgLog)
	emulator.UseLogger(emulLog)
}

// initLogRotator starts writing log output to logFile, rolling it over as it
// grows.
func initLogRotator(logFile string) (io.Closer, error) {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, logDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	r, err := rotator.New(logFile, maxLogFileSize, false, maxLogFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}

	logOutput.rotator = r

	return r, nil
}

// setLogLevels sets the level of every subsystem logger.
func setLogLevels(debugLevel string) {
	level, _ := btclog.LevelFromString(debugLevel)
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}
