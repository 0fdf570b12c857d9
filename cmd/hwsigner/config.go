// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/hwsigner/keypath"
)

const (
	defaultNetwork    = "mainnet"
	defaultDebugLevel = "info"
	defaultLogDirname = "logs"
	defaultLogFile    = "hwsigner.log"
)

var (
	defaultAppDir = btcutil.AppDataDir("hwsigner", false)
	defaultLogDir = filepath.Join(defaultAppDir, defaultLogDirname)

	// errNoTransport is returned when no device can be opened.
	errNoTransport = errors.New("no hardware transport available, " +
		"use --emulator")
)

// config defines the global options of hwsigner.
type config struct {
	Network         string `long:"network" description:"Bitcoin network the device operates on" choice:"mainnet" choice:"testnet3" choice:"signet" choice:"regtest" choice:"simnet"`
	FingerprintPath string `long:"fingerprintpath" description:"Path of the key whose fingerprint identifies the device in PSBT key paths"`
	DebugLevel      string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogDir          string `long:"logdir" description:"Directory to log output"`
	Emulator        bool   `long:"emulator" description:"Use the in-process software device"`
	Seed            string `long:"seed" description:"Hex encoded seed of the software device, prompted for if empty"`

	params          *chaincfg.Params
	fingerprintPath keypath.Path
}

// defaultConfig returns a config with every default applied.
func defaultConfig() *config {
	return &config{
		Network:    defaultNetwork,
		DebugLevel: defaultDebugLevel,
		LogDir:     defaultLogDir,
	}
}

// validate resolves the textual options into their typed forms.
func (c *config) validate() error {
	switch c.Network {
	case "mainnet":
		c.params = &chaincfg.MainNetParams

	case "testnet3":
		c.params = &chaincfg.TestNet3Params

	case "signet":
		c.params = &chaincfg.SigNetParams

	case "regtest":
		c.params = &chaincfg.RegressionNetParams

	case "simnet":
		c.params = &chaincfg.SimNetParams

	default:
		return fmt.Errorf("unknown network %q", c.Network)
	}

	path, err := keypath.Parse(c.FingerprintPath)
	if err != nil {
		return fmt.Errorf("invalid fingerprint path: %w", err)
	}
	c.fingerprintPath = path

	if _, ok := btclog.LevelFromString(c.DebugLevel); !ok {
		return fmt.Errorf("invalid debug level %q", c.DebugLevel)
	}

	c.LogDir = cleanAndExpandPath(c.LogDir)

	return nil
}

// cleanAndExpandPath expands environment variables and a leading ~ in path.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Clean(os.ExpandEnv(path))
}
