// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/hwsigner/device"
	"github.com/btcsuite/hwsigner/device/emulator"
	"github.com/btcsuite/hwsigner/signer"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"
)

// app holds the state shared by all commands.
type app struct {
	ctx    context.Context
	cfg    *config
	signer *signer.Signer
	closer io.Closer
}

// handle runs after the options are parsed and before the selected command
// executes. It sets up logging and opens the device.
func (a *app) handle(cmd flags.Commander, args []string) error {
	if cmd == nil {
		return nil
	}

	if err := a.cfg.validate(); err != nil {
		return err
	}

	setLogLevels(a.cfg.DebugLevel)
	if a.cfg.LogDir != "" {
		closer, err := initLogRotator(
			filepath.Join(a.cfg.LogDir, defaultLogFile),
		)
		if err != nil {
			return err
		}
		a.closer = closer
	}

	dev, err := a.openDevice()
	if err != nil {
		return err
	}

	a.signer, err = signer.New(signer.Config{
		Device:          dev,
		ChainParams:     a.cfg.params,
		FingerprintPath: a.cfg.fingerprintPath,
	})
	if err != nil {
		return err
	}

	return cmd.Execute(args)
}

// openDevice returns the device selected by the config.
func (a *app) openDevice() (device.Device, error) {
	if !a.cfg.Emulator {
		return nil, errNoTransport
	}

	seed, err := a.readSeed()
	if err != nil {
		return nil, err
	}

	log.Infof("Using software device on %v", a.cfg.params.Name)

	return emulator.New(seed, a.cfg.params)
}

// readSeed returns the configured seed, prompting for it on the terminal if
// none was given.
func (a *app) readSeed() ([]byte, error) {
	seedHex := a.cfg.Seed
	if seedHex == "" {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return nil, errors.New("no seed given and stdin " +
				"is not a terminal")
		}

		fmt.Fprint(os.Stderr, "Enter hex seed: ")
		input, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("unable to read seed: %w", err)
		}

		seedHex = string(input)
	}

	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}

	return seed, nil
}
