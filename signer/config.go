// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/hwsigner/device"
	"github.com/btcsuite/hwsigner/keypath"
)

// Config holds the dependencies and settings of a Signer.
type Config struct {
	// Device is the exclusively owned handle of the connected signer.
	Device device.Device

	// ChainParams selects the extended key version bytes. Defaults to
	// mainnet.
	ChainParams *chaincfg.Params

	// FingerprintPath is the reference path whose key fingerprint
	// identifies the device's wallet in PSBT key-path metadata. Defaults
	// to the master key.
	FingerprintPath keypath.Path
}

// validate checks the config and fills in defaults.
func (c *Config) validate() error {
	if c.Device == nil {
		return fmt.Errorf("%w: missing device", ErrInvalidConfig)
	}

	if c.ChainParams == nil {
		c.ChainParams = &chaincfg.MainNetParams
	}

	if c.FingerprintPath == nil {
		c.FingerprintPath = keypath.Path{}
	}

	return nil
}
