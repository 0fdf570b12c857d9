// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package btcunit provides the size and fee rate units used when reporting
// on transactions before they are signed.
package btcunit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
)

// VByte expresses a transaction size in virtual bytes of four weight units
// each.
type VByte struct {
	// wu is the size in weight units.
	wu uint64
}

// NewVByte creates a VByte.
func NewVByte(vb uint64) VByte {
	return VByte{wu: vb * blockchain.WitnessScaleFactor}
}

// Uint64 returns the size in virtual bytes, rounded up.
func (v VByte) Uint64() uint64 {
	return (v.wu + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor
}

// String returns the size followed by its unit.
func (v VByte) String() string {
	return fmt.Sprintf("%d vb", v.Uint64())
}
