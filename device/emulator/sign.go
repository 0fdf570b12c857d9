// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package emulator

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/hwsigner/keypath"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	// compactSigSize is the size of a compact recoverable signature.
	compactSigSize = 65

	// compactHeaderBase is the smallest compact signature header for a
	// compressed key.
	compactHeaderBase = 27 + 4
)

// sign produces a deterministic signature of digest with the key at path,
// encoded the way the firmware replies: a DER signature whose leading
// sequence tag carries the parity of R in its low bit.
func (e *Emulator) sign(path keypath.Path, digest []byte) ([]byte, error) {
	key, err := e.derive(path)
	if err != nil {
		return nil, err
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}

	compact := ecdsa.SignCompact(privKey, digest, true)
	if len(compact) != compactSigSize {
		return nil, fmt.Errorf("unexpected compact signature size %d",
			len(compact))
	}

	var r, s secp256k1.ModNScalar
	r.SetByteSlice(compact[1:33])
	s.SetByteSlice(compact[33:65])

	der := ecdsa.NewSignature(&r, &s).Serialize()
	der[0] |= (compact[0] - compactHeaderBase) & 0x01

	return der, nil
}
