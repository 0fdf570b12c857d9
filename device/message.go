// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package device

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// messageMagic prefixes every message before it is hashed and signed.
const messageMagic = "Bitcoin Signed Message:\n"

// MessageDigest returns the digest a device signs for a Bitcoin signed
// message: the double SHA256 of the length-prefixed magic followed by the
// length-prefixed message.
func MessageDigest(message []byte) []byte {
	var buf bytes.Buffer

	// Writes to a bytes.Buffer never fail.
	_ = wire.WriteVarString(&buf, 0, messageMagic)
	_ = wire.WriteVarBytes(&buf, 0, message)

	return chainhash.DoubleHashB(buf.Bytes())
}
