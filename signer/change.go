// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hwsigner/keypath"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// detectChange returns the path of the output that pays back to one of our
// internal branch keys, either as P2WPKH or as P2SH-wrapped P2WPKH. When
// several outputs match, the last one wins.
func detectChange(outputs []*wire.TxOut, table keyTable,
	fingerprint uint32) fn.Option[keypath.Path] {

	change := fn.None[keypath.Path]()
	for i, out := range outputs {
		for _, entry := range table {
			if entry.fingerprint != fingerprint ||
				!entry.path.IsChange() {

				continue
			}

			if !bytes.Contains(out.PkScript, entry.keyHash) &&
				!bytes.Contains(out.PkScript, nestedKeyHash(entry)) {

				continue
			}

			change.WhenSome(func(prev keypath.Path) {
				if !prev.Equal(entry.path) {
					log.Warnf("Multiple change outputs, "+
						"replacing %v with %v (output %d)",
						prev, entry.path, i)
				}
			})

			change = fn.Some(entry.path)
		}
	}

	return change
}

// nestedKeyHash returns the script hash of the P2WPKH program of the entry's
// key, i.e. the hash committed to by a P2SH-P2WPKH output.
func nestedKeyHash(entry keyEntry) []byte {
	program := make([]byte, 0, 22)
	program = append(program, txscript.OP_0, txscript.OP_DATA_20)
	program = append(program, entry.keyHash...)

	return btcutil.Hash160(program)
}
