// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
)

// SignPsbtResult is the outcome of a transaction signing run.
type SignPsbtResult struct {
	// Packet is the PSBT with the new partial signatures added.
	Packet *psbt.Packet

	// SignedInputs lists the indices of the inputs that received at
	// least one signature.
	SignedInputs []uint32

	// Summary describes the value flow of the signed transaction.
	Summary *TxSummary
}

// Hex returns the serialized PSBT as hex.
func (r *SignPsbtResult) Hex() (string, error) {
	var buf bytes.Buffer
	if err := r.Packet.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize psbt: %w", err)
	}

	return hex.EncodeToString(buf.Bytes()), nil
}

// Base64 returns the serialized PSBT as base64.
func (r *SignPsbtResult) Base64() (string, error) {
	return r.Packet.B64Encode()
}

// inputSignature is a signature collected for one input.
type inputSignature struct {
	index     int
	pubKey    []byte
	signature []byte
}

// mergeSignatures adds the collected signatures to the packet. A signature
// for a key that already has one on the input is dropped.
func mergeSignatures(packet *psbt.Packet, sigs []inputSignature) []uint32 {
	var signed []uint32
	for _, sig := range sigs {
		pIn := &packet.Inputs[sig.index]
		if hasPartialSig(pIn, sig.pubKey) {
			log.Debugf("Input %d already signed by %x, keeping "+
				"existing signature", sig.index, sig.pubKey)

			continue
		}

		pIn.PartialSigs = append(pIn.PartialSigs, &psbt.PartialSig{
			PubKey:    sig.pubKey,
			Signature: sig.signature,
		})

		idx := uint32(sig.index)
		if len(signed) == 0 || signed[len(signed)-1] != idx {
			signed = append(signed, idx)
		}
	}

	return signed
}

// hasPartialSig returns true if the input has a signature for pubKey.
func hasPartialSig(pIn *psbt.PInput, pubKey []byte) bool {
	for _, ps := range pIn.PartialSigs {
		if bytes.Equal(ps.PubKey, pubKey) {
			return true
		}
	}

	return false
}
