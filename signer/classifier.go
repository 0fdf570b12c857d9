// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hwsigner/device"
	"github.com/btcsuite/hwsigner/keypath"
)

// scriptKind is the spending type of an input as seen by the classifier.
type scriptKind uint8

const (
	// kindUnknown is an input whose script code could not be derived. It
	// is only hashed, never signed.
	kindUnknown scriptKind = iota

	// kindLegacy is an input known only through its non-witness UTXO.
	kindLegacy

	// kindP2WPKH is a native witness v0 key hash input.
	kindP2WPKH

	// kindNestedP2WPKH is a witness v0 key hash input wrapped in P2SH.
	kindNestedP2WPKH

	// kindP2WSH is a native witness v0 script hash input.
	kindP2WSH

	// kindNestedP2WSH is a witness v0 script hash input wrapped in P2SH.
	kindNestedP2WSH
)

// String returns the string representation of a scriptKind.
func (k scriptKind) String() string {
	switch k {
	case kindUnknown:
		return "unknown"

	case kindLegacy:
		return "legacy"

	case kindP2WPKH:
		return "p2wpkh"

	case kindNestedP2WPKH:
		return "np2wpkh"

	case kindP2WSH:
		return "p2wsh"

	case kindNestedP2WSH:
		return "np2wsh"

	default:
		return "unknown script kind"
	}
}

// keyEntry is one public key of the PSBT key-path table.
type keyEntry struct {
	pubKey      []byte
	keyHash     []byte
	fingerprint uint32
	path        keypath.Path
}

// keyTable is the union of the BIP32 derivations of all inputs and outputs
// of a packet, one entry per public key and master fingerprint, in packet
// order. A key listed under a foreign fingerprint first keeps the entry under
// ours.
type keyTable []keyEntry

// newKeyTable collects the key-path table of a packet.
func newKeyTable(packet *psbt.Packet) keyTable {
	type tableKey struct {
		pubKey      string
		fingerprint uint32
	}

	var (
		table keyTable
		seen  = make(map[tableKey]struct{})
	)

	add := func(derivations []*psbt.Bip32Derivation) {
		for _, d := range derivations {
			key := tableKey{
				pubKey:      string(d.PubKey),
				fingerprint: d.MasterKeyFingerprint,
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			table = append(table, keyEntry{
				pubKey:      d.PubKey,
				keyHash:     btcutil.Hash160(d.PubKey),
				fingerprint: d.MasterKeyFingerprint,
				path:        keypath.Path(d.Bip32Path),
			})
		}
	}

	for _, in := range packet.Inputs {
		add(in.Bip32Derivation)
	}
	for _, out := range packet.Outputs {
		add(out.Bip32Derivation)
	}

	return table
}

// signAttempt is one (key, path) pair that may sign an input.
type signAttempt struct {
	path   keypath.Path
	pubKey []byte
}

// inputRecord is the working record of one transaction input.
type inputRecord struct {
	index      int
	input      device.Input
	kind       scriptKind
	scriptCode []byte
	attempts   []signAttempt

	// amountKnown is false when the UTXO data of the input is missing or
	// inconsistent. The input is then hashed with whatever amount was
	// found, possibly zero.
	amountKnown bool
}

// classifyInputs builds a record for every input of the packet, in order.
// The packet is not modified.
func classifyInputs(packet *psbt.Packet, table keyTable,
	fingerprint uint32) ([]*inputRecord, error) {

	tx := packet.UnsignedTx
	if len(packet.Inputs) != len(tx.TxIn) {
		return nil, fmt.Errorf("%w: %d psbt inputs for %d tx inputs",
			ErrMalformedInput, len(packet.Inputs), len(tx.TxIn))
	}

	records := make([]*inputRecord, 0, len(tx.TxIn))
	for i := range tx.TxIn {
		rec, err := classifyInput(packet, i, table, fingerprint)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, nil
}

// classifyInput builds the record of input i. Failures on an input that
// carries no derivation of ours leave it as a hashed-only input. Failures on
// an input we would sign are fatal.
func classifyInput(packet *psbt.Packet, i int, table keyTable,
	fingerprint uint32) (*inputRecord, error) {

	txIn := packet.UnsignedTx.TxIn[i]
	pIn := &packet.Inputs[i]

	rec := &inputRecord{
		index: i,
		input: device.Input{
			PrevOut:  txIn.PreviousOutPoint,
			Sequence: txIn.Sequence,
		},
	}

	owned := ownsDerivation(pIn.Bip32Derivation, fingerprint)

	// skip keeps an input we hold no key for as hashed only. BIP143 only
	// commits to the amount of the input being signed, so the device can
	// still hash it.
	skip := func(err error) (*inputRecord, error) {
		if owned {
			return nil, &MalformedInputError{Index: i, Err: err}
		}

		log.Warnf("Input %d is not ours and will only be hashed: %v",
			i, err)

		return rec, nil
	}

	var pkScript []byte
	switch {
	case pIn.WitnessUtxo != nil:
		rec.input.Amount = btcutil.Amount(pIn.WitnessUtxo.Value)
		pkScript = pIn.WitnessUtxo.PkScript

		if pIn.NonWitnessUtxo != nil {
			prevOut, err := nonWitnessOutput(
				pIn.NonWitnessUtxo, txIn.PreviousOutPoint,
			)
			if err != nil {
				return skip(err)
			}

			if prevOut.Value != pIn.WitnessUtxo.Value ||
				!bytes.Equal(prevOut.PkScript, pkScript) {

				return skip(fmt.Errorf("%w: witness utxo "+
					"differs", errUtxoMismatch))
			}
		}

	case pIn.NonWitnessUtxo != nil:
		prevOut, err := nonWitnessOutput(
			pIn.NonWitnessUtxo, txIn.PreviousOutPoint,
		)
		if err != nil {
			return skip(err)
		}

		rec.input.Amount = btcutil.Amount(prevOut.Value)
		rec.amountKnown = true
		rec.kind = kindLegacy

		if owned {
			return nil, &MalformedInputError{
				Index: i, Err: errLegacyInput,
			}
		}

		return rec, nil

	default:
		return skip(errMissingUtxo)
	}

	rec.amountKnown = true

	scriptCode, kind, err := witnessScriptCode(pIn, pkScript)
	if err != nil {
		return skip(err)
	}

	rec.kind = kind
	rec.scriptCode = scriptCode

	for _, entry := range table {
		if !bytes.Contains(scriptCode, entry.keyHash) &&
			!bytes.Contains(scriptCode, entry.pubKey) {

			continue
		}

		if entry.fingerprint != fingerprint {
			log.Tracef("Input %d: key %x belongs to fingerprint "+
				"%08x", i, entry.pubKey, entry.fingerprint)

			continue
		}

		rec.attempts = append(rec.attempts, signAttempt{
			path:   entry.path,
			pubKey: entry.pubKey,
		})
	}

	return rec, nil
}

// ownsDerivation returns true if any derivation carries fingerprint.
func ownsDerivation(derivations []*psbt.Bip32Derivation,
	fingerprint uint32) bool {

	for _, d := range derivations {
		if d.MasterKeyFingerprint == fingerprint {
			return true
		}
	}

	return false
}

// nonWitnessOutput returns the output of prevTx spent by outPoint after
// checking that prevTx is the transaction the outpoint refers to.
func nonWitnessOutput(prevTx *wire.MsgTx,
	outPoint wire.OutPoint) (*wire.TxOut, error) {

	if prevTx.TxHash() != outPoint.Hash {
		return nil, fmt.Errorf("%w: txid %v", errUtxoMismatch,
			outPoint.Hash)
	}
	if int(outPoint.Index) >= len(prevTx.TxOut) {
		return nil, fmt.Errorf("%w: index %d", errUtxoMismatch,
			outPoint.Index)
	}

	return prevTx.TxOut[outPoint.Index], nil
}

// witnessScriptCode derives the segwit v0 script code of an output script,
// resolving a P2SH wrapper through the input's redeem script and a script
// hash program through its witness script.
func witnessScriptCode(pIn *psbt.PInput, pkScript []byte) ([]byte,
	scriptKind, error) {

	program := pkScript
	nested := txscript.IsPayToScriptHash(pkScript)
	if nested {
		if len(pIn.RedeemScript) == 0 {
			return nil, kindUnknown, errMissingRedeemScript
		}

		scriptHash := pkScript[2:22]
		if !bytes.Equal(btcutil.Hash160(pIn.RedeemScript), scriptHash) {
			return nil, kindUnknown, errRedeemScriptMismatch
		}

		program = pIn.RedeemScript
	}

	switch {
	case txscript.IsPayToWitnessScriptHash(program):
		if len(pIn.WitnessScript) == 0 {
			return nil, kindUnknown, errMissingWitnessScript
		}

		if !bytes.Equal(chainhash.HashB(pIn.WitnessScript), program[2:]) {
			return nil, kindUnknown, errWitnessScriptMismatch
		}

		kind := kindP2WSH
		if nested {
			kind = kindNestedP2WSH
		}

		return append([]byte(nil), pIn.WitnessScript...), kind, nil

	case txscript.IsPayToWitnessPubKeyHash(program):
		kind := kindP2WPKH
		if nested {
			kind = kindNestedP2WPKH
		}

		return keyHashScriptCode(program[2:]), kind, nil

	default:
		return nil, kindUnknown, fmt.Errorf("%w: %x",
			errUnsupportedScript, pkScript)
	}
}

// keyHashScriptCode returns the P2PKH template signed for a witness v0 key
// hash program: OP_DUP OP_HASH160 <hash> OP_EQUALVERIFY OP_CHECKSIG.
func keyHashScriptCode(keyHash []byte) []byte {
	script := make([]byte, 0, 25)
	script = append(script, txscript.OP_DUP, txscript.OP_HASH160,
		txscript.OP_DATA_20)
	script = append(script, keyHash...)

	return append(script, txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG)
}
