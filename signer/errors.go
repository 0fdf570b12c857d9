// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOperation is returned for operations this device class
	// does not support. No device I/O is attempted.
	ErrUnsupportedOperation = errors.New(
		"operation not supported on this device class",
	)

	// ErrMalformedInput is the class of errors returned when a PSBT input
	// lacks the data needed to classify it.
	ErrMalformedInput = errors.New("malformed psbt input")

	// ErrInvalidConfig is returned when the signer configuration is
	// incomplete.
	ErrInvalidConfig = errors.New("invalid signer config")

	// ErrNilPacket is returned when no PSBT packet is given.
	ErrNilPacket = errors.New("nil psbt packet")

	// ErrInsufficientInputs is returned when the outputs spend more than
	// the inputs provide.
	ErrInsufficientInputs = errors.New("outputs exceed inputs")

	// errMissingUtxo is returned when an input carries neither a witness
	// nor a non-witness UTXO.
	errMissingUtxo = errors.New("missing utxo information")

	// errUtxoMismatch is returned when the non-witness UTXO does not match
	// the outpoint or the witness UTXO.
	errUtxoMismatch = errors.New("utxo does not match outpoint")

	// errMissingRedeemScript is returned for a P2SH output without a
	// matching redeem script.
	errMissingRedeemScript = errors.New("missing redeem script")

	// errRedeemScriptMismatch is returned when the redeem script does not
	// hash to the P2SH output.
	errRedeemScriptMismatch = errors.New("redeem script hash mismatch")

	// errMissingWitnessScript is returned for a P2WSH program without a
	// witness script.
	errMissingWitnessScript = errors.New("missing witness script")

	// errWitnessScriptMismatch is returned when the witness script does not
	// hash to the P2WSH program.
	errWitnessScriptMismatch = errors.New("witness script hash mismatch")

	// errUnsupportedScript is returned for outputs that are not segwit v0.
	errUnsupportedScript = errors.New("unsupported script type")

	// errLegacyInput is returned when an owned input can only be spent
	// with a legacy signature.
	errLegacyInput = errors.New("legacy input signing not supported")
)

// MalformedInputError reports an input the core could not classify. It
// matches ErrMalformedInput with errors.Is.
type MalformedInputError struct {
	// Index is the position of the input in the transaction.
	Index int

	// Err describes what is missing or inconsistent.
	Err error
}

// Error implements the error interface.
func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("input %d: %v", e.Index, e.Err)
}

// Unwrap returns both the error class and the cause.
func (e *MalformedInputError) Unwrap() []error {
	return []error{ErrMalformedInput, e.Err}
}
