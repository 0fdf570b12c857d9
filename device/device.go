// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package device defines the contract between the signing core and a
// connected Ledger-class hardware signer. The transport (USB/HID framing and
// raw command APDUs) lives behind the Device interface.
package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hwsigner/keypath"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrProtocolState is returned when a device step is requested out of
	// the PRE -> FINALIZE -> SIGN order, or after a failed step left the
	// device in an inconsistent state.
	ErrProtocolState = errors.New("device protocol step out of order")

	// ErrMalformedReply is returned when the device answers with data that
	// cannot be decoded.
	ErrMalformedReply = errors.New("malformed device reply")
)

// Error wraps a failure reported by the device or its transport for a given
// operation. It is never retried by the core.
type Error struct {
	// Op is the device operation that failed.
	Op string

	// Err is the underlying transport or firmware error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped as a device Error for op. A nil err stays nil and
// an err that already is a device Error is returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	var devErr *Error
	if errors.As(err, &devErr) {
		return err
	}

	return &Error{Op: op, Err: err}
}

// Input is one transaction input as the device consumes it while hashing a
// segwit transaction.
type Input struct {
	// PrevOut is the outpoint being spent.
	PrevOut wire.OutPoint

	// Amount is the value of the output being spent.
	Amount btcutil.Amount

	// Sequence is the input's sequence number.
	Sequence uint32
}

// Value returns the device encoding of the input: the serialized outpoint
// followed by the amount as a little-endian uint64.
func (i Input) Value() []byte {
	var b bytes.Buffer
	b.Grow(chainhash.HashSize + 4 + 8)

	b.Write(i.PrevOut.Hash[:])

	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:4], i.PrevOut.Index)
	b.Write(scratch[:4])

	binary.LittleEndian.PutUint64(scratch[:], uint64(i.Amount))
	b.Write(scratch[:])

	return b.Bytes()
}

// Device is an exclusively owned handle to a connected signer. Every call
// blocks until the device answers. Implementations are not expected to be
// safe for concurrent use and the core never shares one between requests.
type Device interface {
	// PublicKey returns the public key and chain code at path. If display
	// is set the device shows the corresponding address to the user.
	PublicKey(path keypath.Path, display bool) (*btcec.PublicKey, []byte,
		error)

	// StartUntrustedTransaction feeds the device the transaction inputs.
	// It is called once per input with a blank script code to prime the
	// transaction hash state, then once per signature with the single
	// input being signed and its real script code.
	StartUntrustedTransaction(first bool, index int, inputs []Input,
		scriptCode []byte, version int32) error

	// FinalizeInput hands over the change path, if any, and the witness
	// serialized transaction. The returned output data is opaque.
	FinalizeInput(changePath fn.Option[keypath.Path],
		rawTx []byte) ([]byte, error)

	// SignHash signs the input most recently submitted with
	// StartUntrustedTransaction. The reply is a DER signature followed by
	// the sighash byte.
	SignHash(path keypath.Path, passphrase string, lockTime uint32,
		hashType txscript.SigHashType) ([]byte, error)

	// PrepareMessage hands the device a message to sign with the key at
	// path.
	PrepareMessage(path keypath.Path, message []byte) error

	// SignMessage signs the prepared message and returns a DER signature
	// whose first byte carries the parity of R in its low bit.
	SignMessage() ([]byte, error)
}
