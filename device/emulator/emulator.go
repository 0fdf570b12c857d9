// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package emulator provides an in-process software implementation of the
// Ledger-class device protocol. It holds an HD master key, enforces the
// device's PRE -> FINALIZE -> SIGN ordering and produces replies in the same
// encoding the firmware uses.
package emulator

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hwsigner/device"
	"github.com/btcsuite/hwsigner/keypath"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrUnsupportedHashType is returned when a signature with a sighash
	// type other than SIGHASH_ALL is requested.
	ErrUnsupportedHashType = errors.New("unsupported sighash type")

	// ErrPassphrase is returned when an on-device passphrase is supplied.
	ErrPassphrase = errors.New("on-device passphrase not supported")

	// ErrChangeNotFound is returned when the announced change path does
	// not pay to any output of the finalized transaction.
	ErrChangeNotFound = errors.New("change path matches no output")

	// ErrInputMismatch is returned when the transaction handed over at
	// finalization does not spend the inputs hashed before.
	ErrInputMismatch = errors.New("transaction inputs do not match")
)

// txState tracks where the emulated device is in the transaction protocol.
type txState uint8

const (
	// txStateIdle means no transaction is being hashed.
	txStateIdle txState = iota

	// txStateHashing means the PRE pass is feeding inputs.
	txStateHashing

	// txStateFinalized means the outputs are known and inputs can be
	// signed one at a time.
	txStateFinalized
)

// String returns the string representation of a txState.
func (s txState) String() string {
	switch s {
	case txStateIdle:
		return "idle"

	case txStateHashing:
		return "hashing"

	case txStateFinalized:
		return "finalized"

	default:
		return "unknown tx state"
	}
}

// pendingInput is the single input submitted for the next SignHash call.
type pendingInput struct {
	input      device.Input
	scriptCode []byte
}

// pendingMessage is the message submitted for the next SignMessage call.
type pendingMessage struct {
	path    keypath.Path
	message []byte
}

// Emulator is a software device. Like real hardware it must be used by one
// caller at a time.
type Emulator struct {
	master *hdkeychain.ExtendedKey
	params *chaincfg.Params

	state     txState
	version   int32
	inputs    []device.Input
	nextInput int

	hashPrevouts chainhash.Hash
	hashSequence chainhash.Hash
	hashOutputs  chainhash.Hash

	pending *pendingInput
	message *pendingMessage
}

// A compile-time assertion to ensure Emulator meets the device.Device
// interface.
var _ device.Device = (*Emulator)(nil)

// New creates an emulated device whose master key is derived from seed.
func New(seed []byte, params *chaincfg.Params) (*Emulator, error) {
	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("unable to create master key: %w", err)
	}

	return &Emulator{
		master: master,
		params: params,
	}, nil
}

// derive walks path from the master key.
func (e *Emulator) derive(path keypath.Path) (*hdkeychain.ExtendedKey,
	error) {

	key := e.master
	for _, child := range path {
		var err error
		key, err = key.Derive(child)
		if err != nil {
			return nil, fmt.Errorf("derive %v: %w", path, err)
		}
	}

	return key, nil
}

// PublicKey returns the public key and chain code at path.
func (e *Emulator) PublicKey(path keypath.Path, display bool) (
	*btcec.PublicKey, []byte, error) {

	key, err := e.derive(path)
	if err != nil {
		return nil, nil, err
	}

	pubKey, err := key.ECPubKey()
	if err != nil {
		return nil, nil, err
	}

	if display {
		addr, err := btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(pubKey.SerializeCompressed()), e.params,
		)
		if err != nil {
			return nil, nil, err
		}

		log.Infof("Displaying address %v for path %v", addr, path)
	}

	return pubKey, key.ChainCode(), nil
}

// StartUntrustedTransaction implements the input hashing step of the
// protocol. With first set it starts a new transaction; before finalization
// each call feeds the next input, after finalization a single input with its
// script code selects what the next SignHash signs.
func (e *Emulator) StartUntrustedTransaction(first bool, index int,
	inputs []device.Input, scriptCode []byte, version int32) error {

	switch {
	case first:
		return e.startTransaction(index, inputs, scriptCode, version)

	case e.state == txStateHashing:
		if index != e.nextInput || len(inputs) != len(e.inputs) {
			return fmt.Errorf("%w: expected input %d of %d, got "+
				"%d of %d", device.ErrProtocolState,
				e.nextInput, len(e.inputs), index, len(inputs))
		}
		if len(scriptCode) != 0 {
			return fmt.Errorf("%w: script code during "+
				"preprocessing", device.ErrProtocolState)
		}

		e.nextInput++
		log.Tracef("Hashed input %d/%d", e.nextInput, len(e.inputs))

		return nil

	case e.state == txStateFinalized:
		return e.selectInput(index, inputs, scriptCode, version)

	default:
		return fmt.Errorf("%w: no transaction started",
			device.ErrProtocolState)
	}
}

// startTransaction resets the hashing state for a new transaction.
func (e *Emulator) startTransaction(index int, inputs []device.Input,
	scriptCode []byte, version int32) error {

	e.reset()

	if index != 0 || len(inputs) == 0 || len(scriptCode) != 0 {
		return fmt.Errorf("%w: invalid first input", device.ErrProtocolState)
	}

	var prevouts, sequences bytes.Buffer
	for _, in := range inputs {
		writeOutPoint(&prevouts, &in.PrevOut)
		sequences.Write(binary.LittleEndian.AppendUint32(
			nil, in.Sequence,
		))
	}

	e.hashPrevouts = chainhash.DoubleHashH(prevouts.Bytes())
	e.hashSequence = chainhash.DoubleHashH(sequences.Bytes())
	e.inputs = append([]device.Input(nil), inputs...)
	e.version = version
	e.nextInput = 1
	e.state = txStateHashing

	log.Debugf("Started transaction v%d with %d inputs", version,
		len(inputs))

	return nil
}

// selectInput records the input to be signed next.
func (e *Emulator) selectInput(index int, inputs []device.Input,
	scriptCode []byte, version int32) error {

	if index != 0 || len(inputs) != 1 || version != e.version {
		return fmt.Errorf("%w: expected single input resubmission",
			device.ErrProtocolState)
	}
	if len(scriptCode) == 0 {
		return fmt.Errorf("%w: missing script code",
			device.ErrProtocolState)
	}

	in := inputs[0]
	known := false
	for _, hashed := range e.inputs {
		if hashed == in {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: input %v was not hashed",
			device.ErrProtocolState, in.PrevOut)
	}

	e.pending = &pendingInput{
		input:      in,
		scriptCode: append([]byte(nil), scriptCode...),
	}

	return nil
}

// FinalizeInput consumes the serialized transaction, commits to its outputs
// and arms the device for signing.
func (e *Emulator) FinalizeInput(changePath fn.Option[keypath.Path],
	rawTx []byte) ([]byte, error) {

	if e.state != txStateHashing || e.nextInput != len(e.inputs) {
		return nil, fmt.Errorf("%w: finalize before all inputs hashed",
			device.ErrProtocolState)
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, fmt.Errorf("unable to decode transaction: %w", err)
	}

	if len(tx.TxIn) != len(e.inputs) {
		return nil, ErrInputMismatch
	}
	for i, txIn := range tx.TxIn {
		if txIn.PreviousOutPoint != e.inputs[i].PrevOut ||
			txIn.Sequence != e.inputs[i].Sequence {

			return nil, fmt.Errorf("%w: input %d", ErrInputMismatch,
				i)
		}
	}

	changeIdx := -1
	if changePath.IsSome() {
		idx, err := e.findChange(changePath.UnsafeFromSome(), tx.TxOut)
		if err != nil {
			return nil, err
		}
		changeIdx = idx
	}

	var outputs bytes.Buffer
	for _, out := range tx.TxOut {
		if err := wire.WriteTxOut(&outputs, 0, 0, out); err != nil {
			return nil, err
		}
	}
	e.hashOutputs = chainhash.DoubleHashH(outputs.Bytes())
	e.state = txStateFinalized

	log.Debugf("Finalized transaction with %d outputs, change output=%d",
		len(tx.TxOut), changeIdx)

	var reply bytes.Buffer
	if err := wire.WriteVarInt(
		&reply, 0, uint64(len(tx.TxOut)),
	); err != nil {
		return nil, err
	}
	reply.Write(outputs.Bytes())

	return reply.Bytes(), nil
}

// findChange returns the index of the output paying to the key at path,
// either as P2WPKH or nested in P2SH.
func (e *Emulator) findChange(path keypath.Path,
	outputs []*wire.TxOut) (int, error) {

	pubKey, _, err := e.PublicKey(path, false)
	if err != nil {
		return -1, err
	}

	keyHash := btcutil.Hash160(pubKey.SerializeCompressed())
	witnessProgram := append([]byte{txscript.OP_0, txscript.OP_DATA_20},
		keyHash...)
	scriptHash := btcutil.Hash160(witnessProgram)

	for i, out := range outputs {
		if bytes.Contains(out.PkScript, keyHash) ||
			bytes.Contains(out.PkScript, scriptHash) {

			return i, nil
		}
	}

	return -1, fmt.Errorf("%w: %v", ErrChangeNotFound, path)
}

// SignHash signs the BIP143 digest of the selected input.
func (e *Emulator) SignHash(path keypath.Path, passphrase string,
	lockTime uint32, hashType txscript.SigHashType) ([]byte, error) {

	if e.state != txStateFinalized || e.pending == nil {
		return nil, fmt.Errorf("%w: no input selected for signing",
			device.ErrProtocolState)
	}
	if hashType != txscript.SigHashAll {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedHashType,
			hashType)
	}
	if passphrase != "" {
		return nil, ErrPassphrase
	}

	pending := e.pending
	e.pending = nil

	digest, err := e.witnessDigest(pending, lockTime, hashType)
	if err != nil {
		return nil, err
	}

	sig, err := e.sign(path, digest)
	if err != nil {
		return nil, err
	}

	log.Debugf("Signed input %v with key %v", pending.input.PrevOut, path)

	return append(sig, byte(hashType)), nil
}

// witnessDigest computes the segwit v0 signature digest from the state the
// protocol delivered.
func (e *Emulator) witnessDigest(p *pendingInput, lockTime uint32,
	hashType txscript.SigHashType) ([]byte, error) {

	var preimage bytes.Buffer
	le := binary.LittleEndian

	preimage.Write(le.AppendUint32(nil, uint32(e.version)))
	preimage.Write(e.hashPrevouts[:])
	preimage.Write(e.hashSequence[:])
	writeOutPoint(&preimage, &p.input.PrevOut)

	if err := wire.WriteVarBytes(&preimage, 0, p.scriptCode); err != nil {
		return nil, err
	}

	preimage.Write(le.AppendUint64(nil, uint64(p.input.Amount)))
	preimage.Write(le.AppendUint32(nil, p.input.Sequence))
	preimage.Write(e.hashOutputs[:])
	preimage.Write(le.AppendUint32(nil, lockTime))
	preimage.Write(le.AppendUint32(nil, uint32(hashType)))

	return chainhash.DoubleHashB(preimage.Bytes()), nil
}

// PrepareMessage stores a message to be signed with the key at path.
func (e *Emulator) PrepareMessage(path keypath.Path, message []byte) error {
	if _, err := e.derive(path); err != nil {
		return err
	}

	e.message = &pendingMessage{
		path:    path,
		message: append([]byte(nil), message...),
	}

	return nil
}

// SignMessage signs the prepared message.
func (e *Emulator) SignMessage() ([]byte, error) {
	if e.message == nil {
		return nil, fmt.Errorf("%w: no message prepared",
			device.ErrProtocolState)
	}

	msg := e.message
	e.message = nil

	return e.sign(msg.path, device.MessageDigest(msg.message))
}

// writeOutPoint serializes an outpoint as it appears in a transaction.
func writeOutPoint(b *bytes.Buffer, op *wire.OutPoint) {
	b.Write(op.Hash[:])
	b.Write(binary.LittleEndian.AppendUint32(nil, op.Index))
}

// reset drops any transaction state.
func (e *Emulator) reset() {
	e.state = txStateIdle
	e.inputs = nil
	e.nextInput = 0
	e.pending = nil
}
