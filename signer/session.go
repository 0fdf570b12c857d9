// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hwsigner/device"
	"github.com/btcsuite/hwsigner/keypath"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// sigHashType is the only sighash type requested from the device.
	sigHashType = txscript.SigHashAll

	// derSequenceTag is the leading byte of a DER signature. The device
	// reports the parity of R in its low bit.
	derSequenceTag = 0x30
)

// sessionState is the position of a signing session in the device protocol.
type sessionState uint8

const (
	// stateIdle means nothing was sent to the device yet.
	stateIdle sessionState = iota

	// statePreprocessed means every input was hashed with a blank script
	// code.
	statePreprocessed

	// stateFinalized means the change path and transaction were handed
	// over and the device accepts signing requests.
	stateFinalized

	// stateSigning means at least one signature was requested.
	stateSigning

	// stateDone means every signature was collected.
	stateDone

	// stateFailed means a device step failed and the device must be
	// reset before it can be used again.
	stateFailed
)

// String returns the string representation of a sessionState.
func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"

	case statePreprocessed:
		return "preprocessed"

	case stateFinalized:
		return "finalized"

	case stateSigning:
		return "signing"

	case stateDone:
		return "done"

	case stateFailed:
		return "failed"

	default:
		return "unknown session state"
	}
}

// signSession drives one transaction through the device protocol. It must
// be used by a single goroutine.
type signSession struct {
	dev      device.Device
	version  int32
	lockTime uint32
	inputs   []device.Input
	state    sessionState
}

// newSignSession creates a session for tx, hashing inputs in order.
func newSignSession(dev device.Device, tx *wire.MsgTx,
	inputs []device.Input) *signSession {

	return &signSession{
		dev:      dev,
		version:  tx.Version,
		lockTime: tx.LockTime,
		inputs:   inputs,
		state:    stateIdle,
	}
}

// expect returns ErrProtocolState if the session is in none of the wanted
// states.
func (s *signSession) expect(step string, want ...sessionState) error {
	for _, w := range want {
		if s.state == w {
			return nil
		}
	}

	return fmt.Errorf("%w: %s not allowed in state %v",
		device.ErrProtocolState, step, s.state)
}

// fail moves the session to the failed state and wraps err as a device
// error for op.
func (s *signSession) fail(op string, err error) error {
	s.state = stateFailed

	return device.Wrap(op, err)
}

// preprocess hashes every input, ours or not, with a blank script code.
func (s *signSession) preprocess() error {
	if err := s.expect("preprocess", stateIdle); err != nil {
		return err
	}

	for i := range s.inputs {
		err := s.dev.StartUntrustedTransaction(
			i == 0, i, s.inputs, nil, s.version,
		)
		if err != nil {
			return s.fail("start untrusted transaction", err)
		}
	}

	s.state = statePreprocessed

	return nil
}

// finalize hands the device the change path and the serialized transaction.
func (s *signSession) finalize(changePath fn.Option[keypath.Path],
	rawTx []byte) error {

	if err := s.expect("finalize", statePreprocessed); err != nil {
		return err
	}

	outputData, err := s.dev.FinalizeInput(changePath, rawTx)
	if err != nil {
		return s.fail("finalize input", err)
	}

	log.Tracef("Device accepted transaction, output data %x", outputData)

	s.state = stateFinalized

	return nil
}

// sign resubmits the input of rec with its script code and requests a
// signature for attempt. The returned signature is DER encoded followed by
// the sighash byte.
func (s *signSession) sign(rec *inputRecord,
	attempt signAttempt) ([]byte, error) {

	err := s.expect("sign", stateFinalized, stateSigning)
	if err != nil {
		return nil, err
	}
	s.state = stateSigning

	err = s.dev.StartUntrustedTransaction(
		false, 0, []device.Input{rec.input}, rec.scriptCode, s.version,
	)
	if err != nil {
		return nil, s.fail("start untrusted transaction", err)
	}

	reply, err := s.dev.SignHash(attempt.path, "", s.lockTime, sigHashType)
	if err != nil {
		return nil, s.fail("sign hash", err)
	}

	sig, err := normalizeSignature(reply)
	if err != nil {
		return nil, s.fail("sign hash", err)
	}

	return sig, nil
}

// finish marks the session complete. A session with no owned inputs goes
// straight from finalized to done.
func (s *signSession) finish() error {
	err := s.expect("finish", stateFinalized, stateSigning)
	if err != nil {
		return err
	}

	s.state = stateDone

	return nil
}

// normalizeSignature clears the parity bit the device sets in the DER tag
// and checks the reply is a DER signature followed by the sighash byte.
func normalizeSignature(reply []byte) ([]byte, error) {
	if len(reply) < 2 || reply[0]&^0x01 != derSequenceTag {
		return nil, fmt.Errorf("%w: signature %x",
			device.ErrMalformedReply, reply)
	}

	sig := append([]byte(nil), reply...)
	sig[0] = derSequenceTag

	if txscript.SigHashType(sig[len(sig)-1]) != sigHashType {
		return nil, fmt.Errorf("%w: sighash byte %x",
			device.ErrMalformedReply, sig[len(sig)-1])
	}

	if _, err := ecdsa.ParseDERSignature(sig[:len(sig)-1]); err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrMalformedReply, err)
	}

	return sig, nil
}
