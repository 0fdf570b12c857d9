// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package signer implements the signing core of a hardware wallet
// integration: it derives extended public keys, signs PSBTs through the
// device's untrusted transaction protocol and produces message signatures.
package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/hwsigner/device"
	"github.com/btcsuite/hwsigner/keypath"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Signer drives one exclusively owned device. It is not safe for concurrent
// use.
type Signer struct {
	cfg Config

	// fingerprint caches the fingerprint of the key at
	// cfg.FingerprintPath.
	fingerprint fn.Option[uint32]
}

// New creates a Signer from cfg.
func New(cfg Config) (*Signer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Signer{cfg: cfg}, nil
}

// MasterFingerprint returns the fingerprint identifying the device's keys in
// PSBT key-path metadata, as read little-endian from the key hash. It is
// queried from the device once.
func (s *Signer) MasterFingerprint(ctx context.Context) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if s.fingerprint.IsSome() {
		return s.fingerprint.UnwrapOr(0), nil
	}

	pubKey, _, err := s.cfg.Device.PublicKey(s.cfg.FingerprintPath, false)
	if err != nil {
		return 0, device.Wrap("get public key", err)
	}

	fp := keypath.Fingerprint(pubKey)
	s.fingerprint = fn.Some(fp)

	fpBytes := keypath.FingerprintBytes(pubKey)
	log.Debugf("Device fingerprint %x at %v", fpBytes[:],
		s.cfg.FingerprintPath)

	return fp, nil
}

// ExtendedPublicKey returns the extended public key at path.
func (s *Signer) ExtendedPublicKey(ctx context.Context,
	path keypath.Path) (*ExtendedKey, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pubKey, chainCode, err := s.cfg.Device.PublicKey(path, false)
	if err != nil {
		return nil, device.Wrap("get public key", err)
	}

	var parentFP [4]byte
	if !path.IsRoot() {
		parentKey, _, err := s.cfg.Device.PublicKey(path.Parent(), false)
		if err != nil {
			return nil, device.Wrap("get public key", err)
		}

		parentFP = keypath.FingerprintBytes(parentKey)
	}

	return newExtendedKey(
		s.cfg.ChainParams, path, pubKey, chainCode, parentFP,
	)
}

// DerivePublicKey returns the Base58Check encoded extended public key at
// path.
func (s *Signer) DerivePublicKey(ctx context.Context,
	path keypath.Path) (string, error) {

	key, err := s.ExtendedPublicKey(ctx, path)
	if err != nil {
		return "", err
	}

	return key.String(), nil
}

// SignTransaction signs every input of packet that spends a key of the
// device and adds the signatures to the packet. Signatures are only added
// once the device produced all of them. A failed run leaves the device in
// an unknown protocol state, and it must be reset before the next attempt.
func (s *Signer) SignTransaction(ctx context.Context,
	packet *psbt.Packet) (*SignPsbtResult, error) {

	if packet == nil || packet.UnsignedTx == nil {
		return nil, ErrNilPacket
	}

	fingerprint, err := s.MasterFingerprint(ctx)
	if err != nil {
		return nil, err
	}

	table := newKeyTable(packet)
	records, err := classifyInputs(packet, table, fingerprint)
	if err != nil {
		return nil, err
	}

	tx := packet.UnsignedTx
	summary, err := summarize(tx, records)
	if err != nil {
		return nil, err
	}
	log.Infof("Signing transaction %v: %v", tx.TxHash(), summary)

	change := detectChange(tx.TxOut, table, fingerprint)
	change.WhenSome(func(path keypath.Path) {
		log.Debugf("Change output at %v", path)
	})

	log.Tracef("Input records: %v", newLogClosure(func() string {
		return spew.Sdump(records)
	}))

	var rawTx bytes.Buffer
	if err := tx.Serialize(&rawTx); err != nil {
		return nil, fmt.Errorf("serialize tx: %w", err)
	}

	inputs := make([]device.Input, 0, len(records))
	for _, rec := range records {
		inputs = append(inputs, rec.input)
	}

	session := newSignSession(s.cfg.Device, tx, inputs)
	if err := session.preprocess(); err != nil {
		return nil, err
	}
	if err := session.finalize(change, rawTx.Bytes()); err != nil {
		return nil, err
	}

	var sigs []inputSignature
	for _, rec := range records {
		for _, attempt := range rec.attempts {
			sig, err := session.sign(rec, attempt)
			if err != nil {
				return nil, fmt.Errorf("input %d: %w", rec.index,
					err)
			}

			sigs = append(sigs, inputSignature{
				index:     rec.index,
				pubKey:    attempt.pubKey,
				signature: sig,
			})
		}
	}

	if err := session.finish(); err != nil {
		return nil, err
	}

	signed := mergeSignatures(packet, sigs)
	log.Infof("Signed %d of %d inputs", len(signed), len(records))

	return &SignPsbtResult{
		Packet:       packet,
		SignedInputs: signed,
		Summary:      summary,
	}, nil
}

// SignMessage signs message with the key at path using the Bitcoin signed
// message scheme and returns the base64 encoded compact signature. The
// device shows the address of the key to the user.
func (s *Signer) SignMessage(ctx context.Context, message []byte,
	path keypath.Path) (string, error) {

	if err := ctx.Err(); err != nil {
		return "", err
	}

	pubKey, _, err := s.cfg.Device.PublicKey(path, true)
	if err != nil {
		return "", device.Wrap("get public key", err)
	}

	if err := s.cfg.Device.PrepareMessage(path, message); err != nil {
		return "", device.Wrap("prepare message", err)
	}

	reply, err := s.cfg.Device.SignMessage()
	if err != nil {
		return "", device.Wrap("sign message", err)
	}

	sig, err := compactFromDevice(reply)
	if err != nil {
		return "", err
	}

	recovered, _, err := ecdsa.RecoverCompact(
		sig, device.MessageDigest(message),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", device.ErrMalformedReply, err)
	}
	if !recovered.IsEqual(pubKey) {
		return "", fmt.Errorf("%w: signature does not match key at %v",
			device.ErrMalformedReply, path)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// Setup always fails: devices of this class are initialized on the device
// itself.
func (s *Signer) Setup() error {
	return fmt.Errorf("%w: setup", ErrUnsupportedOperation)
}

// Wipe always fails: devices of this class are reset on the device itself.
func (s *Signer) Wipe() error {
	return fmt.Errorf("%w: wipe", ErrUnsupportedOperation)
}
