// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hwsigner/device"
	"github.com/btcsuite/hwsigner/device/emulator"
	"github.com/btcsuite/hwsigner/keypath"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	// testSeed is the seed of BIP32 test vector 1.
	testSeed, _ = hex.DecodeString("000102030405060708090a0b0c0d0e0f")

	// foreignFingerprint belongs to no key of the test seed.
	foreignFingerprint = uint32(0xdeadbeef)
)

// A compile-time assertion to ensure mockDevice meets the device.Device
// interface.
var _ device.Device = (*mockDevice)(nil)

// mockDevice is a mock implementation of the device.Device interface.
type mockDevice struct {
	mock.Mock
}

func (m *mockDevice) PublicKey(path keypath.Path, display bool) (
	*btcec.PublicKey, []byte, error) {

	args := m.Called(path, display)

	pubKey, _ := args.Get(0).(*btcec.PublicKey)
	chainCode, _ := args.Get(1).([]byte)

	return pubKey, chainCode, args.Error(2)
}

func (m *mockDevice) StartUntrustedTransaction(first bool, index int,
	inputs []device.Input, scriptCode []byte, version int32) error {

	args := m.Called(first, index, inputs, scriptCode, version)
	return args.Error(0)
}

func (m *mockDevice) FinalizeInput(changePath fn.Option[keypath.Path],
	rawTx []byte) ([]byte, error) {

	args := m.Called(changePath, rawTx)

	data, _ := args.Get(0).([]byte)

	return data, args.Error(1)
}

func (m *mockDevice) SignHash(path keypath.Path, passphrase string,
	lockTime uint32, hashType txscript.SigHashType) ([]byte, error) {

	args := m.Called(path, passphrase, lockTime, hashType)

	sig, _ := args.Get(0).([]byte)

	return sig, args.Error(1)
}

func (m *mockDevice) PrepareMessage(path keypath.Path, message []byte) error {
	args := m.Called(path, message)
	return args.Error(0)
}

func (m *mockDevice) SignMessage() ([]byte, error) {
	args := m.Called()

	sig, _ := args.Get(0).([]byte)

	return sig, args.Error(1)
}

// newMockSigner creates a Signer backed by a mock device whose expectations
// are asserted when the test ends.
func newMockSigner(t *testing.T) (*Signer, *mockDevice) {
	t.Helper()

	dev := &mockDevice{}
	t.Cleanup(func() {
		dev.AssertExpectations(t)
	})

	s, err := New(Config{Device: dev})
	require.NoError(t, err)

	return s, dev
}

// opKind names a device call as seen by recordingDevice.
type opKind string

const (
	opPublicKey opKind = "pubkey"
	opPre       opKind = "pre"
	opFinalize  opKind = "finalize"
	opSelect    opKind = "select"
	opSign      opKind = "sign"
)

// recordingDevice wraps a device and records the protocol calls passing
// through it.
type recordingDevice struct {
	device.Device

	ops        []opKind
	changePath fn.Option[keypath.Path]
}

func (r *recordingDevice) PublicKey(path keypath.Path, display bool) (
	*btcec.PublicKey, []byte, error) {

	r.ops = append(r.ops, opPublicKey)
	return r.Device.PublicKey(path, display)
}

func (r *recordingDevice) StartUntrustedTransaction(first bool, index int,
	inputs []device.Input, scriptCode []byte, version int32) error {

	if len(scriptCode) == 0 {
		r.ops = append(r.ops, opPre)
	} else {
		r.ops = append(r.ops, opSelect)
	}

	return r.Device.StartUntrustedTransaction(
		first, index, inputs, scriptCode, version,
	)
}

func (r *recordingDevice) FinalizeInput(changePath fn.Option[keypath.Path],
	rawTx []byte) ([]byte, error) {

	r.ops = append(r.ops, opFinalize)
	r.changePath = changePath

	return r.Device.FinalizeInput(changePath, rawTx)
}

func (r *recordingDevice) SignHash(path keypath.Path, passphrase string,
	lockTime uint32, hashType txscript.SigHashType) ([]byte, error) {

	r.ops = append(r.ops, opSign)
	return r.Device.SignHash(path, passphrase, lockTime, hashType)
}

// count returns how often op was recorded.
func (r *recordingDevice) count(op opKind) int {
	n := 0
	for _, o := range r.ops {
		if o == op {
			n++
		}
	}

	return n
}

// testHarness bundles an emulated device and a Signer driving it.
type testHarness struct {
	emu         *emulator.Emulator
	dev         *recordingDevice
	signer      *Signer
	fingerprint uint32
}

// newTestHarness creates a Signer on top of an emulator seeded with the
// BIP32 test vector 1 seed.
func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	emu, err := emulator.New(testSeed, &chaincfg.MainNetParams)
	require.NoError(t, err)

	dev := &recordingDevice{Device: emu}
	s, err := New(Config{Device: dev})
	require.NoError(t, err)

	master, _, err := emu.PublicKey(keypath.Path{}, false)
	require.NoError(t, err)

	return &testHarness{
		emu:         emu,
		dev:         dev,
		signer:      s,
		fingerprint: keypath.Fingerprint(master),
	}
}

// pubKey returns the serialized public key at path.
func (h *testHarness) pubKey(t *testing.T, path keypath.Path) []byte {
	t.Helper()

	pubKey, _, err := h.emu.PublicKey(path, false)
	require.NoError(t, err)

	return pubKey.SerializeCompressed()
}

// derivation returns the key-path entry of the key at path.
func (h *testHarness) derivation(t *testing.T,
	path keypath.Path) *psbt.Bip32Derivation {

	t.Helper()

	return &psbt.Bip32Derivation{
		PubKey:               h.pubKey(t, path),
		MasterKeyFingerprint: h.fingerprint,
		Bip32Path:            path,
	}
}

// p2wpkhScript returns the P2WPKH output script paying to pubKey.
func p2wpkhScript(t *testing.T, pubKey []byte) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pubKey)).
		Script()
	require.NoError(t, err)

	return script
}

// p2shScript returns the P2SH output script committing to redeemScript.
func p2shScript(t *testing.T, redeemScript []byte) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL).
		Script()
	require.NoError(t, err)

	return script
}

// p2wshScript returns the P2WSH output script committing to witnessScript.
func p2wshScript(t *testing.T, witnessScript []byte) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(chainhash.HashB(witnessScript)).
		Script()
	require.NoError(t, err)

	return script
}

// singleSigScript returns a 1-of-1 multisig script for pubKey.
func singleSigScript(t *testing.T, pubKey []byte) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).
		AddData(pubKey).
		AddOp(txscript.OP_1).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	require.NoError(t, err)

	return script
}

// testOutPoint returns a distinct outpoint for input i.
func testOutPoint(i int) wire.OutPoint {
	hash := chainhash.DoubleHashH([]byte{byte(i), 0xaa})
	return *wire.NewOutPoint(&hash, uint32(i))
}

// newTestPacket creates a version 2 packet spending numInputs outpoints to
// outputs, with locktime 600000.
func newTestPacket(t *testing.T, numInputs int,
	outputs ...*wire.TxOut) *psbt.Packet {

	t.Helper()

	outPoints := make([]*wire.OutPoint, 0, numInputs)
	sequences := make([]uint32, 0, numInputs)
	for i := range numInputs {
		op := testOutPoint(i)
		outPoints = append(outPoints, &op)
		sequences = append(sequences, wire.MaxTxInSequenceNum-2)
	}

	packet, err := psbt.New(outPoints, outputs, 2, 600000, sequences)
	require.NoError(t, err)

	return packet
}

// partialSig returns the signature of pubKey on input idx.
func partialSig(t *testing.T, packet *psbt.Packet, idx int,
	pubKey []byte) []byte {

	t.Helper()

	var sigs [][]byte
	for _, ps := range packet.Inputs[idx].PartialSigs {
		if string(ps.PubKey) == string(pubKey) {
			sigs = append(sigs, ps.Signature)
		}
	}
	require.Len(t, sigs, 1)

	return sigs[0]
}

// prevOutFetcher returns the fetcher for the witness UTXOs of packet.
func prevOutFetcher(packet *psbt.Packet) *txscript.MultiPrevOutFetcher {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, txIn := range packet.UnsignedTx.TxIn {
		fetcher.AddPrevOut(
			txIn.PreviousOutPoint, packet.Inputs[i].WitnessUtxo,
		)
	}

	return fetcher
}

// requireValidSig checks the signature of pubKey on input idx against the
// segwit v0 digest for scriptCode.
func requireValidSig(t *testing.T, packet *psbt.Packet, idx int,
	scriptCode, pubKey []byte) {

	t.Helper()

	tx := packet.UnsignedTx
	sigHashes := txscript.NewTxSigHashes(tx, prevOutFetcher(packet))
	digest, err := txscript.CalcWitnessSigHash(
		scriptCode, sigHashes, txscript.SigHashAll, tx, idx,
		packet.Inputs[idx].WitnessUtxo.Value,
	)
	require.NoError(t, err)

	sig := partialSig(t, packet, idx, pubKey)
	require.Equal(t, byte(txscript.SigHashAll), sig[len(sig)-1])

	parsedSig, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	require.NoError(t, err)

	parsedKey, err := btcec.ParsePubKey(pubKey)
	require.NoError(t, err)

	require.True(t, parsedSig.Verify(digest, parsedKey))
}

// requireScriptValid finalizes input idx and runs the script engine over
// the extracted witness.
func requireScriptValid(t *testing.T, packet *psbt.Packet, idx int) {
	t.Helper()

	fetcher := prevOutFetcher(packet)
	utxo := packet.Inputs[idx].WitnessUtxo

	ok, err := psbt.MaybeFinalize(packet, idx)
	require.NoError(t, err)
	require.True(t, ok)

	tx := packet.UnsignedTx.Copy()
	tx.TxIn[idx].Witness = nil
	tx.TxIn[idx].SignatureScript = packet.Inputs[idx].FinalScriptSig
	if len(packet.Inputs[idx].FinalScriptWitness) > 0 {
		witness, err := readWitness(
			packet.Inputs[idx].FinalScriptWitness,
		)
		require.NoError(t, err)
		tx.TxIn[idx].Witness = witness
	}

	vm, err := txscript.NewEngine(
		utxo.PkScript, tx, idx, txscript.StandardVerifyFlags, nil,
		txscript.NewTxSigHashes(tx, fetcher), utxo.Value, fetcher,
	)
	require.NoError(t, err)
	require.NoError(t, vm.Execute())
}

// readWitness decodes a serialized witness stack.
func readWitness(b []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(b)

	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}

	witness := make(wire.TxWitness, 0, n)
	for range n {
		item, err := wire.ReadVarBytes(
			r, 0, txscript.MaxScriptSize, "witness item",
		)
		if err != nil {
			return nil, err
		}

		witness = append(witness, item)
	}

	return witness, nil
}
