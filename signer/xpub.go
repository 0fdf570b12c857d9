// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/hwsigner/keypath"
)

// serializedKeyLen is the length of a serialized extended key without its
// checksum.
const serializedKeyLen = 4 + 1 + 4 + 4 + 32 + 33

var (
	// errPathTooDeep is returned when a path cannot be encoded in the one
	// byte depth field.
	errPathTooDeep = errors.New("derivation path too deep")

	// errInvalidChainCode is returned when the device returns a chain code
	// of the wrong size.
	errInvalidChainCode = errors.New("invalid chain code")
)

// ExtendedKey is a BIP32 extended public key assembled from device replies.
type ExtendedKey struct {
	// Version is the network specific version tag.
	Version [4]byte

	// Depth is the number of derivation steps from the master key.
	Depth uint8

	// ParentFingerprint is the fingerprint of the parent key, zero for
	// the master key.
	ParentFingerprint [4]byte

	// ChildNumber is the index of the key within its parent, with the
	// high bit set for hardened children.
	ChildNumber uint32

	// ChainCode is the chain code of the key.
	ChainCode [32]byte

	// PublicKey is the public key.
	PublicKey *btcec.PublicKey
}

// newExtendedKey assembles an extended key for path.
func newExtendedKey(params *chaincfg.Params, path keypath.Path,
	pubKey *btcec.PublicKey, chainCode []byte,
	parentFP [4]byte) (*ExtendedKey, error) {

	if path.Depth() > math.MaxUint8 {
		return nil, fmt.Errorf("%w: %d", errPathTooDeep, path.Depth())
	}
	if len(chainCode) != len(ExtendedKey{}.ChainCode) {
		return nil, fmt.Errorf("%w: %d bytes", errInvalidChainCode,
			len(chainCode))
	}

	key := &ExtendedKey{
		Version:           params.HDPublicKeyID,
		Depth:             uint8(path.Depth()),
		ParentFingerprint: parentFP,
		ChildNumber:       path.ChildNumber(),
		PublicKey:         pubKey,
	}
	copy(key.ChainCode[:], chainCode)

	return key, nil
}

// payload returns the 78 byte serialization the checksum commits to.
func (k *ExtendedKey) payload() []byte {
	b := make([]byte, 0, serializedKeyLen)
	b = append(b, k.Version[:]...)
	b = append(b, k.Depth)
	b = append(b, k.ParentFingerprint[:]...)
	b = binary.BigEndian.AppendUint32(b, k.ChildNumber)
	b = append(b, k.ChainCode[:]...)
	b = append(b, k.PublicKey.SerializeCompressed()...)

	return b
}

// Checksum returns the first four bytes of the double SHA256 of the
// serialized key.
func (k *ExtendedKey) Checksum() [4]byte {
	var sum [4]byte
	copy(sum[:], chainhash.DoubleHashB(k.payload()))

	return sum
}

// HDKey converts the key into its hdkeychain form.
func (k *ExtendedKey) HDKey() *hdkeychain.ExtendedKey {
	return hdkeychain.NewExtendedKey(
		k.Version[:], k.PublicKey.SerializeCompressed(), k.ChainCode[:],
		k.ParentFingerprint[:], k.Depth, k.ChildNumber, false,
	)
}

// String returns the Base58Check encoding of the key.
func (k *ExtendedKey) String() string {
	return k.HDKey().String()
}
