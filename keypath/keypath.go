// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package keypath implements BIP32 derivation paths as they are exchanged
// with hardware signing devices and recorded in PSBT key-path metadata.
package keypath

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// HardenedKeyStart is the index at which a hardened child starts.
	HardenedKeyStart = hdkeychain.HardenedKeyStart

	// changeBranch is the conventional internal branch index of a BIP44
	// style account.
	changeBranch = 1
)

var (
	// ErrInvalidPath is returned when a derivation path string cannot be
	// parsed.
	ErrInvalidPath = errors.New("invalid derivation path")
)

// Path is an ordered sequence of BIP32 child indices relative to the master
// key. Hardened indices have the high bit set. The empty path is the master
// key itself.
type Path []uint32

// Parse parses a textual derivation path. The leading "m" is optional and
// hardened components may be marked with ', h or H. Both "" and "m" denote
// the root.
func Parse(s string) (Path, error) {
	s = strings.TrimSpace(s)

	switch {
	case s == "" || s == "m" || s == "M":
		return Path{}, nil

	case strings.HasPrefix(s, "m/") || strings.HasPrefix(s, "M/"):
		s = s[2:]
	}

	parts := strings.Split(s, "/")
	path := make(Path, 0, len(parts))
	for _, part := range parts {
		hardened := false
		if n := len(part); n > 0 {
			switch part[n-1] {
			case '\'', 'h', 'H':
				hardened = true
				part = part[:n-1]
			}
		}

		if part == "" {
			return nil, fmt.Errorf("%w: empty component in %q",
				ErrInvalidPath, s)
		}

		idx, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPath,
				part, err)
		}
		if idx >= HardenedKeyStart {
			return nil, fmt.Errorf("%w: index %d out of range",
				ErrInvalidPath, idx)
		}

		child := uint32(idx)
		if hardened {
			child += HardenedKeyStart
		}
		path = append(path, child)
	}

	return path, nil
}

// MustParse is like Parse but panics on error. It is intended for constants
// and tests.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return p
}

// IsRoot returns true if the path denotes the master key.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Depth returns the number of components in the path.
func (p Path) Depth() int {
	return len(p)
}

// Parent returns the path of the direct parent. The parent of the root is the
// root.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return Path{}
	}

	return p[:len(p)-1:len(p)-1]
}

// ChildNumber returns the last index of the path, or zero for the root.
func (p Path) ChildNumber() uint32 {
	if p.IsRoot() {
		return 0
	}

	return p[len(p)-1]
}

// IsChange reports whether the path follows the internal branch convention
// .../1/k. The branch may be the first component, as in 1/2.
func (p Path) IsChange() bool {
	return len(p) >= 2 && p[len(p)-2] == changeBranch
}

// Equal returns true if both paths hold the same components.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}

	return true
}

// DeviceString renders the path without the leading "m/", which is the form
// the device firmware expects. The root renders as the empty string.
func (p Path) DeviceString() string {
	var b strings.Builder
	for i, child := range p {
		if i > 0 {
			b.WriteByte('/')
		}

		if child >= HardenedKeyStart {
			b.WriteString(strconv.FormatUint(
				uint64(child-HardenedKeyStart), 10,
			))
			b.WriteByte('\'')

			continue
		}

		b.WriteString(strconv.FormatUint(uint64(child), 10))
	}

	return b.String()
}

// String renders the path in the conventional m/a'/b/c form.
func (p Path) String() string {
	if p.IsRoot() {
		return "m"
	}

	return "m/" + p.DeviceString()
}

// FingerprintBytes returns the first four bytes of HASH160 of the compressed
// public key.
func FingerprintBytes(pubKey *btcec.PublicKey) [4]byte {
	var fp [4]byte
	copy(fp[:], btcutil.Hash160(pubKey.SerializeCompressed()))

	return fp
}

// Fingerprint returns the key fingerprint in the integer form used by the
// PSBT MasterKeyFingerprint field, which stores the four bytes little-endian.
func Fingerprint(pubKey *btcec.PublicKey) uint32 {
	fp := FingerprintBytes(pubKey)

	return binary.LittleEndian.Uint32(fp[:])
}
