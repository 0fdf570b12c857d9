// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"fmt"

	"github.com/btcsuite/hwsigner/device"
)

const (
	// scalarSize is the size of the r and s components of a compact
	// signature.
	scalarSize = 32

	// compactSigSize is the size of a compact recoverable signature.
	compactSigSize = 1 + 2*scalarSize

	// compactHeaderBase is the header of a compact signature made with a
	// compressed key, before the recovery parity is added.
	compactHeaderBase = 27 + 4

	// derIntegerTag precedes each integer of a DER signature.
	derIntegerTag = 0x02
)

// compactFromDevice converts the DER-like message signature reply of the
// device into the 65 byte compact recoverable form: header, r and s.
func compactFromDevice(reply []byte) ([]byte, error) {
	malformed := func(reason string) error {
		return fmt.Errorf("%w: message signature %s",
			device.ErrMalformedReply, reason)
	}

	if len(reply) < 6 || reply[0]&^0x01 != derSequenceTag {
		return nil, malformed("header")
	}
	if reply[2] != derIntegerTag {
		return nil, malformed("r tag")
	}

	rLen := int(reply[3])
	rEnd := 4 + rLen
	if rEnd+2 > len(reply) || reply[rEnd] != derIntegerTag {
		return nil, malformed("s tag")
	}

	sLen := int(reply[rEnd+1])
	sEnd := rEnd + 2 + sLen
	if sEnd > len(reply) {
		return nil, malformed("s length")
	}

	r, err := scalarBytes(reply[4:rEnd])
	if err != nil {
		return nil, malformed("r: " + err.Error())
	}
	s, err := scalarBytes(reply[rEnd+2 : sEnd])
	if err != nil {
		return nil, malformed("s: " + err.Error())
	}

	sig := make([]byte, compactSigSize)
	sig[0] = compactHeaderBase + reply[0]&0x01
	copy(sig[1+scalarSize-len(r):1+scalarSize], r)
	copy(sig[compactSigSize-len(s):], s)

	return sig, nil
}

// scalarBytes strips the zero byte DER adds in front of integers with the
// high bit set.
func scalarBytes(b []byte) ([]byte, error) {
	if len(b) == scalarSize+1 && b[0] == 0x00 {
		b = b[1:]
	}

	if len(b) == 0 || len(b) > scalarSize {
		return nil, fmt.Errorf("invalid length %d", len(b))
	}

	return b, nil
}
