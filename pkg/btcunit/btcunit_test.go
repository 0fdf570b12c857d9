// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package btcunit

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestVByte checks the virtual size unit.
func TestVByte(t *testing.T) {
	t.Parallel()

	vb := NewVByte(250)
	require.Equal(t, uint64(250), vb.Uint64())
	require.Equal(t, uint64(1000), vb.wu)
	require.Equal(t, "250 vb", vb.String())

	// Partial virtual bytes are rounded up.
	require.Equal(t, uint64(251), VByte{wu: 1001}.Uint64())
}

// TestSatPerVByte checks fee rate construction, formatting and fee
// calculation.
func TestSatPerVByte(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		fee    btcutil.Amount
		size   VByte
		str    string
		feeFor btcutil.Amount
	}{
		{
			name:   "whole rate",
			fee:    1410,
			size:   NewVByte(141),
			str:    "10.000 sat/vb",
			feeFor: 1000,
		},
		{
			name:   "fractional rate",
			fee:    11,
			size:   NewVByte(100),
			str:    "0.110 sat/vb",
			feeFor: 11,
		},
		{
			name:   "zero size",
			fee:    500,
			size:   NewVByte(0),
			str:    "0.000 sat/vb",
			feeFor: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Act: Derive the rate from the fee and size.
			rate := CalcSatPerVByte(tc.fee, tc.size)

			// Assert: The rate prints and prices 100 vb as expected.
			require.Equal(t, tc.str, rate.String())
			require.Equal(t, tc.feeFor, rate.FeeForVByte(NewVByte(100)))
		})
	}
}

// TestSatPerVByteCompare checks the comparison helpers.
func TestSatPerVByteCompare(t *testing.T) {
	t.Parallel()

	low := NewSatPerVByte(1)
	high := CalcSatPerVByte(1000, NewVByte(250))

	require.True(t, low.LessThan(high))
	require.False(t, high.LessThan(low))
	require.True(t, high.Equal(NewSatPerVByte(4)))
}
