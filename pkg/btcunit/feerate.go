// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package btcunit

import (
	"math"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
)

const (
	// kilo is the multiplier of the canonical sat/kwu representation.
	kilo = 1000

	// floatStringPrecision keeps rates below 1 sat/vb from printing as
	// zero.
	floatStringPrecision = 3
)

// SatPerVByte is a fee rate in sat/vb. It is stored as an exact rational
// number of satoshis per kilo weight unit.
type SatPerVByte struct {
	satsPerKWU *big.Rat
}

// NewSatPerVByte creates a fee rate of rate sat/vb.
func NewSatPerVByte(rate btcutil.Amount) SatPerVByte {
	return CalcSatPerVByte(rate, NewVByte(1))
}

// CalcSatPerVByte returns the rate that pays fee for a transaction of size
// vb. A zero size yields a zero rate.
func CalcSatPerVByte(fee btcutil.Amount, vb VByte) SatPerVByte {
	if vb.wu == 0 {
		return SatPerVByte{satsPerKWU: big.NewRat(0, 1)}
	}

	return SatPerVByte{satsPerKWU: big.NewRat(
		int64(fee*kilo), safeUint64ToInt64(vb.wu),
	)}
}

// FeeForVByte returns the fee this rate pays for size vb, rounded down.
func (s SatPerVByte) FeeForVByte(vb VByte) btcutil.Amount {
	fee := new(big.Rat).Mul(
		s.satsPerKWU, big.NewRat(safeUint64ToInt64(vb.wu), kilo),
	)

	return btcutil.Amount(new(big.Int).Quo(fee.Num(), fee.Denom()).Int64())
}

// Equal returns true if both rates are the same.
func (s SatPerVByte) Equal(other SatPerVByte) bool {
	return s.satsPerKWU.Cmp(other.satsPerKWU) == 0
}

// LessThan returns true if the rate is below other.
func (s SatPerVByte) LessThan(other SatPerVByte) bool {
	return s.satsPerKWU.Cmp(other.satsPerKWU) < 0
}

// String returns the rate with three decimals followed by its unit.
func (s SatPerVByte) String() string {
	rate := new(big.Rat).Mul(
		s.satsPerKWU, big.NewRat(blockchain.WitnessScaleFactor, kilo),
	)

	return rate.FloatString(floatStringPrecision) + " sat/vb"
}

// safeUint64ToInt64 converts a uint64 to an int64, capping at math.MaxInt64.
func safeUint64ToInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(u)
}
