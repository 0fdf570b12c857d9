// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/hwsigner/device"
	"github.com/btcsuite/hwsigner/pkg/btcunit"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// knownInput returns a record of kind with a known amount.
func knownInput(kind scriptKind, amount btcutil.Amount) *inputRecord {
	return &inputRecord{
		kind:        kind,
		input:       device.Input{Amount: amount},
		amountKnown: true,
	}
}

// TestSummarize checks the value flow and size estimate of a transaction.
func TestSummarize(t *testing.T) {
	t.Parallel()

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(150000, make([]byte, 22)))
	tx.AddTxOut(wire.NewTxOut(40000, make([]byte, 23)))

	records := []*inputRecord{
		knownInput(kindP2WPKH, 100000),
		knownInput(kindNestedP2WPKH, 60000),
		knownInput(kindLegacy, 40000),
	}

	summary, err := summarize(tx, records)
	require.NoError(t, err)

	require.Equal(t, fn.Some(btcutil.Amount(200000)), summary.TotalIn)
	require.EqualValues(t, 190000, summary.TotalOut)
	require.Equal(t, fn.Some(btcutil.Amount(10000)), summary.Fee)
	require.Empty(t, summary.DustOutputs)
	require.False(t, summary.BelowRelayFee)

	vsize := btcunit.NewVByte(uint64(
		txsizes.EstimateVirtualSize(1, 0, 1, 1, tx.TxOut, 0),
	))
	require.Equal(t, vsize, summary.EstimatedSize.UnwrapOr(
		btcunit.VByte{},
	))
	require.True(t, summary.FeeRate.UnwrapOr(btcunit.SatPerVByte{}).
		Equal(btcunit.CalcSatPerVByte(10000, vsize)))
	require.Contains(t, summary.String(), "fee=0.00010000 BTC")
}

// TestSummarizeUnknownSize checks that script inputs leave the size open.
func TestSummarizeUnknownSize(t *testing.T) {
	t.Parallel()

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(1000, make([]byte, 22)))

	summary, err := summarize(tx, []*inputRecord{
		knownInput(kindP2WSH, 2000),
	})
	require.NoError(t, err)

	require.Equal(t, fn.Some(btcutil.Amount(1000)), summary.Fee)
	require.True(t, summary.EstimatedSize.IsNone())
	require.True(t, summary.FeeRate.IsNone())
	require.Contains(t, summary.String(), "size=unknown")
}

// TestSummarizeUnknownAmount checks that an input without usable UTXO data
// leaves the totals open instead of failing.
func TestSummarizeUnknownAmount(t *testing.T) {
	t.Parallel()

	// Arrange: The outputs exceed the one known input amount.
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(3000, make([]byte, 22)))

	records := []*inputRecord{
		knownInput(kindP2WPKH, 2000),
		{kind: kindUnknown},
	}

	// Act: Summarize the transaction.
	summary, err := summarize(tx, records)

	// Assert: No error, and the totals are unknown.
	require.NoError(t, err)
	require.True(t, summary.TotalIn.IsNone())
	require.True(t, summary.Fee.IsNone())
	require.True(t, summary.FeeRate.IsNone())
	require.EqualValues(t, 3000, summary.TotalOut)
	require.Contains(t, summary.String(), "in=unknown")
	require.Contains(t, summary.String(), "fee=unknown")
}

// TestSummarizeInsufficientInputs checks that overspending is refused.
func TestSummarizeInsufficientInputs(t *testing.T) {
	t.Parallel()

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(3000, make([]byte, 22)))

	_, err := summarize(tx, []*inputRecord{
		knownInput(kindP2WPKH, 2000),
	})
	require.ErrorIs(t, err, ErrInsufficientInputs)
}

// TestSummarizeRelayPolicy checks the dust and minimum relay fee flags.
func TestSummarizeRelayPolicy(t *testing.T) {
	t.Parallel()

	// Arrange: A dust output and a fee of a single satoshi.
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(50000, make([]byte, 22)))
	tx.AddTxOut(wire.NewTxOut(100, make([]byte, 22)))

	// Act: Summarize the transaction.
	summary, err := summarize(tx, []*inputRecord{
		knownInput(kindP2WPKH, 50101),
	})

	// Assert: The dust output is listed and the fee is too low to relay.
	require.NoError(t, err)
	require.Equal(t, []int{1}, summary.DustOutputs)
	require.True(t, summary.BelowRelayFee)
}
