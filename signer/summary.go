// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package signer

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/btcsuite/hwsigner/pkg/btcunit"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// TxSummary describes the value flow of a transaction about to be signed.
type TxSummary struct {
	// TotalIn is the sum of all input amounts. It is absent when an input
	// lacks usable UTXO data.
	TotalIn fn.Option[btcutil.Amount]

	// TotalOut is the sum of all output amounts.
	TotalOut btcutil.Amount

	// Fee is TotalIn minus TotalOut, absent with TotalIn.
	Fee fn.Option[btcutil.Amount]

	// EstimatedSize is the virtual size of the fully signed transaction.
	// It is absent when an input spends a script whose witness size
	// cannot be predicted.
	EstimatedSize fn.Option[btcunit.VByte]

	// FeeRate is Fee over EstimatedSize, absent with either.
	FeeRate fn.Option[btcunit.SatPerVByte]

	// DustOutputs lists the outputs a default relay policy rejects as
	// dust.
	DustOutputs []int

	// BelowRelayFee is set when Fee does not pay the default minimum
	// relay fee for EstimatedSize.
	BelowRelayFee bool
}

// String returns a one line description of the summary.
func (s *TxSummary) String() string {
	unknown := func(str string) string {
		if str == "" {
			return "unknown"
		}

		return str
	}

	in := fn.MapOptionZ(s.TotalIn, btcutil.Amount.String)
	fee := fn.MapOptionZ(s.Fee, btcutil.Amount.String)
	size := fn.MapOptionZ(s.EstimatedSize, btcunit.VByte.String)
	rate := fn.MapOptionZ(s.FeeRate, btcunit.SatPerVByte.String)

	return fmt.Sprintf("in=%s out=%v fee=%s size=%s rate=%s",
		unknown(in), s.TotalOut, unknown(fee), unknown(size),
		unknown(rate))
}

// summarize computes the summary of tx spending the classified inputs.
func summarize(tx *wire.MsgTx, records []*inputRecord) (*TxSummary, error) {
	summary := &TxSummary{}

	var (
		totalIn                        btcutil.Amount
		numP2PKH, numP2WPKH, numNested int
		amountsKnown                   = true
		estimable                      = true
	)
	for _, rec := range records {
		totalIn += rec.input.Amount
		if !rec.amountKnown {
			amountsKnown = false
		}

		switch rec.kind {
		case kindLegacy:
			numP2PKH++

		case kindP2WPKH:
			numP2WPKH++

		case kindNestedP2WPKH:
			numNested++

		default:
			estimable = false
		}
	}

	for i, out := range tx.TxOut {
		summary.TotalOut += btcutil.Amount(out.Value)

		if txrules.IsDustOutput(out, txrules.DefaultRelayFeePerKb) {
			log.Warnf("Output %d of %v is dust", i,
				btcutil.Amount(out.Value))

			summary.DustOutputs = append(summary.DustOutputs, i)
		}
	}

	if estimable {
		vsize := btcunit.NewVByte(uint64(txsizes.EstimateVirtualSize(
			numP2PKH, 0, numP2WPKH, numNested, tx.TxOut, 0,
		)))
		summary.EstimatedSize = fn.Some(vsize)
	}

	if !amountsKnown {
		log.Warn("Input amounts incomplete, fee unknown")

		return summary, nil
	}

	if summary.TotalOut > totalIn {
		return nil, fmt.Errorf("%w: in=%v out=%v", ErrInsufficientInputs,
			totalIn, summary.TotalOut)
	}

	fee := totalIn - summary.TotalOut
	summary.TotalIn = fn.Some(totalIn)
	summary.Fee = fn.Some(fee)

	summary.EstimatedSize.WhenSome(func(vsize btcunit.VByte) {
		summary.FeeRate = fn.Some(btcunit.CalcSatPerVByte(fee, vsize))

		minFee := txrules.FeeForSerializeSize(
			txrules.DefaultRelayFeePerKb, int(vsize.Uint64()),
		)
		if fee < minFee {
			log.Warnf("Fee %v is below the minimum relay fee %v",
				fee, minFee)

			summary.BelowRelayFee = true
		}
	})

	return summary, nil
}
