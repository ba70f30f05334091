// Package testutil builds encoded clearing house accounts for tests.
package testutil

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/coldbell/dex/liquidator/internal/clearinghouse"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// Key derives a stable address from a label.
func Key(label string) solana.PublicKey {
	return solana.PublicKey(sha256.Sum256([]byte(label)))
}

func Encode(t testing.TB, disc [8]byte, account bin.BinaryMarshaler) []byte {
	t.Helper()
	data, err := clearinghouse.EncodeAccount(disc, account)
	require.NoError(t, err)
	return data
}

// Base converts whole units into base asset precision.
func Base(units int64) bin.Int128 {
	return clearinghouse.I128(units * clearinghouse.BaseAssetPrecision)
}

// BaseU converts whole units into unsigned base asset precision.
func BaseU(units uint64) bin.Uint128 {
	return clearinghouse.U128(units * clearinghouse.BaseAssetPrecision)
}

func Quote(units uint64) bin.Uint128 {
	return clearinghouse.U128(units * clearinghouse.QuotePrecision)
}

// Market returns an initialized market whose AMM marks at price (whole
// quote units per base unit) with deep reserves.
func Market(oracle solana.PublicKey, price uint64) clearinghouse.Market {
	const reserve = 1_000_000 * clearinghouse.AMMReservePrecision
	quoteReserve := clearinghouse.U128(reserve)
	baseReserve := clearinghouse.U128(reserve)
	return clearinghouse.Market{
		Initialized: true,
		Amm: clearinghouse.AMM{
			Oracle:                    oracle,
			BaseAssetReserve:          baseReserve,
			QuoteAssetReserve:         quoteReserve,
			SqrtK:                     clearinghouse.U128(reserve),
			PegMultiplier:             clearinghouse.U128(price * clearinghouse.PegPrecision),
			MinimumBaseAssetTradeSize: BaseU(1),
		},
		MarginRatioInitial:     2000,
		MarginRatioPartial:     625,
		MarginRatioMaintenance: 500,
	}
}

// PriceUpdate encodes a fully verified PriceUpdateV2 payload.
func PriceUpdate(t testing.TB, price int64, exponent int32, conf uint64, postedSlot uint64) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(clearinghouse.PriceUpdateV2Discriminator[:])
	enc := bin.NewBorshEncoder(&buf)
	authority := Key("pyth-write-authority")
	feed := Key("pyth-feed")
	require.NoError(t, enc.WriteBytes(authority[:], false))
	require.NoError(t, enc.WriteUint8(1))
	require.NoError(t, enc.WriteBytes(feed[:], false))
	require.NoError(t, enc.WriteInt64(price, bin.LE))
	require.NoError(t, enc.WriteUint64(conf, bin.LE))
	require.NoError(t, enc.WriteUint32(uint32(exponent), bin.LE))
	require.NoError(t, enc.WriteInt64(1_700_000_000, bin.LE))
	require.NoError(t, enc.WriteInt64(1_699_999_999, bin.LE))
	require.NoError(t, enc.WriteInt64(price, bin.LE))
	require.NoError(t, enc.WriteUint64(conf, bin.LE))
	require.NoError(t, enc.WriteUint64(postedSlot, bin.LE))
	return buf.Bytes()
}
