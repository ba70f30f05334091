package clearinghouse

import (
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
)

// Fixed point precisions used by the clearing house program.
const (
	MarkPricePrecision      = 10_000_000_000
	AMMReservePrecision     = 10_000_000_000_000
	BaseAssetPrecision      = AMMReservePrecision
	QuotePrecision          = 1_000_000
	PegPrecision            = 1_000
	FundingPaymentPrecision = 10_000
	MarginPrecision         = 10_000

	PriceToPegPrecisionRatio = MarkPricePrecision / PegPrecision
	AMMToQuotePrecisionRatio = AMMReservePrecision / QuotePrecision
)

var (
	two64      = new(big.Int).Lsh(big.NewInt(1), 64)
	two128     = new(big.Int).Lsh(big.NewInt(1), 128)
	maxUint128 = new(big.Int).Sub(two128, big.NewInt(1))
	maxInt128  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	uint64Mask = new(big.Int).Sub(two64, big.NewInt(1))
)

// MaxUint128 returns a fresh copy of 2^128-1.
func MaxUint128() *big.Int {
	return new(big.Int).Set(maxUint128)
}

func U128(v uint64) bin.Uint128 {
	return bin.Uint128{Lo: v, Endianness: bin.LE}
}

func I128(v int64) bin.Int128 {
	hi := uint64(0)
	if v < 0 {
		hi = ^uint64(0)
	}
	return bin.Int128{Lo: uint64(v), Hi: hi, Endianness: bin.LE}
}

func U128ToBig(v bin.Uint128) *big.Int {
	out := new(big.Int).SetUint64(v.Hi)
	out.Lsh(out, 64)
	return out.Or(out, new(big.Int).SetUint64(v.Lo))
}

// I128ToBig interprets the two halves as a two's complement 128-bit value.
func I128ToBig(v bin.Int128) *big.Int {
	out := new(big.Int).SetInt64(int64(v.Hi))
	out.Lsh(out, 64)
	return out.Add(out, new(big.Int).SetUint64(v.Lo))
}

func BigToU128(v *big.Int) (bin.Uint128, error) {
	if v.Sign() < 0 || v.Cmp(maxUint128) > 0 {
		return bin.Uint128{}, fmt.Errorf("value %s out of u128 range", v)
	}
	lo := new(big.Int).And(v, uint64Mask).Uint64()
	hi := new(big.Int).Rsh(v, 64).Uint64()
	return bin.Uint128{Lo: lo, Hi: hi, Endianness: bin.LE}, nil
}

func BigToI128(v *big.Int) (bin.Int128, error) {
	if v.Cmp(minInt128) < 0 || v.Cmp(maxInt128) > 0 {
		return bin.Int128{}, fmt.Errorf("value %s out of i128 range", v)
	}
	unsigned := new(big.Int).Set(v)
	if unsigned.Sign() < 0 {
		unsigned.Add(unsigned, two128)
	}
	lo := new(big.Int).And(unsigned, uint64Mask).Uint64()
	hi := new(big.Int).Rsh(unsigned, 64).Uint64()
	return bin.Int128{Lo: lo, Hi: hi, Endianness: bin.LE}, nil
}
