package clearinghouse_test

import (
	"math/big"
	"testing"

	"github.com/coldbell/dex/liquidator/internal/clearinghouse"
	"github.com/coldbell/dex/liquidator/internal/testutil"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestClassifyIsExclusive(t *testing.T) {
	user := clearinghouse.User{
		Authority:  testutil.Key("authority"),
		Collateral: testutil.Quote(1_000),
		Positions:  testutil.Key("positions"),
	}
	orders := clearinghouse.UserOrders{User: testutil.Key("user")}
	var markets clearinghouse.Markets
	markets.Markets[0] = testutil.Market(testutil.Key("oracle"), 100)
	state := clearinghouse.State{Markets: testutil.Key("markets")}
	orderState := clearinghouse.OrderState{OrderHistory: testutil.Key("order-history")}
	positions := clearinghouse.UserPositions{User: testutil.Key("user")}

	cases := []struct {
		name string
		data []byte
		want clearinghouse.AccountKind
	}{
		{"user", testutil.Encode(t, clearinghouse.Account_User, user), clearinghouse.KindUser},
		{"orders", testutil.Encode(t, clearinghouse.Account_UserOrders, orders), clearinghouse.KindUserOrders},
		{"markets", testutil.Encode(t, clearinghouse.Account_Markets, markets), clearinghouse.KindMarkets},
		{"state", testutil.Encode(t, clearinghouse.Account_State, state), clearinghouse.KindState},
		{"order state", testutil.Encode(t, clearinghouse.Account_OrderState, orderState), clearinghouse.KindOrderState},
		{"positions", testutil.Encode(t, clearinghouse.Account_UserPositions, positions), clearinghouse.KindUnrecognized},
		{"empty", nil, clearinghouse.KindUnrecognized},
		{"garbage", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, clearinghouse.KindUnrecognized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first := clearinghouse.Classify(tc.data)
			require.Equal(t, tc.want, first.Kind)
			require.Equal(t, tc.want, clearinghouse.Classify(tc.data).Kind)

			set := 0
			for _, present := range []bool{first.User != nil, first.UserOrders != nil, first.Markets != nil, first.State != nil, first.OrderState != nil} {
				if present {
					set++
				}
			}
			if tc.want == clearinghouse.KindUnrecognized {
				require.Zero(t, set)
			} else {
				require.Equal(t, 1, set)
			}
		})
	}
}

func TestClassifyRejectsTruncatedAndPaddedAccounts(t *testing.T) {
	data := testutil.Encode(t, clearinghouse.Account_User, clearinghouse.User{Authority: testutil.Key("a")})

	require.Equal(t, clearinghouse.KindUnrecognized, clearinghouse.Classify(data[:len(data)-1]).Kind)
	require.Equal(t, clearinghouse.KindUnrecognized, clearinghouse.Classify(append(append([]byte{}, data...), 0)).Kind)
}

func TestParseUserPreservesFields(t *testing.T) {
	want := clearinghouse.User{
		Authority:          testutil.Key("authority"),
		Collateral:         testutil.Quote(2_500),
		CumulativeDeposits: clearinghouse.I128(-42),
		Positions:          testutil.Key("positions"),
	}

	got, err := clearinghouse.ParseAccount_User(testutil.Encode(t, clearinghouse.Account_User, want))
	require.NoError(t, err)
	require.Equal(t, want.Authority, got.Authority)
	require.Equal(t, want.Positions, got.Positions)
	require.Equal(t, "2500000000", clearinghouse.U128ToBig(got.Collateral).String())
	require.Equal(t, "-42", clearinghouse.I128ToBig(got.CumulativeDeposits).String())

	_, err = clearinghouse.ParseAccount_Markets(testutil.Encode(t, clearinghouse.Account_User, want))
	require.ErrorIs(t, err, clearinghouse.ErrDiscriminatorMismatch)
}

func TestFundingPaymentHistoryAppendWraps(t *testing.T) {
	history := clearinghouse.FundingPaymentHistory{Head: clearinghouse.FundingPaymentHistorySize - 1}

	history.Append(clearinghouse.FundingPaymentRecord{MarketIndex: 7})
	history.Append(clearinghouse.FundingPaymentRecord{MarketIndex: 8})

	require.Equal(t, uint64(clearinghouse.FundingPaymentHistorySize+1), history.Head)
	require.Equal(t, uint64(7), history.Records[clearinghouse.FundingPaymentHistorySize-1].MarketIndex)
	require.Equal(t, uint64(8), history.Records[0].MarketIndex)
}

func TestInt128Conversions(t *testing.T) {
	values := []*big.Int{
		big.NewInt(0),
		big.NewInt(-1),
		big.NewInt(-123_456_789),
		new(big.Int).Lsh(big.NewInt(1), 100),
		new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 100)),
	}
	for _, v := range values {
		encoded, err := clearinghouse.BigToI128(v)
		require.NoError(t, err)
		require.Zero(t, v.Cmp(clearinghouse.I128ToBig(encoded)), v.String())
	}

	_, err := clearinghouse.BigToU128(big.NewInt(-1))
	require.Error(t, err)
	_, err = clearinghouse.BigToI128(new(big.Int).Lsh(big.NewInt(1), 127))
	require.Error(t, err)

	require.Equal(t, 0, clearinghouse.I128ToBig(clearinghouse.I128(-5)).Cmp(big.NewInt(-5)))
}

func TestParseOraclePrice(t *testing.T) {
	price, err := clearinghouse.ParseOraclePrice(testutil.PriceUpdate(t, 6_512_345_678, -8, 1_000_001, 900))
	require.NoError(t, err)

	// 65.12345678 and 0.01000001 at 1e10 precision
	require.Equal(t, "651234567800", price.Price.String())
	require.Equal(t, "100000100", price.Confidence.String())

	coarse, err := clearinghouse.ParseOraclePrice(testutil.PriceUpdate(t, 500, -12, 1, 1))
	require.NoError(t, err)
	require.Equal(t, "5", coarse.Price.String())
	require.Equal(t, "1", coarse.Confidence.String(), "confidence rounds up")

	_, err = clearinghouse.ParseOraclePrice(testutil.PriceUpdate(t, 5, -12, 0, 1))
	require.ErrorIs(t, err, clearinghouse.ErrInvalidOracle)
	require.Equal(t, uint64(900), price.PostedSlot)

	_, err = clearinghouse.ParseOraclePrice(testutil.PriceUpdate(t, -1, -8, 0, 1))
	require.ErrorIs(t, err, clearinghouse.ErrInvalidOracle)

	partial := testutil.PriceUpdate(t, 100, 0, 0, 1)
	partial[8+32] = 0
	_, err = clearinghouse.ParseOraclePrice(partial)
	require.ErrorIs(t, err, clearinghouse.ErrInvalidOracle)

	_, err = clearinghouse.ParseOraclePrice([]byte{1, 2, 3})
	require.ErrorIs(t, err, clearinghouse.ErrInvalidOracle)
}

func TestNewLiquidateInstruction(t *testing.T) {
	programID := testutil.Key("program")
	liquidator := testutil.Key("liquidator")
	oracles := []solana.PublicKey{testutil.Key("oracle-0"), testutil.Key("oracle-3")}

	ix := clearinghouse.NewLiquidateInstruction(programID, clearinghouse.LiquidateAccounts{
		State:          testutil.Key("state"),
		Liquidator:     liquidator,
		LiquidatorUser: testutil.Key("liquidator-user"),
		User:           testutil.Key("user"),
		Markets:        testutil.Key("markets"),
		UserPositions:  testutil.Key("positions"),
		Oracles:        oracles,
	})

	require.Equal(t, programID, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{0xdf, 0xb3, 0xe2, 0x7d, 0x30, 0x2e, 0x27, 0x4a}, data)

	metas := ix.Accounts()
	require.Len(t, metas, 14+len(oracles))
	require.Equal(t, liquidator, metas[1].PublicKey)
	require.True(t, metas[1].IsSigner)
	require.False(t, metas[1].IsWritable)
	require.Equal(t, solana.TokenProgramID, metas[8].PublicKey)
	require.Equal(t, testutil.Key("positions"), metas[10].PublicKey)
	for i, oracle := range oracles {
		meta := metas[14+i]
		require.Equal(t, oracle, meta.PublicKey)
		require.False(t, meta.IsWritable)
		require.False(t, meta.IsSigner)
	}
}

func TestNewFillOrderInstruction(t *testing.T) {
	ix, err := clearinghouse.NewFillOrderInstruction(testutil.Key("program"), clearinghouse.U128(77), clearinghouse.FillOrderAccounts{
		Authority: testutil.Key("liquidator"),
		Oracle:    testutil.Key("oracle"),
	})
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+16)
	require.Equal(t, clearinghouse.Instruction_FillOrder[:], data[:8])
	require.Equal(t, byte(77), data[8])

	metas := ix.Accounts()
	require.Len(t, metas, 14)
	require.True(t, metas[2].IsSigner)
	require.Equal(t, testutil.Key("oracle"), metas[13].PublicKey)
}
