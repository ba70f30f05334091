package margin

import (
	"math/big"
	"testing"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
	"github.com/coldbell/dex/liquidator/internal/testutil"
	"github.com/stretchr/testify/require"
)

var oracleKey = testutil.Key("oracle-0")

func requireBig(t *testing.T, want, got *big.Int) {
	t.Helper()
	require.NotNil(t, got)
	require.Zero(t, want.Cmp(got), "want %s, got %s", want, got)
}

func baseUnits(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(ch.BaseAssetPrecision))
}

func quoteUnits(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(ch.QuotePrecision))
}

func marketsAt(price uint64) *ch.Markets {
	markets := new(ch.Markets)
	markets.Markets[0] = testutil.Market(oracleKey, price)
	return markets
}

func longPosition(units int64, entryQuote uint64) *ch.UserPositions {
	positions := &ch.UserPositions{User: testutil.Key("user")}
	positions.Positions[0] = ch.MarketPosition{
		MarketIndex:      0,
		BaseAssetAmount:  testutil.Base(units),
		QuoteAssetAmount: testutil.Quote(entryQuote),
	}
	return positions
}

func userWith(collateral uint64) *ch.User {
	return &ch.User{Authority: testutil.Key("authority"), Collateral: testutil.Quote(collateral)}
}

func TestMarkPrice(t *testing.T) {
	markets := marketsAt(100)

	price, err := MarkPrice(&markets.Markets[0].Amm)
	require.NoError(t, err)
	requireBig(t, big.NewInt(100*ch.MarkPricePrecision), price)

	_, err = MarkPrice(&ch.AMM{})
	require.ErrorIs(t, err, ErrInvalidAMM)
}

func TestSettleFundingPayment(t *testing.T) {
	markets := marketsAt(100)
	markets.Markets[0].Amm.CumulativeFundingRateLong = ch.I128(1_000)
	markets.Markets[0].Amm.CumulativeFundingRateShort = ch.I128(1_000)
	markets.Markets[0].Amm.LastFundingRateTs = 1_234

	t.Run("long pays positive funding", func(t *testing.T) {
		user := userWith(1_000)
		positions := longPosition(10, 1_000)
		var history ch.FundingPaymentHistory

		require.NoError(t, SettleFundingPayment(user, positions, markets, &history, 0))

		requireBig(t, quoteUnits(999), ch.U128ToBig(user.Collateral))
		require.Equal(t, uint64(1), history.Head)
		requireBig(t, quoteUnits(-1), ch.I128ToBig(history.Records[0].FundingPayment))
		requireBig(t, big.NewInt(1_000), ch.I128ToBig(positions.Positions[0].LastCumulativeFundingRate))
		require.Equal(t, int64(1_234), positions.Positions[0].LastFundingRateTs)

		require.NoError(t, SettleFundingPayment(user, positions, markets, &history, 0))
		require.Equal(t, uint64(1), history.Head, "already settled positions are skipped")
	})

	t.Run("short receives positive funding", func(t *testing.T) {
		user := userWith(1_000)
		positions := longPosition(-10, 1_000)
		var history ch.FundingPaymentHistory

		require.NoError(t, SettleFundingPayment(user, positions, markets, &history, 0))
		requireBig(t, quoteUnits(1_001), ch.U128ToBig(user.Collateral))
	})

	t.Run("collateral floors at zero", func(t *testing.T) {
		user := userWith(0)
		positions := longPosition(10, 1_000)
		var history ch.FundingPaymentHistory

		require.NoError(t, SettleFundingPayment(user, positions, markets, &history, 0))
		require.Zero(t, ch.U128ToBig(user.Collateral).Sign())
	})

	t.Run("uninitialized market fails", func(t *testing.T) {
		positions := longPosition(10, 1_000)
		positions.Positions[0].MarketIndex = 5
		var history ch.FundingPaymentHistory

		err := SettleFundingPayment(userWith(1), positions, markets, &history, 0)
		require.ErrorIs(t, err, ErrMarketNotInitialized)
	})
}

func TestCalculateLiquidationStatusAtMark(t *testing.T) {
	markets := marketsAt(100)

	cases := []struct {
		name       string
		collateral uint64
		wantType   LiquidationType
		wantRatio  int64
	}{
		{"below maintenance", 40, LiquidationFull, 400},
		{"below partial", 55, LiquidationPartial, 550},
		{"healthy", 100, LiquidationNone, 1_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, err := CalculateLiquidationStatus(userWith(tc.collateral), longPosition(10, 1_000), markets, nil, nil, 0)
			require.NoError(t, err)
			require.Equal(t, tc.wantType, status.Type)
			requireBig(t, big.NewInt(tc.wantRatio), status.MarginRatio)
			requireBig(t, quoteUnits(1_000), status.BaseAssetValue)
		})
	}

	t.Run("flat user has maximal ratio", func(t *testing.T) {
		status, err := CalculateLiquidationStatus(userWith(10), &ch.UserPositions{}, markets, nil, nil, 0)
		require.NoError(t, err)
		require.Equal(t, LiquidationNone, status.Type)
		requireBig(t, ch.MaxUint128(), status.MarginRatio)
	})

	t.Run("position in unknown market fails", func(t *testing.T) {
		positions := longPosition(10, 1_000)
		positions.Positions[0].MarketIndex = ch.MaxMarkets
		_, err := CalculateLiquidationStatus(userWith(10), positions, markets, nil, nil, 0)
		require.ErrorIs(t, err, ErrMarketOutOfRange)
	})
}

func TestCalculateLiquidationStatusOracleGuardRails(t *testing.T) {
	markets := marketsAt(100)
	rails := &ch.OracleGuardRails{
		PriceDivergence: ch.PriceDivergenceGuardRails{
			MarkOracleDivergenceNumerator:   ch.U128(1),
			MarkOracleDivergenceDenominator: ch.U128(10),
		},
		Validity:           ch.ValidityGuardRails{SlotsBeforeStale: 10},
		UseForLiquidations: true,
	}
	oracleAt := func(price int64, postedSlot uint64) []ch.OracleAccount {
		return []ch.OracleAccount{{Key: oracleKey, Data: testutil.PriceUpdate(t, price*100_000_000, -8, 0, postedSlot)}}
	}

	t.Run("divergent favorable oracle wins", func(t *testing.T) {
		status, err := CalculateLiquidationStatus(userWith(40), longPosition(10, 1_000), markets, oracleAt(120, 100), rails, 105)
		require.NoError(t, err)
		require.True(t, status.UsedOraclePrices)
		require.Equal(t, LiquidationNone, status.Type)
		requireBig(t, big.NewInt(2_000), status.MarginRatio)
	})

	t.Run("divergent unfavorable oracle is ignored", func(t *testing.T) {
		status, err := CalculateLiquidationStatus(userWith(40), longPosition(10, 1_000), markets, oracleAt(80, 100), rails, 105)
		require.NoError(t, err)
		require.False(t, status.UsedOraclePrices)
		require.Equal(t, LiquidationFull, status.Type)
	})

	t.Run("close oracle keeps mark valuation", func(t *testing.T) {
		status, err := CalculateLiquidationStatus(userWith(40), longPosition(10, 1_000), markets, oracleAt(105, 100), rails, 105)
		require.NoError(t, err)
		require.False(t, status.UsedOraclePrices)
	})

	t.Run("stale oracle is ignored", func(t *testing.T) {
		status, err := CalculateLiquidationStatus(userWith(40), longPosition(10, 1_000), markets, oracleAt(120, 100), rails, 200)
		require.NoError(t, err)
		require.False(t, status.UsedOraclePrices)
		require.Equal(t, LiquidationFull, status.Type)
	})
}

func TestCalculateBaseAssetAmountUserCanExecute(t *testing.T) {
	markets := marketsAt(100)
	order := func(direction ch.PositionDirection, units uint64) *ch.Order {
		return &ch.Order{
			Status:          ch.OrderStatusOpen,
			OrderType:       ch.OrderTypeMarket,
			Direction:       direction,
			BaseAssetAmount: testutil.BaseU(units),
		}
	}

	t.Run("reducing order is fully executable", func(t *testing.T) {
		amount, err := CalculateBaseAssetAmountUserCanExecute(userWith(0), longPosition(10, 1_000), order(ch.PositionDirectionShort, 10), markets, 0)
		require.NoError(t, err)
		requireBig(t, baseUnits(10), amount)
	})

	t.Run("increasing order is bounded by free collateral", func(t *testing.T) {
		amount, err := CalculateBaseAssetAmountUserCanExecute(userWith(100), &ch.UserPositions{}, order(ch.PositionDirectionLong, 100), markets, 0)
		require.NoError(t, err)
		// 100 collateral at 20% initial margin buys 500 notional, 5 base at 100
		requireBig(t, baseUnits(5), amount)
	})

	t.Run("no free collateral", func(t *testing.T) {
		amount, err := CalculateBaseAssetAmountUserCanExecute(userWith(0), &ch.UserPositions{}, order(ch.PositionDirectionLong, 1), markets, 0)
		require.NoError(t, err)
		require.Zero(t, amount.Sign())
	})

	t.Run("over-filled order fails", func(t *testing.T) {
		o := order(ch.PositionDirectionLong, 1)
		o.BaseAssetAmountFilled = testutil.BaseU(2)
		_, err := CalculateBaseAssetAmountUserCanExecute(userWith(0), &ch.UserPositions{}, o, markets, 0)
		require.ErrorIs(t, err, ErrInvalidOrder)
	})
}

func TestCalculateBaseAssetAmountMarketCanExecute(t *testing.T) {
	market := &marketsAt(100).Markets[0]
	mark := big.NewInt(100 * ch.MarkPricePrecision)
	limitOrder := func(direction ch.PositionDirection, price uint64) *ch.Order {
		return &ch.Order{
			Status:          ch.OrderStatusOpen,
			OrderType:       ch.OrderTypeLimit,
			Direction:       direction,
			Price:           ch.U128(price * ch.MarkPricePrecision),
			BaseAssetAmount: testutil.BaseU(10),
		}
	}

	cases := []struct {
		name  string
		order *ch.Order
		want  *big.Int
	}{
		{"market order", &ch.Order{OrderType: ch.OrderTypeMarket, BaseAssetAmount: testutil.BaseU(10)}, baseUnits(10)},
		{"long limit above mark", limitOrder(ch.PositionDirectionLong, 101), baseUnits(10)},
		{"long limit below mark", limitOrder(ch.PositionDirectionLong, 99), big.NewInt(0)},
		{"short limit below mark", limitOrder(ch.PositionDirectionShort, 99), baseUnits(10)},
		{"short limit above mark", limitOrder(ch.PositionDirectionShort, 101), big.NewInt(0)},
		{"trigger not reached", &ch.Order{
			OrderType:        ch.OrderTypeTriggerMarket,
			TriggerPrice:     ch.U128(110 * ch.MarkPricePrecision),
			TriggerCondition: ch.OrderTriggerConditionAbove,
			BaseAssetAmount:  testutil.BaseU(10),
		}, big.NewInt(0)},
		{"trigger reached", &ch.Order{
			OrderType:        ch.OrderTypeTriggerMarket,
			TriggerPrice:     ch.U128(110 * ch.MarkPricePrecision),
			TriggerCondition: ch.OrderTriggerConditionBelow,
			BaseAssetAmount:  testutil.BaseU(10),
		}, baseUnits(10)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount, err := CalculateBaseAssetAmountMarketCanExecute(tc.order, market, mark, nil)
			require.NoError(t, err)
			requireBig(t, tc.want, amount)
		})
	}

	t.Run("oracle offset needs an oracle", func(t *testing.T) {
		o := limitOrder(ch.PositionDirectionLong, 0)
		o.OraclePriceOffset = ch.I128(ch.MarkPricePrecision)
		_, err := CalculateBaseAssetAmountMarketCanExecute(o, market, mark, nil)
		require.ErrorIs(t, err, ErrMissingOracle)

		amount, err := CalculateBaseAssetAmountMarketCanExecute(o, market, mark, big.NewInt(100*ch.MarkPricePrecision))
		require.NoError(t, err)
		requireBig(t, baseUnits(10), amount)
	})
}
