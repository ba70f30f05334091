package margin

import (
	"fmt"
	"math/big"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
)

// SettleFundingPayment applies every unsettled funding delta to the user's
// collateral, advances each position's funding cursor, and appends one record
// per settled position to history. All three are mutated in place.
func SettleFundingPayment(user *ch.User, positions *ch.UserPositions, markets *ch.Markets, history *ch.FundingPaymentHistory, now int64) error {
	collateral := ch.U128ToBig(user.Collateral)

	for i := range positions.Positions {
		position := &positions.Positions[i]
		if !position.IsOpen() {
			continue
		}
		market, err := marketAt(markets, position.MarketIndex)
		if err != nil {
			return err
		}

		base := ch.I128ToBig(position.BaseAssetAmount)
		ammCumulative := market.Amm.CumulativeFundingRateShort
		if base.Sign() > 0 {
			ammCumulative = market.Amm.CumulativeFundingRateLong
		}
		last := ch.I128ToBig(position.LastCumulativeFundingRate)
		delta := new(big.Int).Sub(ch.I128ToBig(ammCumulative), last)
		if delta.Sign() == 0 {
			continue
		}

		// positive funding rates are paid by longs to shorts
		payment := new(big.Int).Mul(delta, base)
		payment.Quo(payment, fundingDivisor)
		payment.Neg(payment)

		collateral.Add(collateral, payment)
		if collateral.Sign() < 0 {
			collateral.SetInt64(0)
		}

		encodedPayment, err := ch.BigToI128(payment)
		if err != nil {
			return fmt.Errorf("funding payment for market %d: %w", position.MarketIndex, err)
		}
		history.Append(ch.FundingPaymentRecord{
			Ts:                        now,
			UserAuthority:             user.Authority,
			User:                      positions.User,
			MarketIndex:               position.MarketIndex,
			FundingPayment:            encodedPayment,
			BaseAssetAmount:           position.BaseAssetAmount,
			UserLastCumulativeFunding: position.LastCumulativeFundingRate,
			UserLastFundingRateTs:     position.LastFundingRateTs,
			AmmCumulativeFundingLong:  market.Amm.CumulativeFundingRateLong,
			AmmCumulativeFundingShort: market.Amm.CumulativeFundingRateShort,
		})

		position.LastCumulativeFundingRate = ammCumulative
		position.LastFundingRateTs = market.Amm.LastFundingRateTs
	}

	settled, err := ch.BigToU128(collateral)
	if err != nil {
		return fmt.Errorf("settled collateral: %w", err)
	}
	user.Collateral = settled
	return nil
}
