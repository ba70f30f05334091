package margin

import (
	"math/big"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
)

type LiquidationType uint8

const (
	LiquidationNone LiquidationType = iota
	LiquidationPartial
	LiquidationFull
)

func (t LiquidationType) String() string {
	switch t {
	case LiquidationPartial:
		return "partial"
	case LiquidationFull:
		return "full"
	default:
		return "none"
	}
}

type LiquidationStatus struct {
	Type                   LiquidationType
	MarginRatio            *big.Int
	TotalCollateral        *big.Int
	UnrealizedPnl          *big.Int
	BaseAssetValue         *big.Int
	MaintenanceRequirement *big.Int
	PartialRequirement     *big.Int
	UsedOraclePrices       bool
}

type valuation struct {
	baseAssetValue *big.Int
	unrealizedPnl  *big.Int
	initial        *big.Int
	partial        *big.Int
	maintenance    *big.Int
}

type priceSource func(index uint64, market *ch.Market) (*big.Int, error)

func markPriceSource(_ uint64, market *ch.Market) (*big.Int, error) {
	return MarkPrice(&market.Amm)
}

func valuePositions(positions *ch.UserPositions, markets *ch.Markets, priceOf priceSource) (valuation, error) {
	out := valuation{
		baseAssetValue: new(big.Int),
		unrealizedPnl:  new(big.Int),
		initial:        new(big.Int),
		partial:        new(big.Int),
		maintenance:    new(big.Int),
	}

	for i := range positions.Positions {
		position := &positions.Positions[i]
		if !position.IsOpen() {
			continue
		}
		market, err := marketAt(markets, position.MarketIndex)
		if err != nil {
			return valuation{}, err
		}
		price, err := priceOf(position.MarketIndex, market)
		if err != nil {
			return valuation{}, err
		}

		base := ch.I128ToBig(position.BaseAssetAmount)
		value := baseAssetValue(base, price)
		entry := ch.U128ToBig(position.QuoteAssetAmount)
		pnl := new(big.Int).Sub(value, entry)
		if base.Sign() < 0 {
			pnl.Neg(pnl)
		}

		out.baseAssetValue.Add(out.baseAssetValue, value)
		out.unrealizedPnl.Add(out.unrealizedPnl, pnl)
		out.initial.Add(out.initial, requirement(value, market.MarginRatioInitial))
		out.partial.Add(out.partial, requirement(value, market.MarginRatioPartial))
		out.maintenance.Add(out.maintenance, requirement(value, market.MarginRatioMaintenance))
	}
	return out, nil
}

func requirement(value *big.Int, ratio uint32) *big.Int {
	out := new(big.Int).Mul(value, big.NewInt(int64(ratio)))
	return out.Quo(out, marginDenom)
}

func totalCollateral(user *ch.User, v valuation) *big.Int {
	out := ch.U128ToBig(user.Collateral)
	out.Add(out, v.unrealizedPnl)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out
}

func statusFrom(user *ch.User, v valuation) *LiquidationStatus {
	collateral := totalCollateral(user, v)
	status := &LiquidationStatus{
		Type:                   LiquidationNone,
		TotalCollateral:        collateral,
		UnrealizedPnl:          v.unrealizedPnl,
		BaseAssetValue:         v.baseAssetValue,
		MaintenanceRequirement: v.maintenance,
		PartialRequirement:     v.partial,
	}
	if v.baseAssetValue.Sign() == 0 {
		status.MarginRatio = ch.MaxUint128()
		return status
	}

	status.MarginRatio = new(big.Int).Mul(collateral, marginDenom)
	status.MarginRatio.Quo(status.MarginRatio, v.baseAssetValue)
	switch {
	case collateral.Cmp(v.maintenance) < 0:
		status.Type = LiquidationFull
	case collateral.Cmp(v.partial) < 0:
		status.Type = LiquidationPartial
	}
	return status
}

// CalculateLiquidationStatus values the user's positions at mark price. When
// the guard rails allow oracle use and a market's mark diverges too far from a
// valid oracle, positions are revalued at the oracle and the valuation with
// the higher margin ratio is kept.
func CalculateLiquidationStatus(
	user *ch.User,
	positions *ch.UserPositions,
	markets *ch.Markets,
	oracles []ch.OracleAccount,
	rails *ch.OracleGuardRails,
	slot uint64,
) (*LiquidationStatus, error) {
	atMark, err := valuePositions(positions, markets, markPriceSource)
	if err != nil {
		return nil, err
	}
	status := statusFrom(user, atMark)
	if rails == nil || !rails.UseForLiquidations {
		return status, nil
	}

	divergent := false
	atOracle, err := valuePositions(positions, markets, func(index uint64, market *ch.Market) (*big.Int, error) {
		mark, err := MarkPrice(&market.Amm)
		if err != nil {
			return nil, err
		}
		oracle, ok := validOraclePrice(oracles, market.Amm.Oracle, rails, slot)
		if !ok || !diverges(mark, oracle, rails) {
			return mark, nil
		}
		divergent = true
		return oracle, nil
	})
	if err != nil {
		return nil, err
	}
	if !divergent {
		return status, nil
	}

	oracleStatus := statusFrom(user, atOracle)
	if oracleStatus.MarginRatio.Cmp(status.MarginRatio) > 0 {
		oracleStatus.UsedOraclePrices = true
		return oracleStatus, nil
	}
	return status, nil
}
