package margin

import (
	"fmt"
	"math/big"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
)

func remainingBaseAssetAmount(order *ch.Order) (*big.Int, error) {
	amount := ch.U128ToBig(order.BaseAssetAmount)
	filled := ch.U128ToBig(order.BaseAssetAmountFilled)
	if filled.Cmp(amount) > 0 {
		return nil, fmt.Errorf("%w: filled %s exceeds amount %s", ErrInvalidOrder, filled, amount)
	}
	return amount.Sub(amount, filled), nil
}

// CalculateBaseAssetAmountUserCanExecute bounds the order by what the user's
// account allows: the part that reduces an existing position is always
// allowed, the part that grows exposure is limited by free collateral at the
// market's initial margin ratio.
func CalculateBaseAssetAmountUserCanExecute(
	user *ch.User,
	positions *ch.UserPositions,
	order *ch.Order,
	markets *ch.Markets,
	marketIndex uint64,
) (*big.Int, error) {
	remaining, err := remainingBaseAssetAmount(order)
	if err != nil {
		return nil, err
	}
	market, err := marketAt(markets, marketIndex)
	if err != nil {
		return nil, err
	}

	reducing := new(big.Int)
	if position := positions.ForMarket(marketIndex); position != nil {
		base := ch.I128ToBig(position.BaseAssetAmount)
		opposite := (base.Sign() > 0 && order.Direction == ch.PositionDirectionShort) ||
			(base.Sign() < 0 && order.Direction == ch.PositionDirectionLong)
		if opposite {
			reducing = minBig(remaining, new(big.Int).Abs(base))
		}
	}
	increasing := new(big.Int).Sub(remaining, reducing)
	if increasing.Sign() == 0 {
		return remaining, nil
	}

	v, err := valuePositions(positions, markets, markPriceSource)
	if err != nil {
		return nil, err
	}
	free := totalCollateral(user, v)
	free.Sub(free, v.initial)
	if free.Sign() <= 0 {
		return reducing, nil
	}
	if market.MarginRatioInitial == 0 {
		return nil, fmt.Errorf("%w: market %d has no initial margin ratio", ErrInvalidAMM, marketIndex)
	}
	mark, err := MarkPrice(&market.Amm)
	if err != nil {
		return nil, err
	}
	if mark.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero mark price", ErrInvalidAMM)
	}

	maxBase := free.Mul(free, marginDenom)
	maxBase.Quo(maxBase, big.NewInt(int64(market.MarginRatioInitial)))
	maxBase.Mul(maxBase, baseValueDivisor)
	maxBase.Quo(maxBase, mark)

	return reducing.Add(reducing, minBig(increasing, maxBase)), nil
}

// CalculateBaseAssetAmountMarketCanExecute bounds the order by what the AMM
// allows at the current prices. markPrice may be nil, in which case it is
// derived from the market's reserves. oraclePrice is only required for
// orders priced at an oracle offset.
func CalculateBaseAssetAmountMarketCanExecute(order *ch.Order, market *ch.Market, markPrice, oraclePrice *big.Int) (*big.Int, error) {
	remaining, err := remainingBaseAssetAmount(order)
	if err != nil {
		return nil, err
	}
	if markPrice == nil {
		if markPrice, err = MarkPrice(&market.Amm); err != nil {
			return nil, err
		}
	}

	switch order.OrderType {
	case ch.OrderTypeMarket:
		return remaining, nil
	case ch.OrderTypeTriggerMarket:
		if !triggered(order, markPrice) {
			return new(big.Int), nil
		}
		return remaining, nil
	case ch.OrderTypeLimit, ch.OrderTypeTriggerLimit:
		if order.OrderType == ch.OrderTypeTriggerLimit && !triggered(order, markPrice) {
			return new(big.Int), nil
		}
		limit, err := limitPrice(order, oraclePrice)
		if err != nil {
			return nil, err
		}
		swappable, err := baseAssetAmountToPrice(&market.Amm, order.Direction, limit)
		if err != nil {
			return nil, err
		}
		return minBig(remaining, swappable), nil
	default:
		return nil, fmt.Errorf("%w: unknown order type %d", ErrInvalidOrder, order.OrderType)
	}
}

func triggered(order *ch.Order, markPrice *big.Int) bool {
	trigger := ch.U128ToBig(order.TriggerPrice)
	if order.TriggerCondition == ch.OrderTriggerConditionAbove {
		return markPrice.Cmp(trigger) > 0
	}
	return markPrice.Cmp(trigger) < 0
}

func limitPrice(order *ch.Order, oraclePrice *big.Int) (*big.Int, error) {
	offset := ch.I128ToBig(order.OraclePriceOffset)
	if offset.Sign() == 0 {
		price := ch.U128ToBig(order.Price)
		if price.Sign() == 0 {
			return nil, fmt.Errorf("%w: limit order without price", ErrInvalidOrder)
		}
		return price, nil
	}
	if oraclePrice == nil {
		return nil, ErrMissingOracle
	}
	price := offset.Add(offset, oraclePrice)
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: oracle offset price %s is not positive", ErrInvalidOrder, price)
	}
	return price, nil
}

// baseAssetAmountToPrice returns how much base the AMM can swap before its
// mark price reaches limit. With k = sqrt_k^2 the mark price at base reserve
// b is k * peg / b^2, so the target reserve is sqrt(k * peg / limit).
func baseAssetAmountToPrice(amm *ch.AMM, direction ch.PositionDirection, limit *big.Int) (*big.Int, error) {
	base := ch.U128ToBig(amm.BaseAssetReserve)
	if base.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero base asset reserve", ErrInvalidAMM)
	}
	sqrtK := ch.U128ToBig(amm.SqrtK)
	k := new(big.Int)
	if sqrtK.Sign() > 0 {
		k.Mul(sqrtK, sqrtK)
	} else {
		k.Mul(base, ch.U128ToBig(amm.QuoteAssetReserve))
	}

	target := k.Mul(k, ch.U128ToBig(amm.PegMultiplier))
	target.Mul(target, pegToMarkRatio)
	target.Quo(target, limit)
	target.Sqrt(target)

	switch direction {
	case ch.PositionDirectionLong:
		if target.Cmp(base) >= 0 {
			return new(big.Int), nil
		}
		return base.Sub(base, target), nil
	default:
		if target.Cmp(base) <= 0 {
			return new(big.Int), nil
		}
		return target.Sub(target, base), nil
	}
}
