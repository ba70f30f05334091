package liquidator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
)

var errSkipOrder = errors.New("skip order")

// actionable reports whether the order is open with an unfilled remainder.
func actionable(order *ch.Order) bool {
	if order.Status != ch.OrderStatusOpen {
		return false
	}
	filled := ch.U128ToBig(order.BaseAssetAmountFilled)
	return filled.Cmp(ch.U128ToBig(order.BaseAssetAmount)) < 0
}

// reducesPosition reports whether filling an order in direction can only
// shrink a position of size base.
func reducesPosition(base *big.Int, direction ch.PositionDirection) bool {
	switch {
	case base.Sign() == 0:
		return false
	case base.Sign() > 0 && direction == ch.PositionDirectionLong:
		return false
	case base.Sign() < 0 && direction == ch.PositionDirectionShort:
		return false
	}
	return true
}

func positionBase(positions *ch.UserPositions, marketIndex uint64) *big.Int {
	if position := positions.ForMarket(marketIndex); position != nil {
		return ch.I128ToBig(position.BaseAssetAmount)
	}
	return new(big.Int)
}

func (s *Service) crankOrders(ctx context.Context, r *round, view *userView, set OrderSet) []Action {
	orders := *set.Orders
	var actions []Action
	for i := range orders.Orders {
		order := &orders.Orders[i]
		if !actionable(order) {
			continue
		}

		amount, err := s.matchOrder(view, order)
		if err != nil {
			s.logger.Debug("order skipped",
				"user", view.address,
				"order_id", ch.U128ToBig(order.OrderID),
				"market_index", order.MarketIndex,
				"reason", err,
			)
			continue
		}

		action := Action{
			Kind:            ActionFill,
			User:            view.address,
			MarketIndex:     order.MarketIndex,
			OrderID:         ch.U128ToBig(order.OrderID),
			BaseAssetAmount: amount,
		}
		market := view.markets.Market(order.MarketIndex)
		ix, err := ch.NewFillOrderInstruction(s.cfg.ClearingHouseProgramID, order.OrderID, ch.FillOrderAccounts{
			State:                 s.boot.StateAddress,
			OrderState:            s.boot.OrderStateAddress,
			Authority:             s.operator(),
			Filler:                s.boot.OperatorUser,
			User:                  view.address,
			Markets:               s.boot.MarketsAddress,
			UserPositions:         view.user.Positions,
			UserOrders:            set.Address,
			TradeHistory:          s.boot.State.TradeHistory,
			FundingPaymentHistory: s.boot.State.FundingPaymentHistory,
			FundingRateHistory:    s.boot.State.FundingRateHistory,
			OrderHistory:          s.boot.OrderState.OrderHistory,
			ExtendedCurveHistory:  s.boot.State.ExtendedCurveHistory,
			Oracle:                market.Amm.Oracle,
		})
		if err != nil {
			action.Err = fmt.Errorf("build fill_order instruction: %w", err)
			actions = append(actions, s.record(ctx, r, action))
			continue
		}
		actions = append(actions, s.execute(ctx, r, action, ix))
	}
	return actions
}

// matchOrder returns the base asset amount to fill, or an errSkipOrder
// describing why the order is not fillable this round.
func (s *Service) matchOrder(view *userView, order *ch.Order) (*big.Int, error) {
	market := view.markets.Market(order.MarketIndex)
	if market == nil || !market.Initialized {
		return nil, fmt.Errorf("%w: market %d not initialized", errSkipOrder, order.MarketIndex)
	}
	oracleData, ok := lookupOracle(view.oracles, market.Amm.Oracle)
	if !ok {
		return nil, fmt.Errorf("%w: oracle %s not in snapshot", errSkipOrder, market.Amm.Oracle)
	}
	oracle, err := ch.ParseOraclePrice(oracleData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errSkipOrder, err)
	}

	mark, err := s.calc.MarkPrice(&market.Amm)
	if err != nil {
		mark = nil
	}

	userAmount, err := s.calc.CalculateBaseAssetAmountUserCanExecute(view.user, view.positions, order, view.markets, order.MarketIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: user side: %v", errSkipOrder, err)
	}
	marketAmount, err := s.calc.CalculateBaseAssetAmountMarketCanExecute(order, market, mark, oracle.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: market side: %v", errSkipOrder, err)
	}
	if userAmount.Sign() <= 0 || marketAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: nothing fillable (user %s, market %s)", errSkipOrder, userAmount, marketAmount)
	}

	amount := userAmount
	if marketAmount.Cmp(amount) < 0 {
		amount = marketAmount
	}
	minimum := ch.U128ToBig(market.Amm.MinimumBaseAssetTradeSize)
	if amount.Cmp(minimum) <= 0 {
		return nil, fmt.Errorf("%w: fill %s below minimum trade size %s", errSkipOrder, amount, minimum)
	}
	if order.ReduceOnly && !reducesPosition(positionBase(view.positions, order.MarketIndex), order.Direction) {
		return nil, fmt.Errorf("%w: reduce-only order would grow position", errSkipOrder)
	}
	return new(big.Int).Set(amount), nil
}
