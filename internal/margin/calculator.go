package margin

import (
	"math/big"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
)

// Calculator exposes the package functions as a value so callers can swap
// in their own math behind an interface.
type Calculator struct{}

func (Calculator) SettleFundingPayment(user *ch.User, positions *ch.UserPositions, markets *ch.Markets, history *ch.FundingPaymentHistory, now int64) error {
	return SettleFundingPayment(user, positions, markets, history, now)
}

func (Calculator) CalculateLiquidationStatus(user *ch.User, positions *ch.UserPositions, markets *ch.Markets, oracles []ch.OracleAccount, rails *ch.OracleGuardRails, slot uint64) (*LiquidationStatus, error) {
	return CalculateLiquidationStatus(user, positions, markets, oracles, rails, slot)
}

func (Calculator) CalculateBaseAssetAmountUserCanExecute(user *ch.User, positions *ch.UserPositions, order *ch.Order, markets *ch.Markets, marketIndex uint64) (*big.Int, error) {
	return CalculateBaseAssetAmountUserCanExecute(user, positions, order, markets, marketIndex)
}

func (Calculator) CalculateBaseAssetAmountMarketCanExecute(order *ch.Order, market *ch.Market, markPrice, oraclePrice *big.Int) (*big.Int, error) {
	return CalculateBaseAssetAmountMarketCanExecute(order, market, markPrice, oraclePrice)
}

func (Calculator) MarkPrice(amm *ch.AMM) (*big.Int, error) {
	return MarkPrice(amm)
}
