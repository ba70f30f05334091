package liquidator

import (
	"context"
	"fmt"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
	"github.com/coldbell/dex/liquidator/internal/margin"
	"github.com/gagliardetto/solana-go"
)

// liquidationOracles lists the oracle of every open position, in position
// set order.
func liquidationOracles(positions *ch.UserPositions, markets *ch.Markets) ([]solana.PublicKey, error) {
	var oracles []solana.PublicKey
	for i := range positions.Positions {
		position := &positions.Positions[i]
		if !position.IsOpen() {
			continue
		}
		market := markets.Market(position.MarketIndex)
		if market == nil {
			return nil, fmt.Errorf("position references market %d out of range", position.MarketIndex)
		}
		oracles = append(oracles, market.Amm.Oracle)
	}
	return oracles, nil
}

func (s *Service) liquidationAccounts(target solana.PublicKey, user *ch.User, oracles []solana.PublicKey) ch.LiquidateAccounts {
	state := s.boot.State
	return ch.LiquidateAccounts{
		State:                    s.boot.StateAddress,
		Liquidator:               s.operator(),
		LiquidatorUser:           s.boot.OperatorUser,
		User:                     target,
		CollateralVault:          state.CollateralVault,
		CollateralVaultAuthority: state.CollateralVaultAuthority,
		InsuranceVault:           state.InsuranceVault,
		InsuranceVaultAuthority:  state.InsuranceVaultAuthority,
		Markets:                  s.boot.MarketsAddress,
		UserPositions:            user.Positions,
		TradeHistory:             state.TradeHistory,
		LiquidationHistory:       state.LiquidationHistory,
		FundingPaymentHistory:    state.FundingPaymentHistory,
		Oracles:                  oracles,
	}
}

// liquidate submits a liquidation when status calls for one and refreshes
// the cached user afterwards.
func (s *Service) liquidate(ctx context.Context, r *round, view *userView, tracked *trackedUser, status *margin.LiquidationStatus) (Action, bool) {
	if status.Type == margin.LiquidationNone {
		return Action{}, false
	}

	action := Action{
		Kind:            ActionLiquidate,
		User:            view.address,
		LiquidationType: status.Type,
	}
	oracles, err := liquidationOracles(view.positions, view.markets)
	if err != nil {
		action.Err = err
		return s.record(ctx, r, action), true
	}
	ix := ch.NewLiquidateInstruction(s.cfg.ClearingHouseProgramID, s.liquidationAccounts(view.address, view.user, oracles))
	action = s.execute(ctx, r, action, ix)

	if action.Err == nil && !action.DryRun {
		s.refreshUser(ctx, tracked)
	}
	return action, true
}

func (s *Service) refreshUser(ctx context.Context, tracked *trackedUser) {
	data, err := s.ledger.GetAccountData(ctx, tracked.address)
	if err != nil {
		s.logger.Debug("refresh user after liquidation failed", "user", tracked.address, "err", err)
		return
	}
	user, err := ch.ParseAccount_User(data)
	if err != nil {
		s.logger.Debug("decode user after liquidation failed", "user", tracked.address, "err", err)
		return
	}
	s.logger.Debug("user refreshed after liquidation",
		"user", tracked.address,
		"collateral_before", ch.U128ToBig(tracked.account.Collateral),
		"collateral_after", ch.U128ToBig(user.Collateral),
	)
	tracked.account = user
}
