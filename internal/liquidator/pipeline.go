package liquidator

import (
	"context"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
	"github.com/gagliardetto/solana-go"
)

// userView is one worker's private working set for a user.
type userView struct {
	address   solana.PublicKey
	user      *ch.User
	positions *ch.UserPositions
	markets   *ch.Markets
	oracles   []ch.OracleAccount
}

func (s *Service) evaluateUser(ctx context.Context, r *round, tracked *trackedUser) userOutcome {
	logger := s.logger.With("user", tracked.address, "slot", r.slot)

	userData, ok := r.index.Lookup(tracked.address)
	if !ok {
		logger.Debug("user skipped", "reason", "user account not in scan")
		return userOutcome{}
	}
	user, err := ch.ParseAccount_User(userData)
	if err != nil {
		logger.Debug("user skipped", "reason", "decode user", "err", err)
		return userOutcome{}
	}
	positionsData, ok := r.index.Lookup(user.Positions)
	if !ok {
		logger.Debug("user skipped", "reason", "position set not in scan", "positions", user.Positions)
		return userOutcome{}
	}
	positions, err := ch.ParseAccount_UserPositions(positionsData)
	if err != nil {
		logger.Debug("user skipped", "reason", "decode position set", "positions", user.Positions, "err", err)
		return userOutcome{}
	}
	tracked.account = user

	markets := *r.markets
	history := *r.history
	view := &userView{
		address:   tracked.address,
		user:      user,
		positions: positions,
		markets:   &markets,
		oracles:   r.oracles.Clone(),
	}

	if err := s.calc.SettleFundingPayment(view.user, view.positions, view.markets, &history, 0); err != nil {
		logger.Debug("user skipped", "reason", "funding settlement", "err", err)
		return userOutcome{}
	}

	var out userOutcome
	if s.crankEnabled() {
		if set, ok := r.index.OrderSet(tracked.address); ok {
			out.actions = append(out.actions, s.crankOrders(ctx, r, view, set)...)
		}
	}

	status, err := s.calc.CalculateLiquidationStatus(view.user, view.positions, view.markets, view.oracles, &s.boot.State.OracleGuardRails, r.slot)
	if err != nil {
		logger.Debug("user skipped", "reason", "liquidation status", "err", err)
		return out
	}
	out.evaluated = true
	out.marginRatio = status.MarginRatio

	if action, ok := s.liquidate(ctx, r, view, tracked, status); ok {
		out.actions = append(out.actions, action)
	}
	return out
}

func lookupOracle(oracles []ch.OracleAccount, key solana.PublicKey) ([]byte, bool) {
	for _, oracle := range oracles {
		if oracle.Key.Equals(key) {
			return oracle.Data, true
		}
	}
	return nil, false
}
