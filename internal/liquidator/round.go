package liquidator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
	"golang.org/x/sync/errgroup"
)

var errNotBootstrapped = errors.New("liquidator not bootstrapped")

// round is the shared read-only view of one slot.
type round struct {
	slot    uint64
	index   *Index
	markets *ch.Markets
	history *ch.FundingPaymentHistory
	oracles *OracleSnapshot
}

type RoundReport struct {
	Slot      uint64
	Users     int
	Evaluated int
	Skipped   int
	Oracles   int
	// MinMarginRatio is nil when no user produced a ratio.
	MinMarginRatio *big.Int
	Actions        []Action
	Duration       time.Duration
}

func (r *RoundReport) MinMarginRatioString() string {
	if r.MinMarginRatio == nil {
		return ""
	}
	return r.MinMarginRatio.String()
}

type userOutcome struct {
	evaluated   bool
	marginRatio *big.Int
	actions     []Action
}

// RunRound refreshes the round state and evaluates every tracked user once.
// Only refresh failures are returned; per-user problems skip that user.
func (s *Service) RunRound(ctx context.Context, slot uint64) (*RoundReport, error) {
	if s.boot == nil {
		return nil, errNotBootstrapped
	}
	start := time.Now()

	r, err := s.refresh(ctx, slot)
	if err != nil {
		return nil, err
	}

	users := s.users
	outcomes := make([]userOutcome, len(users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, tracked := range users {
		i, tracked := i, tracked
		g.Go(func() error {
			outcomes[i] = s.evaluateUser(gctx, r, tracked)
			return nil
		})
	}
	_ = g.Wait()

	report := &RoundReport{
		Slot:    slot,
		Users:   len(users),
		Oracles: r.oracles.Len(),
	}
	for _, outcome := range outcomes {
		if outcome.evaluated {
			report.Evaluated++
		} else {
			report.Skipped++
		}
		if outcome.marginRatio != nil && (report.MinMarginRatio == nil || outcome.marginRatio.Cmp(report.MinMarginRatio) < 0) {
			report.MinMarginRatio = outcome.marginRatio
		}
		report.Actions = append(report.Actions, outcome.actions...)
	}
	report.Duration = time.Since(start)

	s.publish(report)
	return report, nil
}

func (s *Service) refresh(ctx context.Context, slot uint64) (*round, error) {
	accounts, err := s.ledger.GetProgramAccounts(ctx, s.cfg.ClearingHouseProgramID)
	if err != nil {
		return nil, fmt.Errorf("scan program accounts: %w", err)
	}
	index, err := NewIndex(accounts)
	if err != nil {
		return nil, err
	}
	for _, u := range index.Users() {
		if s.track(u.Address, u.Account) {
			s.logger.Debug("tracking new user", "user", u.Address, "slot", slot)
		}
	}

	marketsData, err := s.ledger.GetAccountData(ctx, s.boot.MarketsAddress)
	if err != nil {
		return nil, fmt.Errorf("fetch markets %s: %w", s.boot.MarketsAddress, err)
	}
	markets, err := ch.ParseAccount_Markets(marketsData)
	if err != nil {
		return nil, fmt.Errorf("decode markets %s: %w", s.boot.MarketsAddress, err)
	}

	historyAddress := s.boot.State.FundingPaymentHistory
	historyData, err := s.ledger.GetAccountData(ctx, historyAddress)
	if err != nil {
		return nil, fmt.Errorf("fetch funding payment history %s: %w", historyAddress, err)
	}
	history, err := ch.ParseAccount_FundingPaymentHistory(historyData)
	if err != nil {
		return nil, fmt.Errorf("decode funding payment history %s: %w", historyAddress, err)
	}

	return &round{
		slot:    slot,
		index:   index,
		markets: markets,
		history: history,
		oracles: s.fetchOracles(ctx, markets),
	}, nil
}
