// Package liquidator runs the slot-gated clearing house maintenance loop:
// it settles funding locally, cranks fillable orders and liquidates
// under-collateralized users.
package liquidator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
	"github.com/coldbell/dex/liquidator/internal/config"
	"github.com/coldbell/dex/liquidator/internal/journal"
	"github.com/coldbell/dex/liquidator/internal/ledger"
	"github.com/coldbell/dex/liquidator/internal/margin"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Ledger is the read/submit surface the loop needs from the chain.
type Ledger interface {
	GetProgramAccounts(ctx context.Context, program solana.PublicKey) ([]ledger.KeyedAccount, error)
	GetAccountData(ctx context.Context, address solana.PublicKey) ([]byte, error)
	GetSlot(ctx context.Context) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error)
}

// Calculator holds the risk math. Implementations must be safe for
// concurrent use on distinct arguments.
type Calculator interface {
	SettleFundingPayment(user *ch.User, positions *ch.UserPositions, markets *ch.Markets, history *ch.FundingPaymentHistory, now int64) error
	CalculateLiquidationStatus(user *ch.User, positions *ch.UserPositions, markets *ch.Markets, oracles []ch.OracleAccount, rails *ch.OracleGuardRails, slot uint64) (*margin.LiquidationStatus, error)
	CalculateBaseAssetAmountUserCanExecute(user *ch.User, positions *ch.UserPositions, order *ch.Order, markets *ch.Markets, marketIndex uint64) (*big.Int, error)
	CalculateBaseAssetAmountMarketCanExecute(order *ch.Order, market *ch.Market, markPrice, oraclePrice *big.Int) (*big.Int, error)
	MarkPrice(amm *ch.AMM) (*big.Int, error)
}

type Journal interface {
	Record(ctx context.Context, entry journal.Entry) error
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, journal.Entry) error { return nil }

type Option func(*Service)

func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

func WithCalculator(c Calculator) Option {
	return func(s *Service) { s.calc = c }
}

func WithSigner(key solana.PrivateKey) Option {
	return func(s *Service) { s.signer = key }
}

func WithJournal(j Journal) Option {
	return func(s *Service) { s.journal = j }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// trackedUser is a user the loop evaluates every round. The cached account
// is only written by the worker that owns it during a round.
type trackedUser struct {
	address solana.PublicKey
	account *ch.User
}

type Service struct {
	cfg     config.LiquidatorConfig
	ledger  Ledger
	calc    Calculator
	signer  solana.PrivateKey
	logger  *slog.Logger
	metrics *Metrics
	journal Journal

	boot  *Bootstrap
	users []*trackedUser
	known map[solana.PublicKey]struct{}

	mu         sync.RWMutex
	lastReport *RoundReport
}

func New(cfg config.LiquidatorConfig, logger *slog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		logger: logger,
		known:  make(map[solana.PublicKey]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(s.signer) == 0 {
		signer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("load keypair %q: %w", cfg.KeypairPath, err)
		}
		s.signer = signer
	}
	if s.ledger == nil {
		s.ledger = ledger.New(cfg, logger)
	}
	if s.calc == nil {
		s.calc = margin.Calculator{}
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.journal == nil {
		s.journal = nopJournal{}
	}
	if s.cfg.Workers <= 0 {
		s.cfg.Workers = 1
	}
	return s, nil
}

func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("liquidator started",
		"rpc", s.cfg.RPCURL,
		"commitment", s.cfg.Commitment,
		"operator", s.signer.PublicKey(),
		"clearing_house_program", s.cfg.ClearingHouseProgramID,
		"workers", s.cfg.Workers,
		"dry_run", s.cfg.DryRun,
	)

	if err := s.bootstrap(ctx); err != nil {
		return err
	}

	last, err := s.ledger.GetSlot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("get initial slot: %w", err)
	}

	for {
		slot, err := s.waitForSlot(ctx, last)
		if ctx.Err() != nil {
			s.logger.Info("liquidator stopped")
			return nil
		}
		if err != nil {
			return err
		}
		last = slot

		report, err := s.RunRound(ctx, slot)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("liquidator stopped")
				return nil
			}
			return fmt.Errorf("round at slot %d: %w", slot, err)
		}
		s.logger.Debug("round complete",
			"slot", report.Slot,
			"users", report.Users,
			"evaluated", report.Evaluated,
			"skipped", report.Skipped,
			"min_margin_ratio", report.MinMarginRatioString(),
			"actions", len(report.Actions),
			"duration", report.Duration,
		)
	}
}

// waitForSlot polls until the observed slot moves past last.
func (s *Service) waitForSlot(ctx context.Context, last uint64) (uint64, error) {
	interval := s.cfg.SlotPollInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}

		slot, err := s.ledger.GetSlot(ctx)
		if err != nil {
			return 0, fmt.Errorf("get slot: %w", err)
		}
		if slot > last {
			return slot, nil
		}
		timer.Reset(interval)
	}
}

// LastReport returns the most recent completed round, or nil before the
// first one.
func (s *Service) LastReport() *RoundReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

func (s *Service) publish(report *RoundReport) {
	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()
	s.metrics.observeRound(report)
}

func (s *Service) operator() solana.PublicKey {
	return s.signer.PublicKey()
}

func (s *Service) crankEnabled() bool {
	return s.cfg.EnableOrderCrank && s.boot != nil && s.boot.OrderState != nil
}
