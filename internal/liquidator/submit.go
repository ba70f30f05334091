package liquidator

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
)

// execute sends ix for action unless running dry, then records the result.
func (s *Service) execute(ctx context.Context, r *round, action Action, ix solana.Instruction) Action {
	if s.cfg.DryRun {
		action.DryRun = true
		return s.record(ctx, r, action)
	}

	txCtx := ctx
	if s.cfg.TxTimeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, s.cfg.TxTimeout)
		defer cancel()
	}

	sig, err := s.sendTransaction(txCtx, ix)
	if err != nil {
		action.Err = fmt.Errorf("send %s transaction: %w", action.Kind, err)
		return s.record(ctx, r, action)
	}
	action.Signature = sig

	if s.cfg.AwaitConfirmation {
		if err := s.waitForConfirmation(txCtx, sig); err != nil {
			action.Err = fmt.Errorf("confirm %s %s: %w", action.Kind, sig, err)
		}
	}
	return s.record(ctx, r, action)
}

func (s *Service) record(ctx context.Context, r *round, action Action) Action {
	attrs := []any{
		"kind", action.Kind,
		"user", action.User,
		"slot", r.slot,
		"result", action.Result(),
	}
	switch action.Kind {
	case ActionFill:
		attrs = append(attrs, "order_id", action.OrderID, "market_index", action.MarketIndex, "base_asset_amount", action.BaseAssetAmount)
	case ActionLiquidate:
		attrs = append(attrs, "liquidation_type", action.LiquidationType)
	}
	if !action.Signature.IsZero() {
		attrs = append(attrs, "signature", action.Signature)
	}

	if action.Err != nil {
		s.logger.Warn("action failed", append(attrs, "err", action.Err)...)
	} else {
		s.logger.Info("action sent", attrs...)
	}

	s.metrics.observeAction(action)
	if err := s.journal.Record(ctx, action.entry(r.slot)); err != nil {
		s.logger.Warn("journal write failed", "kind", action.Kind, "user", action.User, "err", err)
	}
	return action
}

func (s *Service) computeBudgetInstructions() ([]solana.Instruction, error) {
	instructions := make([]solana.Instruction, 0, 2)
	if s.cfg.ComputeUnitLimit > 0 {
		ix, err := computebudget.NewSetComputeUnitLimitInstruction(s.cfg.ComputeUnitLimit).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit limit instruction: %w", err)
		}
		instructions = append(instructions, ix)
	}
	if s.cfg.ComputeUnitPriceMicroLamports > 0 {
		ix, err := computebudget.NewSetComputeUnitPriceInstruction(s.cfg.ComputeUnitPriceMicroLamports).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build compute unit price instruction: %w", err)
		}
		instructions = append(instructions, ix)
	}
	return instructions, nil
}

func (s *Service) sendTransaction(ctx context.Context, ix solana.Instruction) (solana.Signature, error) {
	instructions, err := s.computeBudgetInstructions()
	if err != nil {
		return solana.Signature{}, err
	}
	instructions = append(instructions, ix)

	recent, err := s.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(instructions, recent, solana.TransactionPayer(s.signer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if s.signer.PublicKey().Equals(key) {
			return &s.signer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	return s.ledger.SendTransaction(ctx, tx)
}

func (s *Service) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(700 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			status, err := s.ledger.GetSignatureStatus(ctx, sig)
			if err != nil || status == nil {
				continue
			}
			if status.Err != nil {
				return fmt.Errorf("transaction failed: %v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}
