package liquidator

import (
	"math/big"

	"github.com/coldbell/dex/liquidator/internal/journal"
	"github.com/coldbell/dex/liquidator/internal/margin"
	"github.com/gagliardetto/solana-go"
)

type ActionKind string

const (
	ActionFill      ActionKind = "fill"
	ActionLiquidate ActionKind = "liquidate"
)

// Action is one transaction the round decided to send.
type Action struct {
	Kind        ActionKind
	User        solana.PublicKey
	MarketIndex uint64
	// OrderID and BaseAssetAmount are set for fills.
	OrderID         *big.Int
	BaseAssetAmount *big.Int
	LiquidationType margin.LiquidationType
	Signature       solana.Signature
	DryRun          bool
	Err             error
}

func (a Action) Result() string {
	switch {
	case a.Err != nil:
		return "failed"
	case a.DryRun:
		return "dry_run"
	default:
		return "submitted"
	}
}

func (a Action) entry(slot uint64) journal.Entry {
	entry := journal.Entry{
		Slot:        slot,
		Kind:        string(a.Kind),
		User:        a.User.String(),
		MarketIndex: a.MarketIndex,
		DryRun:      a.DryRun,
	}
	if a.OrderID != nil {
		entry.OrderID = a.OrderID.String()
	}
	if a.BaseAssetAmount != nil {
		entry.BaseAssetAmount = a.BaseAssetAmount.String()
	}
	if a.Kind == ActionLiquidate {
		entry.LiquidationType = a.LiquidationType.String()
	}
	if !a.Signature.IsZero() {
		entry.Signature = a.Signature.String()
	}
	if a.Err != nil {
		entry.Error = a.Err.Error()
	}
	return entry
}
