package liquidator

import (
	"context"
	"sync"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"
)

// OracleSnapshot is the set of oracle accounts fetched for one round.
type OracleSnapshot struct {
	entries []ch.OracleAccount
}

// Clone returns a deep copy for a single worker.
func (o *OracleSnapshot) Clone() []ch.OracleAccount {
	out := make([]ch.OracleAccount, len(o.entries))
	for i, entry := range o.entries {
		out[i] = ch.OracleAccount{Key: entry.Key, Data: append([]byte(nil), entry.Data...)}
	}
	return out
}

func (o *OracleSnapshot) Lookup(key solana.PublicKey) ([]byte, bool) {
	for _, entry := range o.entries {
		if entry.Key.Equals(key) {
			return entry.Data, true
		}
	}
	return nil, false
}

func (o *OracleSnapshot) Len() int {
	return len(o.entries)
}

// fetchOracles loads the oracle of every initialized market concurrently.
// A failed fetch drops that oracle from the snapshot; it never fails the
// round.
func (s *Service) fetchOracles(ctx context.Context, markets *ch.Markets) *OracleSnapshot {
	var (
		mu       sync.Mutex
		snapshot = &OracleSnapshot{}
		seen     = make(map[solana.PublicKey]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range markets.Markets {
		market := &markets.Markets[i]
		if !market.Initialized || market.Amm.Oracle.IsZero() {
			continue
		}
		key := market.Amm.Oracle
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		marketIndex := i
		g.Go(func() error {
			data, err := s.ledger.GetAccountData(gctx, key)
			if err != nil {
				s.logger.Debug("oracle fetch failed", "market_index", marketIndex, "oracle", key, "err", err)
				return nil
			}
			mu.Lock()
			snapshot.entries = append(snapshot.entries, ch.OracleAccount{Key: key, Data: data})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return snapshot
}
