// Package margin implements the clearing house math used to decide
// liquidations and order fills: funding settlement, margin requirements and
// the base asset amounts a user or the AMM can execute.
package margin

import (
	"errors"
	"fmt"
	"math/big"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrInvalidAMM           = errors.New("invalid amm state")
	ErrMarketOutOfRange     = errors.New("market index out of range")
	ErrMarketNotInitialized = errors.New("market not initialized")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrMissingOracle        = errors.New("oracle price unavailable")
)

var (
	bigZero        = big.NewInt(0)
	marginDenom    = big.NewInt(ch.MarginPrecision)
	pegToMarkRatio = big.NewInt(ch.PriceToPegPrecisionRatio)
	// base (1e13) * price (1e10) / quote (1e6)
	baseValueDivisor = big.NewInt(ch.AMMReservePrecision * ch.MarkPricePrecision / ch.QuotePrecision)
	fundingDivisor   = big.NewInt(ch.AMMToQuotePrecisionRatio * ch.FundingPaymentPrecision)
)

// MarkPrice is quote_reserve * peg / base_reserve at MarkPricePrecision.
func MarkPrice(amm *ch.AMM) (*big.Int, error) {
	base := ch.U128ToBig(amm.BaseAssetReserve)
	if base.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero base asset reserve", ErrInvalidAMM)
	}
	out := ch.U128ToBig(amm.QuoteAssetReserve)
	out.Mul(out, ch.U128ToBig(amm.PegMultiplier))
	out.Mul(out, pegToMarkRatio)
	return out.Quo(out, base), nil
}

// baseAssetValue is |base| * price in quote precision.
func baseAssetValue(base *big.Int, price *big.Int) *big.Int {
	out := new(big.Int).Abs(base)
	out.Mul(out, price)
	return out.Quo(out, baseValueDivisor)
}

func lookupOracle(oracles []ch.OracleAccount, key solana.PublicKey) ([]byte, bool) {
	for _, oracle := range oracles {
		if oracle.Key.Equals(key) {
			return oracle.Data, true
		}
	}
	return nil, false
}

// validOraclePrice returns the oracle price for key when it parses and passes
// the staleness and confidence guard rails.
func validOraclePrice(oracles []ch.OracleAccount, key solana.PublicKey, rails *ch.OracleGuardRails, slot uint64) (*big.Int, bool) {
	data, ok := lookupOracle(oracles, key)
	if !ok {
		return nil, false
	}
	price, err := ch.ParseOraclePrice(data)
	if err != nil {
		return nil, false
	}
	if rails == nil {
		return price.Price, true
	}

	if stale := rails.Validity.SlotsBeforeStale; stale > 0 && slot > price.PostedSlot && slot-price.PostedSlot > uint64(stale) {
		return nil, false
	}
	if maxConf := ch.U128ToBig(rails.Validity.ConfidenceIntervalMaxSize); maxConf.Sign() > 0 {
		confBps := new(big.Int).Mul(price.Confidence, marginDenom)
		confBps.Quo(confBps, price.Price)
		if confBps.Cmp(maxConf) > 0 {
			return nil, false
		}
	}
	return price.Price, true
}

// diverges reports whether |mark - oracle| / oracle exceeds the configured
// numerator / denominator.
func diverges(mark, oracle *big.Int, rails *ch.OracleGuardRails) bool {
	numerator := ch.U128ToBig(rails.PriceDivergence.MarkOracleDivergenceNumerator)
	denominator := ch.U128ToBig(rails.PriceDivergence.MarkOracleDivergenceDenominator)
	if numerator.Sign() == 0 || denominator.Sign() == 0 || oracle.Sign() <= 0 {
		return false
	}
	spread := new(big.Int).Sub(mark, oracle)
	spread.Abs(spread)
	lhs := spread.Mul(spread, denominator)
	rhs := new(big.Int).Mul(oracle, numerator)
	return lhs.Cmp(rhs) > 0
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func marketAt(markets *ch.Markets, index uint64) (*ch.Market, error) {
	market := markets.Market(index)
	if market == nil {
		return nil, fmt.Errorf("%w: %d", ErrMarketOutOfRange, index)
	}
	if !market.Initialized {
		return nil, fmt.Errorf("%w: %d", ErrMarketNotInitialized, index)
	}
	return market, nil
}
