// Package ledger wraps the Solana JSON-RPC client with per-call timeouts,
// optional request rate limiting and retry with exponential backoff.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coldbell/dex/liquidator/internal/config"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

var ErrAccountNotFound = errors.New("account not found")

type KeyedAccount struct {
	Pubkey solana.PublicKey
	Owner  solana.PublicKey
	Data   []byte
}

type Client struct {
	rpc            *rpc.Client
	commitment     rpc.CommitmentType
	timeout        time.Duration
	maxRetries     int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	skipPreflight  bool
	txMaxRetries   *uint
	logger         *slog.Logger
}

func New(cfg config.LiquidatorConfig, logger *slog.Logger) *Client {
	var client *rpc.Client
	if cfg.RPCRequestsPerSecond > 0 {
		client = rpc.NewWithCustomRPCClient(rpc.NewWithLimiter(
			cfg.RPCURL,
			rate.Limit(cfg.RPCRequestsPerSecond),
			cfg.RPCBurst,
		))
	} else {
		client = rpc.New(cfg.RPCURL)
	}

	return &Client{
		rpc:            client,
		commitment:     cfg.Commitment,
		timeout:        cfg.RPCTimeout,
		maxRetries:     cfg.RPCMaxRetries,
		retryBaseDelay: cfg.RPCRetryBaseDelay,
		retryMaxDelay:  cfg.RPCRetryMaxDelay,
		skipPreflight:  cfg.SkipPreflight,
		txMaxRetries:   cfg.MaxRetries,
		logger:         logger,
	}
}

func (c *Client) GetProgramAccounts(ctx context.Context, program solana.PublicKey) ([]KeyedAccount, error) {
	var out []KeyedAccount
	err := c.withRetry(ctx, "getProgramAccounts", func(callCtx context.Context) error {
		result, err := c.rpc.GetProgramAccountsWithOpts(callCtx, program, &rpc.GetProgramAccountsOpts{
			Commitment: c.commitment,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			return err
		}

		out = make([]KeyedAccount, 0, len(result))
		for _, keyed := range result {
			if keyed == nil || keyed.Account == nil || keyed.Account.Data == nil {
				continue
			}
			out = append(out, KeyedAccount{
				Pubkey: keyed.Pubkey,
				Owner:  keyed.Account.Owner,
				Data:   keyed.Account.Data.GetBinary(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get program accounts %s: %w", program, err)
	}
	return out, nil
}

func (c *Client) GetAccount(ctx context.Context, address solana.PublicKey) (*KeyedAccount, error) {
	var out *KeyedAccount
	err := c.withRetry(ctx, "getAccountInfo", func(callCtx context.Context) error {
		result, err := c.rpc.GetAccountInfoWithOpts(callCtx, address, &rpc.GetAccountInfoOpts{
			Commitment: c.commitment,
			Encoding:   solana.EncodingBase64,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			return backoff.Permanent(ErrAccountNotFound)
		}
		if err != nil {
			return err
		}
		if result == nil || result.Value == nil || result.Value.Data == nil {
			return backoff.Permanent(ErrAccountNotFound)
		}
		out = &KeyedAccount{
			Pubkey: address,
			Owner:  result.Value.Owner,
			Data:   result.Value.Data.GetBinary(),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	return out, nil
}

func (c *Client) GetAccountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	account, err := c.GetAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	return account.Data, nil
}

func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := c.withRetry(ctx, "getSlot", func(callCtx context.Context) error {
		var err error
		slot, err = c.rpc.GetSlot(callCtx, c.commitment)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var hash solana.Hash
	err := c.withRetry(ctx, "getLatestBlockhash", func(callCtx context.Context) error {
		result, err := c.rpc.GetLatestBlockhash(callCtx, c.commitment)
		if err != nil {
			return err
		}
		if result == nil || result.Value == nil {
			return errors.New("empty blockhash response")
		}
		hash = result.Value.Blockhash
		return nil
	})
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return hash, nil
}

// SendTransaction submits once. Resubmission is left to the next round.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	opts := rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: c.commitment,
	}
	if c.txMaxRetries != nil {
		retries := *c.txMaxRetries
		opts.MaxRetries = &retries
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.rpc.SendTransactionWithOpts(callCtx, tx, opts)
}

// GetSignatureStatus returns nil without error while the signature is unknown.
func (c *Client) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.rpc.GetSignatureStatuses(callCtx, true, sig)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}

func (c *Client) withRetry(ctx context.Context, method string, call func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryBaseDelay
	policy.MaxInterval = c.retryMaxDelay
	policy.MaxElapsedTime = 0

	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return call(callCtx)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("rpc call failed, retrying", "method", method, "wait", wait, "err", err)
	}

	retries := uint64(0)
	if c.maxRetries > 0 {
		retries = uint64(c.maxRetries)
	}
	return backoff.RetryNotify(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx), notify)
}
