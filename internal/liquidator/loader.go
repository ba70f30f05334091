package liquidator

import (
	"context"
	"errors"
	"fmt"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
	"github.com/coldbell/dex/liquidator/internal/ledger"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrDuplicateAccount      = errors.New("duplicate account address")
	ErrDuplicateSingleton    = errors.New("duplicate singleton account")
	ErrMissingSingleton      = errors.New("missing singleton account")
	ErrOperatorUserNotFound  = errors.New("operator user account not found")
	ErrOperatorUserAmbiguous = errors.New("operator owns more than one user account")
)

// Bootstrap is the global context resolved once from the startup scan.
type Bootstrap struct {
	OperatorUser      solana.PublicKey
	MarketsAddress    solana.PublicKey
	Markets           *ch.Markets
	StateAddress      solana.PublicKey
	State             *ch.State
	OrderStateAddress solana.PublicKey
	// OrderState is nil when the program has no order state account.
	OrderState *ch.OrderState
	Users      []UserAccount
}

type UserAccount struct {
	Address solana.PublicKey
	Account *ch.User
}

// LoadBootstrap classifies every program account and resolves the
// singletons and the operator's own user.
func LoadBootstrap(accounts []ledger.KeyedAccount, operator solana.PublicKey) (*Bootstrap, error) {
	boot := &Bootstrap{}
	seen := make(map[solana.PublicKey]struct{}, len(accounts))
	operatorUsers := 0

	for _, acct := range accounts {
		if _, dup := seen[acct.Pubkey]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, acct.Pubkey)
		}
		seen[acct.Pubkey] = struct{}{}

		classified := ch.Classify(acct.Data)
		switch classified.Kind {
		case ch.KindUser:
			boot.Users = append(boot.Users, UserAccount{Address: acct.Pubkey, Account: classified.User})
			if classified.User.Authority.Equals(operator) {
				boot.OperatorUser = acct.Pubkey
				operatorUsers++
			}
		case ch.KindMarkets:
			if boot.Markets != nil {
				return nil, fmt.Errorf("%w: markets at %s and %s", ErrDuplicateSingleton, boot.MarketsAddress, acct.Pubkey)
			}
			boot.MarketsAddress = acct.Pubkey
			boot.Markets = classified.Markets
		case ch.KindState:
			if boot.State != nil {
				return nil, fmt.Errorf("%w: state at %s and %s", ErrDuplicateSingleton, boot.StateAddress, acct.Pubkey)
			}
			boot.StateAddress = acct.Pubkey
			boot.State = classified.State
		case ch.KindOrderState:
			if boot.OrderState != nil {
				return nil, fmt.Errorf("%w: order state at %s and %s", ErrDuplicateSingleton, boot.OrderStateAddress, acct.Pubkey)
			}
			boot.OrderStateAddress = acct.Pubkey
			boot.OrderState = classified.OrderState
		}
	}

	if boot.Markets == nil {
		return nil, fmt.Errorf("%w: markets", ErrMissingSingleton)
	}
	if boot.State == nil {
		return nil, fmt.Errorf("%w: state", ErrMissingSingleton)
	}
	switch {
	case operatorUsers == 0:
		return nil, fmt.Errorf("%w: authority %s", ErrOperatorUserNotFound, operator)
	case operatorUsers > 1:
		return nil, fmt.Errorf("%w: authority %s", ErrOperatorUserAmbiguous, operator)
	}
	return boot, nil
}

func (s *Service) bootstrap(ctx context.Context) error {
	accounts, err := s.ledger.GetProgramAccounts(ctx, s.cfg.ClearingHouseProgramID)
	if err != nil {
		return fmt.Errorf("scan program accounts: %w", err)
	}
	boot, err := LoadBootstrap(accounts, s.operator())
	if err != nil {
		return err
	}

	s.boot = boot
	for _, u := range boot.Users {
		s.track(u.Address, u.Account)
	}

	if s.cfg.EnableOrderCrank && boot.OrderState == nil {
		s.logger.Warn("order state account not found, order crank disabled")
	}
	s.logger.Info("clearing house loaded",
		"accounts", len(accounts),
		"users", len(s.users),
		"operator_user", boot.OperatorUser,
		"state", boot.StateAddress,
		"markets", boot.MarketsAddress,
		"order_state", boot.OrderStateAddress,
	)
	return nil
}

func (s *Service) track(address solana.PublicKey, account *ch.User) bool {
	if _, ok := s.known[address]; ok {
		return false
	}
	s.known[address] = struct{}{}
	s.users = append(s.users, &trackedUser{address: address, account: account})
	return true
}
