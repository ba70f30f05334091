package liquidator

import (
	"fmt"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
	"github.com/coldbell/dex/liquidator/internal/ledger"
	"github.com/gagliardetto/solana-go"
)

// Index is a read-only address map of one program scan.
type Index struct {
	accounts  map[solana.PublicKey][]byte
	orderSets map[solana.PublicKey]OrderSet
	users     []UserAccount
}

type OrderSet struct {
	Address solana.PublicKey
	Orders  *ch.UserOrders
}

func NewIndex(accounts []ledger.KeyedAccount) (*Index, error) {
	idx := &Index{
		accounts:  make(map[solana.PublicKey][]byte, len(accounts)),
		orderSets: make(map[solana.PublicKey]OrderSet),
	}
	for _, acct := range accounts {
		if _, dup := idx.accounts[acct.Pubkey]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAccount, acct.Pubkey)
		}
		idx.accounts[acct.Pubkey] = acct.Data

		classified := ch.Classify(acct.Data)
		switch classified.Kind {
		case ch.KindUser:
			idx.users = append(idx.users, UserAccount{Address: acct.Pubkey, Account: classified.User})
		case ch.KindUserOrders:
			idx.orderSets[classified.UserOrders.User] = OrderSet{Address: acct.Pubkey, Orders: classified.UserOrders}
		}
	}
	return idx, nil
}

func (i *Index) Lookup(address solana.PublicKey) ([]byte, bool) {
	data, ok := i.accounts[address]
	return data, ok
}

// OrderSet returns the order set indexed under the owning user's address.
// The decoded orders are shared; callers copy before handing them out.
func (i *Index) OrderSet(user solana.PublicKey) (OrderSet, bool) {
	set, ok := i.orderSets[user]
	return set, ok
}

func (i *Index) Users() []UserAccount {
	return i.users
}

func (i *Index) Len() int {
	return len(i.accounts)
}
