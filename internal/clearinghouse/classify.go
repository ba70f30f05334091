package clearinghouse

type AccountKind int

const (
	KindUnrecognized AccountKind = iota
	KindUser
	KindUserOrders
	KindMarkets
	KindState
	KindOrderState
)

func (k AccountKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindUserOrders:
		return "user_orders"
	case KindMarkets:
		return "markets"
	case KindState:
		return "state"
	case KindOrderState:
		return "order_state"
	default:
		return "unrecognized"
	}
}

// Classified is the typed result of a trial decode. Exactly one field
// matching Kind is set.
type Classified struct {
	Kind       AccountKind
	User       *User
	UserOrders *UserOrders
	Markets    *Markets
	State      *State
	OrderState *OrderState
}

// Classify tries each known layout in priority order and returns the first
// that decodes. Position sets and history accounts are not classified; they
// are resolved by address.
func Classify(data []byte) Classified {
	if v, err := ParseAccount_User(data); err == nil {
		return Classified{Kind: KindUser, User: v}
	}
	if v, err := ParseAccount_UserOrders(data); err == nil {
		return Classified{Kind: KindUserOrders, UserOrders: v}
	}
	if v, err := ParseAccount_Markets(data); err == nil {
		return Classified{Kind: KindMarkets, Markets: v}
	}
	if v, err := ParseAccount_State(data); err == nil {
		return Classified{Kind: KindState, State: v}
	}
	if v, err := ParseAccount_OrderState(data); err == nil {
		return Classified{Kind: KindOrderState, OrderState: v}
	}
	return Classified{Kind: KindUnrecognized}
}
