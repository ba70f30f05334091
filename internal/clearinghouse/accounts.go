package clearinghouse

import (
	"errors"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	MaxPositions = 5
	MaxOrders    = 32
	MaxMarkets   = 64

	FundingPaymentHistorySize = 1024
)

var (
	Account_User                  = accountDiscriminator("User")
	Account_UserPositions         = accountDiscriminator("UserPositions")
	Account_UserOrders            = accountDiscriminator("UserOrders")
	Account_Markets               = accountDiscriminator("Markets")
	Account_State                 = accountDiscriminator("State")
	Account_OrderState            = accountDiscriminator("OrderState")
	Account_FundingPaymentHistory = accountDiscriminator("FundingPaymentHistory")

	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")
)

type OrderStatus uint8

const (
	OrderStatusInit OrderStatus = iota
	OrderStatusOpen
	OrderStatusFilled
	OrderStatusCanceled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusInit:
		return "init"
	case OrderStatusOpen:
		return "open"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type OrderType uint8

const (
	OrderTypeMarket OrderType = iota
	OrderTypeLimit
	OrderTypeTriggerMarket
	OrderTypeTriggerLimit
)

type PositionDirection uint8

const (
	PositionDirectionLong PositionDirection = iota
	PositionDirectionShort
)

func (d PositionDirection) String() string {
	if d == PositionDirectionShort {
		return "short"
	}
	return "long"
}

type OrderTriggerCondition uint8

const (
	OrderTriggerConditionAbove OrderTriggerCondition = iota
	OrderTriggerConditionBelow
)

type User struct {
	Authority          solana.PublicKey
	Collateral         bin.Uint128
	CumulativeDeposits bin.Int128
	TotalFeePaid       bin.Uint128
	TotalFeeRebate     bin.Uint128
	Positions          solana.PublicKey
}

func (obj *User) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.pubkey(&obj.Authority)
	r.u128(&obj.Collateral)
	r.i128(&obj.CumulativeDeposits)
	r.u128(&obj.TotalFeePaid)
	r.u128(&obj.TotalFeeRebate)
	r.pubkey(&obj.Positions)
	return r.err
}

func (obj User) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.pubkey(obj.Authority)
	w.u128(obj.Collateral)
	w.i128(obj.CumulativeDeposits)
	w.u128(obj.TotalFeePaid)
	w.u128(obj.TotalFeeRebate)
	w.pubkey(obj.Positions)
	return w.err
}

type MarketPosition struct {
	MarketIndex               uint64
	BaseAssetAmount           bin.Int128
	QuoteAssetAmount          bin.Uint128
	LastCumulativeFundingRate bin.Int128
	LastCumulativeRepegRebate bin.Uint128
	LastFundingRateTs         int64
	OpenOrders                uint64
}

func (obj *MarketPosition) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.u64(&obj.MarketIndex)
	r.i128(&obj.BaseAssetAmount)
	r.u128(&obj.QuoteAssetAmount)
	r.i128(&obj.LastCumulativeFundingRate)
	r.u128(&obj.LastCumulativeRepegRebate)
	r.i64(&obj.LastFundingRateTs)
	r.u64(&obj.OpenOrders)
	return r.err
}

func (obj MarketPosition) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.u64(obj.MarketIndex)
	w.i128(obj.BaseAssetAmount)
	w.u128(obj.QuoteAssetAmount)
	w.i128(obj.LastCumulativeFundingRate)
	w.u128(obj.LastCumulativeRepegRebate)
	w.i64(obj.LastFundingRateTs)
	w.u64(obj.OpenOrders)
	return w.err
}

// IsOpen reports whether the position holds a non-zero base asset amount.
func (obj *MarketPosition) IsOpen() bool {
	return obj.BaseAssetAmount.Lo != 0 || obj.BaseAssetAmount.Hi != 0
}

type UserPositions struct {
	User      solana.PublicKey
	Positions [MaxPositions]MarketPosition
}

func (obj *UserPositions) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.pubkey(&obj.User)
	for i := range obj.Positions {
		r.nested(&obj.Positions[i])
	}
	return r.err
}

func (obj UserPositions) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.pubkey(obj.User)
	for i := range obj.Positions {
		w.nested(obj.Positions[i])
	}
	return w.err
}

// ForMarket returns the open position for marketIndex, or nil when flat.
func (obj *UserPositions) ForMarket(marketIndex uint64) *MarketPosition {
	for i := range obj.Positions {
		if obj.Positions[i].MarketIndex == marketIndex && obj.Positions[i].IsOpen() {
			return &obj.Positions[i]
		}
	}
	return nil
}

type Order struct {
	Status                 OrderStatus
	OrderType              OrderType
	Ts                     int64
	OrderID                bin.Uint128
	UserOrderID            uint8
	MarketIndex            uint64
	Price                  bin.Uint128
	UserBaseAssetAmount    bin.Int128
	QuoteAssetAmount       bin.Uint128
	BaseAssetAmount        bin.Uint128
	BaseAssetAmountFilled  bin.Uint128
	QuoteAssetAmountFilled bin.Uint128
	Fee                    bin.Int128
	Direction              PositionDirection
	ReduceOnly             bool
	PostOnly               bool
	ImmediateOrCancel      bool
	TriggerPrice           bin.Uint128
	TriggerCondition       OrderTriggerCondition
	OraclePriceOffset      bin.Int128
}

func (obj *Order) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.u8((*uint8)(&obj.Status))
	r.u8((*uint8)(&obj.OrderType))
	r.i64(&obj.Ts)
	r.u128(&obj.OrderID)
	r.u8(&obj.UserOrderID)
	r.u64(&obj.MarketIndex)
	r.u128(&obj.Price)
	r.i128(&obj.UserBaseAssetAmount)
	r.u128(&obj.QuoteAssetAmount)
	r.u128(&obj.BaseAssetAmount)
	r.u128(&obj.BaseAssetAmountFilled)
	r.u128(&obj.QuoteAssetAmountFilled)
	r.i128(&obj.Fee)
	r.u8((*uint8)(&obj.Direction))
	r.boolean(&obj.ReduceOnly)
	r.boolean(&obj.PostOnly)
	r.boolean(&obj.ImmediateOrCancel)
	r.u128(&obj.TriggerPrice)
	r.u8((*uint8)(&obj.TriggerCondition))
	r.i128(&obj.OraclePriceOffset)
	return r.err
}

func (obj Order) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.u8(uint8(obj.Status))
	w.u8(uint8(obj.OrderType))
	w.i64(obj.Ts)
	w.u128(obj.OrderID)
	w.u8(obj.UserOrderID)
	w.u64(obj.MarketIndex)
	w.u128(obj.Price)
	w.i128(obj.UserBaseAssetAmount)
	w.u128(obj.QuoteAssetAmount)
	w.u128(obj.BaseAssetAmount)
	w.u128(obj.BaseAssetAmountFilled)
	w.u128(obj.QuoteAssetAmountFilled)
	w.i128(obj.Fee)
	w.u8(uint8(obj.Direction))
	w.boolean(obj.ReduceOnly)
	w.boolean(obj.PostOnly)
	w.boolean(obj.ImmediateOrCancel)
	w.u128(obj.TriggerPrice)
	w.u8(uint8(obj.TriggerCondition))
	w.i128(obj.OraclePriceOffset)
	return w.err
}

type UserOrders struct {
	User   solana.PublicKey
	Orders [MaxOrders]Order
}

func (obj *UserOrders) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.pubkey(&obj.User)
	for i := range obj.Orders {
		r.nested(&obj.Orders[i])
	}
	return r.err
}

func (obj UserOrders) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.pubkey(obj.User)
	for i := range obj.Orders {
		w.nested(obj.Orders[i])
	}
	return w.err
}

type AMM struct {
	Oracle                     solana.PublicKey
	OracleSource               uint8
	BaseAssetReserve           bin.Uint128
	QuoteAssetReserve          bin.Uint128
	SqrtK                      bin.Uint128
	PegMultiplier              bin.Uint128
	CumulativeFundingRateLong  bin.Int128
	CumulativeFundingRateShort bin.Int128
	LastFundingRate            bin.Int128
	LastFundingRateTs          int64
	FundingPeriod              int64
	LastMarkPriceTwap          bin.Uint128
	LastMarkPriceTwapTs        int64
	MinimumQuoteAssetTradeSize bin.Uint128
	MinimumBaseAssetTradeSize  bin.Uint128
}

func (obj *AMM) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.pubkey(&obj.Oracle)
	r.u8(&obj.OracleSource)
	r.u128(&obj.BaseAssetReserve)
	r.u128(&obj.QuoteAssetReserve)
	r.u128(&obj.SqrtK)
	r.u128(&obj.PegMultiplier)
	r.i128(&obj.CumulativeFundingRateLong)
	r.i128(&obj.CumulativeFundingRateShort)
	r.i128(&obj.LastFundingRate)
	r.i64(&obj.LastFundingRateTs)
	r.i64(&obj.FundingPeriod)
	r.u128(&obj.LastMarkPriceTwap)
	r.i64(&obj.LastMarkPriceTwapTs)
	r.u128(&obj.MinimumQuoteAssetTradeSize)
	r.u128(&obj.MinimumBaseAssetTradeSize)
	return r.err
}

func (obj AMM) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.pubkey(obj.Oracle)
	w.u8(obj.OracleSource)
	w.u128(obj.BaseAssetReserve)
	w.u128(obj.QuoteAssetReserve)
	w.u128(obj.SqrtK)
	w.u128(obj.PegMultiplier)
	w.i128(obj.CumulativeFundingRateLong)
	w.i128(obj.CumulativeFundingRateShort)
	w.i128(obj.LastFundingRate)
	w.i64(obj.LastFundingRateTs)
	w.i64(obj.FundingPeriod)
	w.u128(obj.LastMarkPriceTwap)
	w.i64(obj.LastMarkPriceTwapTs)
	w.u128(obj.MinimumQuoteAssetTradeSize)
	w.u128(obj.MinimumBaseAssetTradeSize)
	return w.err
}

type Market struct {
	Initialized            bool
	BaseAssetAmountLong    bin.Int128
	BaseAssetAmountShort   bin.Int128
	BaseAssetAmount        bin.Int128
	OpenInterest           bin.Uint128
	Amm                    AMM
	MarginRatioInitial     uint32
	MarginRatioPartial     uint32
	MarginRatioMaintenance uint32
}

func (obj *Market) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.boolean(&obj.Initialized)
	r.i128(&obj.BaseAssetAmountLong)
	r.i128(&obj.BaseAssetAmountShort)
	r.i128(&obj.BaseAssetAmount)
	r.u128(&obj.OpenInterest)
	r.nested(&obj.Amm)
	r.u32(&obj.MarginRatioInitial)
	r.u32(&obj.MarginRatioPartial)
	r.u32(&obj.MarginRatioMaintenance)
	return r.err
}

func (obj Market) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.boolean(obj.Initialized)
	w.i128(obj.BaseAssetAmountLong)
	w.i128(obj.BaseAssetAmountShort)
	w.i128(obj.BaseAssetAmount)
	w.u128(obj.OpenInterest)
	w.nested(obj.Amm)
	w.u32(obj.MarginRatioInitial)
	w.u32(obj.MarginRatioPartial)
	w.u32(obj.MarginRatioMaintenance)
	return w.err
}

type Markets struct {
	Markets [MaxMarkets]Market
}

func (obj *Markets) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	for i := range obj.Markets {
		r.nested(&obj.Markets[i])
	}
	return r.err
}

func (obj Markets) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	for i := range obj.Markets {
		w.nested(obj.Markets[i])
	}
	return w.err
}

// Market returns the market at index, or nil when out of range.
func (obj *Markets) Market(index uint64) *Market {
	if index >= MaxMarkets {
		return nil
	}
	return &obj.Markets[index]
}

type PriceDivergenceGuardRails struct {
	MarkOracleDivergenceNumerator   bin.Uint128
	MarkOracleDivergenceDenominator bin.Uint128
}

type ValidityGuardRails struct {
	SlotsBeforeStale          int64
	ConfidenceIntervalMaxSize bin.Uint128
	TooVolatileRatio          bin.Int128
}

type OracleGuardRails struct {
	PriceDivergence    PriceDivergenceGuardRails
	Validity           ValidityGuardRails
	UseForLiquidations bool
}

func (obj *OracleGuardRails) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.u128(&obj.PriceDivergence.MarkOracleDivergenceNumerator)
	r.u128(&obj.PriceDivergence.MarkOracleDivergenceDenominator)
	r.i64(&obj.Validity.SlotsBeforeStale)
	r.u128(&obj.Validity.ConfidenceIntervalMaxSize)
	r.i128(&obj.Validity.TooVolatileRatio)
	r.boolean(&obj.UseForLiquidations)
	return r.err
}

func (obj OracleGuardRails) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.u128(obj.PriceDivergence.MarkOracleDivergenceNumerator)
	w.u128(obj.PriceDivergence.MarkOracleDivergenceDenominator)
	w.i64(obj.Validity.SlotsBeforeStale)
	w.u128(obj.Validity.ConfidenceIntervalMaxSize)
	w.i128(obj.Validity.TooVolatileRatio)
	w.boolean(obj.UseForLiquidations)
	return w.err
}

type State struct {
	Admin                    solana.PublicKey
	ExchangePaused           bool
	FundingPaused            bool
	CollateralMint           solana.PublicKey
	CollateralVault          solana.PublicKey
	CollateralVaultAuthority solana.PublicKey
	CollateralVaultNonce     uint8
	DepositHistory           solana.PublicKey
	TradeHistory             solana.PublicKey
	FundingPaymentHistory    solana.PublicKey
	FundingRateHistory       solana.PublicKey
	LiquidationHistory       solana.PublicKey
	CurveHistory             solana.PublicKey
	InsuranceVault           solana.PublicKey
	InsuranceVaultAuthority  solana.PublicKey
	InsuranceVaultNonce      uint8
	Markets                  solana.PublicKey
	OracleGuardRails         OracleGuardRails
	OrderState               solana.PublicKey
	ExtendedCurveHistory     solana.PublicKey
}

func (obj *State) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.pubkey(&obj.Admin)
	r.boolean(&obj.ExchangePaused)
	r.boolean(&obj.FundingPaused)
	r.pubkey(&obj.CollateralMint)
	r.pubkey(&obj.CollateralVault)
	r.pubkey(&obj.CollateralVaultAuthority)
	r.u8(&obj.CollateralVaultNonce)
	r.pubkey(&obj.DepositHistory)
	r.pubkey(&obj.TradeHistory)
	r.pubkey(&obj.FundingPaymentHistory)
	r.pubkey(&obj.FundingRateHistory)
	r.pubkey(&obj.LiquidationHistory)
	r.pubkey(&obj.CurveHistory)
	r.pubkey(&obj.InsuranceVault)
	r.pubkey(&obj.InsuranceVaultAuthority)
	r.u8(&obj.InsuranceVaultNonce)
	r.pubkey(&obj.Markets)
	r.nested(&obj.OracleGuardRails)
	r.pubkey(&obj.OrderState)
	r.pubkey(&obj.ExtendedCurveHistory)
	return r.err
}

func (obj State) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.pubkey(obj.Admin)
	w.boolean(obj.ExchangePaused)
	w.boolean(obj.FundingPaused)
	w.pubkey(obj.CollateralMint)
	w.pubkey(obj.CollateralVault)
	w.pubkey(obj.CollateralVaultAuthority)
	w.u8(obj.CollateralVaultNonce)
	w.pubkey(obj.DepositHistory)
	w.pubkey(obj.TradeHistory)
	w.pubkey(obj.FundingPaymentHistory)
	w.pubkey(obj.FundingRateHistory)
	w.pubkey(obj.LiquidationHistory)
	w.pubkey(obj.CurveHistory)
	w.pubkey(obj.InsuranceVault)
	w.pubkey(obj.InsuranceVaultAuthority)
	w.u8(obj.InsuranceVaultNonce)
	w.pubkey(obj.Markets)
	w.nested(obj.OracleGuardRails)
	w.pubkey(obj.OrderState)
	w.pubkey(obj.ExtendedCurveHistory)
	return w.err
}

type OrderState struct {
	OrderHistory             solana.PublicKey
	MinOrderQuoteAssetAmount bin.Uint128
	FillerRewardNumerator    bin.Uint128
	FillerRewardDenominator  bin.Uint128
}

func (obj *OrderState) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.pubkey(&obj.OrderHistory)
	r.u128(&obj.MinOrderQuoteAssetAmount)
	r.u128(&obj.FillerRewardNumerator)
	r.u128(&obj.FillerRewardDenominator)
	return r.err
}

func (obj OrderState) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.pubkey(obj.OrderHistory)
	w.u128(obj.MinOrderQuoteAssetAmount)
	w.u128(obj.FillerRewardNumerator)
	w.u128(obj.FillerRewardDenominator)
	return w.err
}

type FundingPaymentRecord struct {
	Ts                        int64
	RecordID                  bin.Uint128
	UserAuthority             solana.PublicKey
	User                      solana.PublicKey
	MarketIndex               uint64
	FundingPayment            bin.Int128
	BaseAssetAmount           bin.Int128
	UserLastCumulativeFunding bin.Int128
	UserLastFundingRateTs     int64
	AmmCumulativeFundingLong  bin.Int128
	AmmCumulativeFundingShort bin.Int128
}

func (obj *FundingPaymentRecord) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.i64(&obj.Ts)
	r.u128(&obj.RecordID)
	r.pubkey(&obj.UserAuthority)
	r.pubkey(&obj.User)
	r.u64(&obj.MarketIndex)
	r.i128(&obj.FundingPayment)
	r.i128(&obj.BaseAssetAmount)
	r.i128(&obj.UserLastCumulativeFunding)
	r.i64(&obj.UserLastFundingRateTs)
	r.i128(&obj.AmmCumulativeFundingLong)
	r.i128(&obj.AmmCumulativeFundingShort)
	return r.err
}

func (obj FundingPaymentRecord) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.i64(obj.Ts)
	w.u128(obj.RecordID)
	w.pubkey(obj.UserAuthority)
	w.pubkey(obj.User)
	w.u64(obj.MarketIndex)
	w.i128(obj.FundingPayment)
	w.i128(obj.BaseAssetAmount)
	w.i128(obj.UserLastCumulativeFunding)
	w.i64(obj.UserLastFundingRateTs)
	w.i128(obj.AmmCumulativeFundingLong)
	w.i128(obj.AmmCumulativeFundingShort)
	return w.err
}

// FundingPaymentHistory is a ring buffer; Head counts every record ever
// appended and the slot written next is Head modulo the ring size.
type FundingPaymentHistory struct {
	Head    uint64
	Records [FundingPaymentHistorySize]FundingPaymentRecord
}

func (obj *FundingPaymentHistory) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	r := newReader(decoder)
	r.u64(&obj.Head)
	for i := range obj.Records {
		r.nested(&obj.Records[i])
	}
	return r.err
}

func (obj FundingPaymentHistory) MarshalWithEncoder(encoder *bin.Encoder) error {
	w := newWriter(encoder)
	w.u64(obj.Head)
	for i := range obj.Records {
		w.nested(obj.Records[i])
	}
	return w.err
}

func (obj *FundingPaymentHistory) Append(record FundingPaymentRecord) {
	record.RecordID = U128(obj.Head + 1)
	obj.Records[obj.Head%FundingPaymentHistorySize] = record
	obj.Head++
}

func ParseAccount_User(data []byte) (*User, error) {
	out := new(User)
	if err := decodeAccount(data, Account_User, "User", out); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseAccount_UserPositions(data []byte) (*UserPositions, error) {
	out := new(UserPositions)
	if err := decodeAccount(data, Account_UserPositions, "UserPositions", out); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseAccount_UserOrders(data []byte) (*UserOrders, error) {
	out := new(UserOrders)
	if err := decodeAccount(data, Account_UserOrders, "UserOrders", out); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseAccount_Markets(data []byte) (*Markets, error) {
	out := new(Markets)
	if err := decodeAccount(data, Account_Markets, "Markets", out); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseAccount_State(data []byte) (*State, error) {
	out := new(State)
	if err := decodeAccount(data, Account_State, "State", out); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseAccount_OrderState(data []byte) (*OrderState, error) {
	out := new(OrderState)
	if err := decodeAccount(data, Account_OrderState, "OrderState", out); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseAccount_FundingPaymentHistory(data []byte) (*FundingPaymentHistory, error) {
	out := new(FundingPaymentHistory)
	if err := decodeAccount(data, Account_FundingPaymentHistory, "FundingPaymentHistory", out); err != nil {
		return nil, err
	}
	return out, nil
}
