package clearinghouse

import (
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	PythPushOracleProgramID    = solana.MustPublicKeyFromBase58("pythWSnswVUd12oZpeFP8e9CVaEqJg25g1Vtc2biRsT")
	PriceUpdateV2Discriminator = [8]byte{34, 241, 35, 99, 157, 126, 244, 205}

	ErrInvalidOracle = errors.New("invalid oracle price update account")
)

const (
	verificationPartial uint8 = 0
	verificationFull    uint8 = 1
)

// OracleAccount is the raw content of one oracle as of the current slot.
type OracleAccount struct {
	Key  solana.PublicKey
	Data []byte
}

// OraclePrice is a decoded PriceUpdateV2 with price and confidence scaled to
// MarkPricePrecision.
type OraclePrice struct {
	FeedID      [32]byte
	Price       *big.Int
	Confidence  *big.Int
	PublishTime int64
	PostedSlot  uint64
}

type priceUpdateV2 struct {
	WriteAuthority    solana.PublicKey
	VerificationLevel uint8
	FeedID            [32]byte
	Price             int64
	Conf              uint64
	Exponent          int32
	PublishTime       int64
	PrevPublishTime   int64
	EmaPrice          int64
	EmaConf           uint64
	PostedSlot        uint64
}

func ParseOraclePrice(data []byte) (*OraclePrice, error) {
	if !HasDiscriminator(data, PriceUpdateV2Discriminator) {
		return nil, fmt.Errorf("%w: discriminator mismatch", ErrInvalidOracle)
	}

	dec := bin.NewBorshDecoder(data[8:])
	r := newReader(dec)
	var msg priceUpdateV2
	r.pubkey(&msg.WriteAuthority)
	r.u8(&msg.VerificationLevel)
	if r.err == nil && msg.VerificationLevel != verificationFull {
		if msg.VerificationLevel == verificationPartial {
			return nil, fmt.Errorf("%w: verification level is partial", ErrInvalidOracle)
		}
		return nil, fmt.Errorf("%w: unknown verification level %d", ErrInvalidOracle, msg.VerificationLevel)
	}
	var feed solana.PublicKey
	r.pubkey(&feed)
	msg.FeedID = [32]byte(feed)
	r.i64(&msg.Price)
	r.u64(&msg.Conf)
	var exponent uint32
	r.u32(&exponent)
	msg.Exponent = int32(exponent)
	r.i64(&msg.PublishTime)
	r.i64(&msg.PrevPublishTime)
	r.i64(&msg.EmaPrice)
	r.u64(&msg.EmaConf)
	r.u64(&msg.PostedSlot)
	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOracle, r.err)
	}
	if dec.Remaining() != 0 {
		return nil, fmt.Errorf("%w: trailing bytes in payload", ErrInvalidOracle)
	}

	if msg.Price <= 0 {
		return nil, fmt.Errorf("%w: non-positive oracle price", ErrInvalidOracle)
	}
	price, err := scaleToMarkPrecision(new(big.Int).SetInt64(msg.Price), msg.Exponent, false)
	if err != nil {
		return nil, err
	}
	conf, err := scaleToMarkPrecision(new(big.Int).SetUint64(msg.Conf), msg.Exponent, true)
	if err != nil {
		return nil, err
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price rounds to zero", ErrInvalidOracle)
	}

	return &OraclePrice{
		FeedID:      msg.FeedID,
		Price:       price,
		Confidence:  conf,
		PublishTime: msg.PublishTime,
		PostedSlot:  msg.PostedSlot,
	}, nil
}

func scaleToMarkPrecision(value *big.Int, exponent int32, ceil bool) (*big.Int, error) {
	if exponent > 38 || exponent < -38 {
		return nil, fmt.Errorf("%w: unsupported oracle exponent %d", ErrInvalidOracle, exponent)
	}
	out := new(big.Int).Mul(value, big.NewInt(MarkPricePrecision))
	if exponent >= 0 {
		return out.Mul(out, pow10(int64(exponent))), nil
	}

	denominator := pow10(int64(-exponent))
	quotient, remainder := new(big.Int).QuoRem(out, denominator, new(big.Int))
	if ceil && remainder.Sign() > 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	return quotient, nil
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
