package clearinghouse

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	Instruction_Liquidate = instructionDiscriminator("liquidate")
	Instruction_FillOrder = instructionDiscriminator("fill_order")
)

// LiquidateAccounts lists the fixed accounts of the liquidate instruction.
// Oracles holds one read-only entry per open position of the target user.
type LiquidateAccounts struct {
	State                    solana.PublicKey
	Liquidator               solana.PublicKey
	LiquidatorUser           solana.PublicKey
	User                     solana.PublicKey
	CollateralVault          solana.PublicKey
	CollateralVaultAuthority solana.PublicKey
	InsuranceVault           solana.PublicKey
	InsuranceVaultAuthority  solana.PublicKey
	Markets                  solana.PublicKey
	UserPositions            solana.PublicKey
	TradeHistory             solana.PublicKey
	LiquidationHistory       solana.PublicKey
	FundingPaymentHistory    solana.PublicKey
	Oracles                  []solana.PublicKey
}

func NewLiquidateInstruction(programID solana.PublicKey, accounts LiquidateAccounts) solana.Instruction {
	data := make([]byte, len(Instruction_Liquidate))
	copy(data, Instruction_Liquidate[:])

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.State, false, false),
		solana.NewAccountMeta(accounts.Liquidator, false, true),
		solana.NewAccountMeta(accounts.LiquidatorUser, true, false),
		solana.NewAccountMeta(accounts.User, true, false),
		solana.NewAccountMeta(accounts.CollateralVault, true, false),
		solana.NewAccountMeta(accounts.CollateralVaultAuthority, false, false),
		solana.NewAccountMeta(accounts.InsuranceVault, true, false),
		solana.NewAccountMeta(accounts.InsuranceVaultAuthority, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(accounts.Markets, true, false),
		solana.NewAccountMeta(accounts.UserPositions, true, false),
		solana.NewAccountMeta(accounts.TradeHistory, true, false),
		solana.NewAccountMeta(accounts.LiquidationHistory, true, false),
		solana.NewAccountMeta(accounts.FundingPaymentHistory, true, false),
	}
	for _, oracle := range accounts.Oracles {
		metas = append(metas, solana.NewAccountMeta(oracle, false, false))
	}

	return solana.NewInstruction(programID, metas, data)
}

type FillOrderAccounts struct {
	State                 solana.PublicKey
	OrderState            solana.PublicKey
	Authority             solana.PublicKey
	Filler                solana.PublicKey
	User                  solana.PublicKey
	Markets               solana.PublicKey
	UserPositions         solana.PublicKey
	UserOrders            solana.PublicKey
	TradeHistory          solana.PublicKey
	FundingPaymentHistory solana.PublicKey
	FundingRateHistory    solana.PublicKey
	OrderHistory          solana.PublicKey
	ExtendedCurveHistory  solana.PublicKey
	Oracle                solana.PublicKey
}

func NewFillOrderInstruction(programID solana.PublicKey, orderID bin.Uint128, accounts FillOrderAccounts) (solana.Instruction, error) {
	var buf bytes.Buffer
	buf.Write(Instruction_FillOrder[:])
	if err := bin.NewBorshEncoder(&buf).WriteUint128(orderID, bin.LE); err != nil {
		return nil, err
	}

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.State, false, false),
		solana.NewAccountMeta(accounts.OrderState, false, false),
		solana.NewAccountMeta(accounts.Authority, false, true),
		solana.NewAccountMeta(accounts.Filler, true, false),
		solana.NewAccountMeta(accounts.User, true, false),
		solana.NewAccountMeta(accounts.Markets, true, false),
		solana.NewAccountMeta(accounts.UserPositions, true, false),
		solana.NewAccountMeta(accounts.UserOrders, true, false),
		solana.NewAccountMeta(accounts.TradeHistory, true, false),
		solana.NewAccountMeta(accounts.FundingPaymentHistory, true, false),
		solana.NewAccountMeta(accounts.FundingRateHistory, true, false),
		solana.NewAccountMeta(accounts.OrderHistory, true, false),
		solana.NewAccountMeta(accounts.ExtendedCurveHistory, true, false),
		solana.NewAccountMeta(accounts.Oracle, false, false),
	}

	return solana.NewInstruction(programID, metas, buf.Bytes()), nil
}
