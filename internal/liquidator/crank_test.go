package liquidator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ch "github.com/coldbell/dex/liquidator/internal/clearinghouse"
	"github.com/coldbell/dex/liquidator/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestReducesPosition(t *testing.T) {
	cases := []struct {
		name      string
		base      int64
		direction ch.PositionDirection
		want      bool
	}{
		{"flat long", 0, ch.PositionDirectionLong, false},
		{"flat short", 0, ch.PositionDirectionShort, false},
		{"long adds long", 10, ch.PositionDirectionLong, false},
		{"long sells short", 10, ch.PositionDirectionShort, true},
		{"short buys long", -10, ch.PositionDirectionLong, true},
		{"short adds short", -10, ch.PositionDirectionShort, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, reducesPosition(big.NewInt(tc.base), tc.direction))
		})
	}
}

func TestActionable(t *testing.T) {
	open := order(1, ch.PositionDirectionLong, 10, false)
	require.True(t, actionable(&open))

	partial := open
	partial.BaseAssetAmountFilled = testutil.BaseU(4)
	require.True(t, actionable(&partial))

	full := open
	full.BaseAssetAmountFilled = testutil.BaseU(10)
	require.False(t, actionable(&full))

	for _, status := range []ch.OrderStatus{ch.OrderStatusInit, ch.OrderStatusFilled, ch.OrderStatusCanceled} {
		o := open
		o.Status = status
		require.False(t, actionable(&o), status.String())
	}
}

func TestCrankFillsEligibleOrder(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser("alice", testutil.Key("alice-authority"), position(0, 10))
	ordersAddress := f.addOrders(alice, order(42, ch.PositionDirectionShort, 10, false))
	svc := f.bootedService()

	report, err := svc.RunRound(context.Background(), 7)
	require.NoError(t, err)

	require.Len(t, report.Actions, 1)
	action := report.Actions[0]
	require.Equal(t, ActionFill, action.Kind)
	require.Equal(t, alice, action.User)
	require.Equal(t, "42", action.OrderID.String())
	require.Equal(t, 0, action.BaseAssetAmount.Cmp(units(10)))
	require.NoError(t, action.Err)

	sent := f.ledger.sentTransactions()
	require.Len(t, sent, 1)
	program, data, keys := programInstruction(t, sent[0])
	require.Equal(t, programID, program)
	require.Equal(t, ch.Instruction_FillOrder[:], data[:8])
	require.Equal(t, byte(42), data[8])
	require.Len(t, keys, 14)
	require.Equal(t, f.signer.PublicKey(), keys[2])
	require.Equal(t, f.operatorUser, keys[3])
	require.Equal(t, alice, keys[4])
	require.Equal(t, ordersAddress, keys[7])
	require.Equal(t, oracle0, keys[13])

	require.Len(t, f.journal.entries, 1)
	require.Equal(t, "fill", f.journal.entries[0].Kind)
	require.Equal(t, uint64(7), f.journal.entries[0].Slot)
}

func TestCrankReduceOnlyOrderThatReducesProceeds(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser("alice", testutil.Key("alice-authority"), position(0, 10))
	f.addOrders(alice, order(1, ch.PositionDirectionShort, 10, true))
	svc := f.bootedService()

	report, err := svc.RunRound(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, report.Actions, 1)
	require.Len(t, f.ledger.sentTransactions(), 1)
}

func TestCrankReduceOnlyOrderThatGrowsIsSkipped(t *testing.T) {
	for name, base := range map[string]int64{"flat": 0, "long": 10} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			var positions []ch.MarketPosition
			if base != 0 {
				positions = append(positions, position(0, base))
			}
			alice := f.addUser("alice", testutil.Key("alice-authority"), positions...)
			f.addOrders(alice, order(1, ch.PositionDirectionLong, 10, true))
			svc := f.bootedService()

			report, err := svc.RunRound(context.Background(), 1)
			require.NoError(t, err)
			require.Empty(t, report.Actions)
			require.Empty(t, f.ledger.sentTransactions())
		})
	}
}

func TestCrankIgnoresInactiveOrders(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser("alice", testutil.Key("alice-authority"), position(0, 10))

	filled := order(1, ch.PositionDirectionShort, 10, false)
	filled.Status = ch.OrderStatusFilled
	canceled := order(2, ch.PositionDirectionShort, 10, false)
	canceled.Status = ch.OrderStatusCanceled
	done := order(3, ch.PositionDirectionShort, 10, false)
	done.BaseAssetAmountFilled = testutil.BaseU(10)
	f.addOrders(alice, filled, canceled, done)
	svc := f.bootedService()

	report, err := svc.RunRound(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, report.Actions)
	require.Zero(t, f.calc.userCalls.Load())
	require.Zero(t, f.calc.marketCalls.Load())
	require.Empty(t, f.ledger.sentTransactions())
}

func TestCrankSkipsOrder(t *testing.T) {
	cases := map[string]func(f *fixture){
		"missing oracle": func(f *fixture) {
			f.ledger.failing[oracle0] = errors.New("rpc down")
		},
		"user side fails": func(f *fixture) {
			f.calc.userErr = errors.New("margin")
		},
		"user side zero": func(f *fixture) {
			f.calc.userAmount = big.NewInt(0)
		},
		"market side zero": func(f *fixture) {
			f.calc.marketAmount = big.NewInt(0)
		},
		"at minimum trade size": func(f *fixture) {
			f.calc.marketAmount = units(1)
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			alice := f.addUser("alice", testutil.Key("alice-authority"), position(0, 10))
			f.addOrders(alice, order(1, ch.PositionDirectionShort, 10, false))
			setup(f)
			svc := f.bootedService()

			report, err := svc.RunRound(context.Background(), 1)
			require.NoError(t, err)
			require.Empty(t, report.Actions)
			require.Empty(t, f.ledger.sentTransactions())
			require.Equal(t, 2, report.Evaluated)
		})
	}
}

func TestCrankFillsSmallerSide(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser("alice", testutil.Key("alice-authority"), position(0, 10))
	f.addOrders(alice, order(1, ch.PositionDirectionShort, 10, false))
	f.calc.marketAmount = units(4)
	svc := f.bootedService()

	report, err := svc.RunRound(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, report.Actions, 1)
	require.Equal(t, 0, report.Actions[0].BaseAssetAmount.Cmp(units(4)))
}

func TestCrankDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.EnableOrderCrank = false
	alice := f.addUser("alice", testutil.Key("alice-authority"), position(0, 10))
	f.addOrders(alice, order(1, ch.PositionDirectionShort, 10, false))
	svc := f.bootedService()

	report, err := svc.RunRound(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, report.Actions)
	require.Zero(t, f.calc.userCalls.Load())
}
